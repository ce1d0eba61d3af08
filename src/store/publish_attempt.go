package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/donation-platform/ledger-worker/src/utils/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (self *Store) LoadPublishAttempt(ctx context.Context, campaignId int64) (out *model.PublishAttempt, err error) {
	ctx, cancel := self.readContext(ctx)
	defer cancel()

	out = new(model.PublishAttempt)
	err = self.db.WithContext(ctx).
		Where("campaign_id = ?", campaignId).
		Take(out).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: publish attempt for campaign %d", ErrNotFound, campaignId)
	}
	if err != nil {
		return nil, classify(err)
	}
	return
}

// Records a signed transaction before it is sent
func (self *Store) SavePublishAttempt(ctx context.Context, attempt *model.PublishAttempt) (err error) {
	ctx, cancel := self.writeContext(ctx)
	defer cancel()

	err = self.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "campaign_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"transaction_hash", "nonce", "submitted_at", "replaced_transaction_hashes"}),
		}).
		Create(attempt).
		Error
	return classify(err)
}

func (self *Store) DeletePublishAttempt(ctx context.Context, campaignId int64) (err error) {
	ctx, cancel := self.writeContext(ctx)
	defer cancel()

	err = self.db.WithContext(ctx).
		Where("campaign_id = ?", campaignId).
		Delete(&model.PublishAttempt{}).
		Error
	return classify(err)
}
