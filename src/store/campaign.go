package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/donation-platform/ledger-worker/src/utils/model"

	"gorm.io/gorm"
)

func (self *Store) FindUserByWalletAddress(ctx context.Context, address string) (out *model.User, err error) {
	ctx, cancel := self.readContext(ctx)
	defer cancel()

	out = new(model.User)
	err = self.db.WithContext(ctx).
		Where("wallet_address = ?", address).
		Order("id ASC").
		Take(out).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: user with wallet %s", ErrNotFound, address)
	}
	if err != nil {
		return nil, classify(err)
	}
	return
}

func (self *Store) FindCampaignByOnchainId(ctx context.Context, onchainId int64) (out *model.Campaign, err error) {
	return self.findCampaign(ctx, "onchain_id = ?", onchainId)
}

func (self *Store) FindCampaignById(ctx context.Context, id int64) (out *model.Campaign, err error) {
	return self.findCampaign(ctx, "id = ?", id)
}

func (self *Store) findCampaign(ctx context.Context, query string, arg int64) (out *model.Campaign, err error) {
	ctx, cancel := self.readContext(ctx)
	defer cancel()

	out = new(model.Campaign)
	err = self.db.WithContext(ctx).
		Where(query, arg).
		Take(out).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: campaign %s %d", ErrNotFound, query, arg)
	}
	if err != nil {
		return nil, classify(err)
	}
	return
}

// Approved campaigns not yet on chain, with everything needed to publish them
func (self *Store) FindApprovedUnpublishedCampaigns(ctx context.Context) (out []model.PendingCampaign, err error) {
	ctx, cancel := self.readContext(ctx)
	defer cancel()

	err = self.db.WithContext(ctx).
		Table(model.TableCampaign+" AS c").
		Select(`c.id, c.title, c.goal, c.status, c.transaction_hash_withdrawn,
			t.address AS token_address, t."decimal" AS token_decimal,
			u.wallet_address AS organizer_wallet_address`).
		Joins(`INNER JOIN token AS t ON c.token_id = t.id`).
		Joins(`INNER JOIN "user" AS u ON c.organizer_id = u.id`).
		Where("c.approved_by_admin = ?", true).
		Where("c.status IN ?", []model.CampaignStatus{model.CampaignStatusNew, model.CampaignStatusPending}).
		Where("c.onchain_id IS NULL").
		Order("c.id ASC").
		Scan(&out).
		Error
	if err != nil {
		return nil, classify(err)
	}
	return
}

// Applies the transition only if the campaign is in one of the statuses that may precede it.
// Returns false when nothing changed (unknown campaign, replayed or out of order event).
func (self *Store) UpdateCampaignOnchainState(ctx context.Context, transition model.CampaignTransition) (changed bool, err error) {
	predecessors := model.Predecessors(transition.Status)
	if len(predecessors) == 0 {
		return false, fmt.Errorf("%w: nothing precedes %s", ErrInvalidTransition, transition.Status)
	}

	ctx, cancel := self.writeContext(ctx)
	defer cancel()

	updates := map[string]interface{}{
		"status":     transition.Status,
		"updated_at": time.Now(),
	}
	if transition.TransactionHashCreate != nil {
		updates["transaction_hash_create"] = *transition.TransactionHashCreate
	}
	if transition.TransactionHashWithdrawn != nil {
		updates["transaction_hash_withdrawn"] = *transition.TransactionHashWithdrawn
	}

	query := self.db.WithContext(ctx).
		Model(&model.Campaign{}).
		Where("id = ?", transition.CampaignId).
		Where("status IN ?", predecessors)

	if transition.OnchainId != nil {
		updates["onchain_id"] = *transition.OnchainId
		// Never overwrite a different on-chain id
		query = query.Where("onchain_id IS NULL OR onchain_id = ?", *transition.OnchainId)
	}

	tx := query.Updates(updates)
	if tx.Error != nil {
		return false, classify(tx.Error)
	}
	return tx.RowsAffected > 0, nil
}
