package store

import (
	"context"

	"github.com/donation-platform/ledger-worker/src/utils/model"

	"gorm.io/gorm/clause"
)

// Keeps a dropped event for manual replay. Recording the same event again is a no-op.
func (self *Store) RecordSkippedEvent(ctx context.Context, event *model.SkippedEvent) (err error) {
	ctx, cancel := self.writeContext(ctx)
	defer cancel()

	err = self.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(event).
		Error
	return classify(err)
}

func (self *Store) CountSkippedEvents(ctx context.Context, checkpointKey string) (count int64, err error) {
	ctx, cancel := self.readContext(ctx)
	defer cancel()

	err = self.db.WithContext(ctx).
		Model(&model.SkippedEvent{}).
		Where("checkpoint_key = ?", checkpointKey).
		Count(&count).
		Error
	return count, classify(err)
}
