package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/donation-platform/ledger-worker/src/utils/ledger"
	"github.com/donation-platform/ledger-worker/src/utils/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (self *Store) LoadCheckpoint(ctx context.Context, key string) (out *model.Checkpoint, err error) {
	ctx, cancel := self.readContext(ctx)
	defer cancel()

	out = new(model.Checkpoint)
	err = self.db.WithContext(ctx).
		Where("key = ?", key).
		Take(out).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: checkpoint %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, classify(err)
	}
	return
}

// Creates the checkpoint row if it doesn't exist. Existing cursors are never touched.
func (self *Store) SeedCheckpoint(ctx context.Context, key string, startAt *ledger.Timestamp) (created bool, err error) {
	ctx, cancel := self.writeContext(ctx)
	defer cancel()

	checkpoint := model.Checkpoint{
		Key:       key,
		UpdatedAt: time.Now(),
	}
	if startAt != nil {
		s := startAt.String()
		checkpoint.StartAt = &s
	}

	tx := self.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&checkpoint)
	if tx.Error != nil {
		return false, classify(tx.Error)
	}
	return tx.RowsAffected > 0, nil
}

// Moves the cursor forward. A cursor that isn't greater than the stored one is ignored.
func (self *Store) AdvanceCheckpoint(ctx context.Context, key string, cursor ledger.Timestamp) (advanced bool, err error) {
	ctx, cancel := self.writeContext(ctx)
	defer cancel()

	err = self.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var checkpoint model.Checkpoint
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("key = ?", key).
			Take(&checkpoint).
			Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: checkpoint %s", ErrNotFound, key)
		}
		if err != nil {
			return err
		}

		current, err := checkpoint.From()
		if err != nil {
			return err
		}
		if current != nil && !cursor.After(*current) {
			// Monotonic
			return nil
		}

		err = tx.Model(&model.Checkpoint{}).
			Where("key = ?", key).
			Updates(map[string]interface{}{
				"value":      cursor.String(),
				"updated_at": time.Now(),
			}).
			Error
		if err != nil {
			return err
		}

		advanced = true
		return nil
	})
	if err != nil {
		return false, classify(err)
	}
	return
}
