package model

import (
	"time"

	"github.com/donation-platform/ledger-worker/src/utils/ledger"
)

// Progress through the contract's log stream, one row per watched contract
type Checkpoint struct {
	Key string `gorm:"primaryKey" json:"key"`

	// Optional fixed start, used until the first cursor is stored
	StartAt *string `json:"start_at"`

	// Last processed timestamp
	Value *string `gorm:"column:value" json:"value"`

	UpdatedAt time.Time `json:"updated_at"`
}

func (Checkpoint) TableName() string {
	return TableCrawlCheckpoint
}

// Lower, exclusive bound of the next window. Nil means unbounded.
func (self *Checkpoint) From() (*ledger.Timestamp, error) {
	cursor, err := ledger.ParseOptional(self.Value)
	if err != nil || cursor != nil {
		return cursor, err
	}
	return ledger.ParseOptional(self.StartAt)
}
