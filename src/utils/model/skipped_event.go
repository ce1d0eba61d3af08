package model

import (
	"time"

	"github.com/jackc/pgtype"
)

type SkipReason string

const (
	SkipReasonUnknownDonor    SkipReason = "unknown_donor"
	SkipReasonUnknownCampaign SkipReason = "unknown_campaign"
	SkipReasonMalformed       SkipReason = "malformed"
	SkipReasonInvalidAmount   SkipReason = "invalid_amount"
)

// Event dropped during reconciliation, kept for manual replay
type SkippedEvent struct {
	Id              int64        `gorm:"primaryKey" json:"id"`
	CheckpointKey   string       `json:"checkpoint_key"`
	TransactionHash string       `json:"transaction_hash"`
	EventName       string       `json:"event_name"`
	LogIndex        int          `json:"log_index"`
	Reason          SkipReason   `json:"reason"`
	Args            pgtype.JSONB `gorm:"type:jsonb" json:"args"`
	Timestamp       string       `json:"timestamp"`
	CreatedAt       time.Time    `json:"created_at"`
}

func (SkippedEvent) TableName() string {
	return TableSkippedEvent
}
