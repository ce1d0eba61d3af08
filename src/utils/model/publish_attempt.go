package model

import (
	"time"
)

// Publication transaction that was sent but not yet reflected in the campaign row
type PublishAttempt struct {
	CampaignId      int64     `gorm:"primaryKey" json:"campaign_id"`
	TransactionHash string    `json:"transaction_hash"`
	Nonce           uint64    `json:"nonce"`
	SubmittedAt     time.Time `json:"submitted_at"`

	// Earlier transactions with the same nonce, any of them may still get mined
	ReplacedTransactionHashes []string `gorm:"serializer:json" json:"replaced_transaction_hashes"`
}

// Hashes of every transaction sent for this attempt, newest first
func (self *PublishAttempt) TransactionHashes() []string {
	out := []string{self.TransactionHash}
	for i := len(self.ReplacedTransactionHashes) - 1; i >= 0; i-- {
		out = append(out, self.ReplacedTransactionHashes[i])
	}
	return out
}

func (PublishAttempt) TableName() string {
	return TablePublishAttempt
}
