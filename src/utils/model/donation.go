package model

import (
	"time"
)

type Donation struct {
	Id              int64     `gorm:"primaryKey" json:"id"`
	CampaignId      int64     `json:"campaign_id"`
	UserId          int64     `json:"user_id"`
	TransactionHash string    `json:"transaction_hash"`
	Amount          string    `gorm:"type:numeric" json:"amount"`
	Date            time.Time `json:"date"`
}

func (Donation) TableName() string {
	return TableDonation
}

// Insert-or-merge on (CampaignId, UserId, TransactionHash)
type DonationUpsert struct {
	CampaignId      int64
	UserId          int64
	TransactionHash string

	// Decimal string, merged in place on conflict
	Amount string

	// Merged in place on conflict
	Date time.Time
}

type DonationKey struct {
	CampaignId      int64
	UserId          int64
	TransactionHash string
}

func (self *DonationUpsert) Key() DonationKey {
	return DonationKey{
		CampaignId:      self.CampaignId,
		UserId:          self.UserId,
		TransactionHash: self.TransactionHash,
	}
}
