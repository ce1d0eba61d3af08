package model

import (
	"time"
)

type Campaign struct {
	Id                       int64          `gorm:"primaryKey" json:"id"`
	Title                    string         `json:"title"`
	Description              string         `json:"description"`
	Goal                     string         `gorm:"type:numeric(20,2)" json:"goal"`
	CurrentAmount            string         `gorm:"type:numeric(20,2)" json:"current_amount"`
	PercentageCompleted      string         `gorm:"type:numeric(10,2)" json:"percentage_completed"`
	Status                   CampaignStatus `json:"status"`
	ApprovedByAdmin          bool           `json:"approved_by_admin"`
	OnchainId                *int64         `json:"onchain_id"`
	TransactionHashCreate    *string        `json:"transaction_hash_create"`
	TransactionHashWithdrawn *string        `json:"transaction_hash_withdrawn"`
	TokenId                  *int64         `json:"token_id"`
	OrganizerId              int64          `json:"organizer_id"`
	CreatedAt                time.Time      `json:"created_at"`
	UpdatedAt                time.Time      `json:"updated_at"`
}

func (Campaign) TableName() string {
	return TableCampaign
}

// Approved campaign waiting for publication, joined with what the contract call needs
type PendingCampaign struct {
	Id                       int64
	Title                    string
	Goal                     string
	Status                   CampaignStatus
	TransactionHashWithdrawn *string
	TokenAddress             string
	TokenDecimal             int
	OrganizerWalletAddress   string
}

// Conditional change of the on-chain part of a campaign
type CampaignTransition struct {
	CampaignId int64

	// Written only when set
	OnchainId *int64

	Status CampaignStatus

	// Written only when set
	TransactionHashCreate    *string
	TransactionHashWithdrawn *string
}
