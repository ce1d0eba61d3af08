package notify

import (
	"encoding/json"
)

type Kind string

const (
	KindCampaignStatus Kind = "campaign_status"
	KindDonations      Kind = "donations"
)

// Change notification sent to the UI cache
type Message struct {
	Kind            Kind    `json:"kind"`
	ContractKey     string  `json:"contract"`
	CampaignIds     []int64 `json:"campaign_ids"`
	Status          string  `json:"status,omitempty"`
	TransactionHash string  `json:"transaction_hash,omitempty"`
}

func (self *Message) MarshalBinary() (data []byte, err error) {
	return json.Marshal(self)
}
