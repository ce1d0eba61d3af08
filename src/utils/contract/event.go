package contract

import (
	"github.com/donation-platform/ledger-worker/src/utils/ledger"
)

// Decoded contract event. One of *DonationReceived, *CampaignPublished,
// *CampaignClosed or *GenericEvent.
type Event interface {
	Meta() *EventMeta
}

type EventMeta struct {
	Name string

	// Every parameter, decimal strings for integers and lowercase hex for addresses
	Args map[string]string

	TransactionHash string
	Timestamp       ledger.Timestamp
	Index           int
}

func (self *EventMeta) Meta() *EventMeta {
	return self
}

type DonationReceived struct {
	EventMeta

	// Lowercase 0x prefixed EVM address
	Donor      string
	CampaignId int64

	// Decimal string in token base units
	Amount string
}

type CampaignPublished struct {
	EventMeta
	OffChainId int64
	CampaignId int64
}

type CampaignClosed struct {
	EventMeta
	CampaignId int64
}

// Event present in the ABI, not handled by the reconciler
type GenericEvent struct {
	EventMeta
}
