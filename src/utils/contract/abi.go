package contract

import (
	"bytes"
	_ "embed"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const (
	EventDonationReceived  = "DonationReceived"
	EventCampaignPublished = "CampaignPublished"
	EventCampaignClosed    = "CampaignClosed"
	EventFundsWithdrawn    = "FundsWithdrawn"

	MethodPublishAndApproveCampaign = "publishAndApproveCampaign"
)

//go:embed donation_platform.abi.json
var rawABI []byte

// Parsed ABI of the donation platform contract
func ABI() (abi.ABI, error) {
	return abi.JSON(bytes.NewReader(rawABI))
}
