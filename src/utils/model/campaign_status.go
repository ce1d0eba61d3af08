package model

import "slices"

type CampaignStatus string

const (
	CampaignStatusNew       CampaignStatus = "NEW"
	CampaignStatusPending   CampaignStatus = "PENDING"
	CampaignStatusPublished CampaignStatus = "PUBLISHED"
	CampaignStatusClosed    CampaignStatus = "CLOSED"
)

// Forward-only state machine
var campaignTransitions = map[CampaignStatus][]CampaignStatus{
	CampaignStatusNew:       {CampaignStatusPending, CampaignStatusPublished},
	CampaignStatusPending:   {CampaignStatusPublished},
	CampaignStatusPublished: {CampaignStatusClosed},
	CampaignStatusClosed:    {},
}

func (self CampaignStatus) IsValid() bool {
	_, ok := campaignTransitions[self]
	return ok
}

func (self CampaignStatus) CanTransitionTo(next CampaignStatus) bool {
	return slices.Contains(campaignTransitions[self], next)
}

// Statuses that carry an on-chain id
func (self CampaignStatus) IsOnchain() bool {
	return self == CampaignStatusPublished || self == CampaignStatusClosed
}

// Statuses from which next is reachable in one step
func Predecessors(next CampaignStatus) (out []CampaignStatus) {
	// Stable order, used in SQL
	for _, status := range []CampaignStatus{CampaignStatusNew, CampaignStatusPending, CampaignStatusPublished, CampaignStatusClosed} {
		if status.CanTransitionTo(next) {
			out = append(out, status)
		}
	}
	return
}
