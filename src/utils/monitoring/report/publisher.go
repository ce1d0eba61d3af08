package report

import "go.uber.org/atomic"

type PublisherErrors struct {
	Publish      atomic.Uint64 `json:"publish"`
	StatusUpdate atomic.Uint64 `json:"status_update"`
}

type PublisherState struct {
	CampaignsPending   atomic.Int64  `json:"campaigns_pending"`
	CampaignsPublished atomic.Uint64 `json:"campaigns_published"`
	InFlight           atomic.Uint64 `json:"in_flight"`
}

type PublisherReport struct {
	State  PublisherState  `json:"state"`
	Errors PublisherErrors `json:"errors"`
}
