package report

import "go.uber.org/atomic"

type ReconcilerErrors struct {
	CheckpointLoad    atomic.Uint64 `json:"checkpoint_load"`
	CheckpointMissing atomic.Uint64 `json:"checkpoint_missing"`
	CheckpointAdvance atomic.Uint64 `json:"checkpoint_advance"`
	Fetch             atomic.Uint64 `json:"fetch"`
	Decode            atomic.Uint64 `json:"decode"`
	Resolve           atomic.Uint64 `json:"resolve"`
	StatusUpdate      atomic.Uint64 `json:"status_update"`
	DonationUpsert    atomic.Uint64 `json:"donation_upsert"`
	FailedCycles      atomic.Uint64 `json:"failed_cycles"`
}

type ReconcilerState struct {
	CyclesCompleted              atomic.Uint64  `json:"cycles_completed"`
	LastSuccessfulCycleTimestamp atomic.Int64   `json:"last_successful_cycle_timestamp"`
	LogsFetched                  atomic.Uint64  `json:"logs_fetched"`
	DonationsUpserted            atomic.Uint64  `json:"donations_upserted"`
	CampaignsPublishedObserved   atomic.Uint64  `json:"campaigns_published_observed"`
	CampaignsAdopted             atomic.Uint64  `json:"campaigns_adopted"`
	CampaignsClosed              atomic.Uint64  `json:"campaigns_closed"`
	StatusUpdatesIgnored         atomic.Uint64  `json:"status_updates_ignored"`
	EventsSkipped                atomic.Uint64  `json:"events_skipped"`
	CheckpointSeconds            atomic.Int64   `json:"checkpoint_seconds"`
	CheckpointLagSeconds         atomic.Int64   `json:"checkpoint_lag_seconds"`
	AverageLogsPerMinute         atomic.Float64 `json:"average_logs_per_minute"`
	AverageCyclesPerMinute       atomic.Float64 `json:"average_cycles_per_minute"`
}

type ReconcilerReport struct {
	State  ReconcilerState  `json:"state"`
	Errors ReconcilerErrors `json:"errors"`
}
