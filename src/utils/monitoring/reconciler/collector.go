package monitor_reconciler

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Collector struct {
	monitor *Monitor

	// Run
	UpForSeconds *prometheus.Desc

	// Reconciler state
	CyclesCompleted              *prometheus.Desc
	LastSuccessfulCycleTimestamp *prometheus.Desc
	LogsFetched                  *prometheus.Desc
	DonationsUpserted            *prometheus.Desc
	CampaignsPublishedObserved   *prometheus.Desc
	CampaignsAdopted             *prometheus.Desc
	CampaignsClosed              *prometheus.Desc
	StatusUpdatesIgnored         *prometheus.Desc
	EventsSkipped                *prometheus.Desc
	CheckpointSeconds            *prometheus.Desc
	CheckpointLagSeconds         *prometheus.Desc
	AverageLogsPerMinute         *prometheus.Desc
	AverageCyclesPerMinute       *prometheus.Desc

	// Reconciler errors
	CheckpointLoadErrors    *prometheus.Desc
	CheckpointMissing       *prometheus.Desc
	CheckpointAdvanceErrors *prometheus.Desc
	FetchErrors             *prometheus.Desc
	DecodeErrors            *prometheus.Desc
	ResolveErrors           *prometheus.Desc
	StatusUpdateErrors      *prometheus.Desc
	DonationUpsertErrors    *prometheus.Desc
	FailedCycles            *prometheus.Desc

	// Publisher
	CampaignsPending      *prometheus.Desc
	CampaignsPublished    *prometheus.Desc
	PublishInFlight       *prometheus.Desc
	PublishErrors         *prometheus.Desc
	PublishedUpdateErrors *prometheus.Desc

	// Notifier
	MessagesPublished     *prometheus.Desc
	NotifierErrors        *prometheus.Desc
	NotifierPersistentErr *prometheus.Desc
}

func NewCollector() *Collector {
	return &Collector{
		// Run
		UpForSeconds: prometheus.NewDesc("up_for_seconds", "", nil, nil),

		// Reconciler state
		CyclesCompleted:              prometheus.NewDesc("reconciler_cycles_completed", "", nil, nil),
		LastSuccessfulCycleTimestamp: prometheus.NewDesc("reconciler_last_successful_cycle_timestamp", "", nil, nil),
		LogsFetched:                  prometheus.NewDesc("reconciler_logs_fetched", "", nil, nil),
		DonationsUpserted:            prometheus.NewDesc("reconciler_donations_upserted", "", nil, nil),
		CampaignsPublishedObserved:   prometheus.NewDesc("reconciler_campaigns_published_observed", "", nil, nil),
		CampaignsAdopted:             prometheus.NewDesc("reconciler_campaigns_adopted", "", nil, nil),
		CampaignsClosed:              prometheus.NewDesc("reconciler_campaigns_closed", "", nil, nil),
		StatusUpdatesIgnored:         prometheus.NewDesc("reconciler_status_updates_ignored", "", nil, nil),
		EventsSkipped:                prometheus.NewDesc("reconciler_events_skipped", "", nil, nil),
		CheckpointSeconds:            prometheus.NewDesc("reconciler_checkpoint_seconds", "", nil, nil),
		CheckpointLagSeconds:         prometheus.NewDesc("reconciler_checkpoint_lag_seconds", "", nil, nil),
		AverageLogsPerMinute:         prometheus.NewDesc("reconciler_average_logs_per_minute", "", nil, nil),
		AverageCyclesPerMinute:       prometheus.NewDesc("reconciler_average_cycles_per_minute", "", nil, nil),

		// Reconciler errors
		CheckpointLoadErrors:    prometheus.NewDesc("error_reconciler_checkpoint_load", "", nil, nil),
		CheckpointMissing:       prometheus.NewDesc("error_reconciler_checkpoint_missing", "", nil, nil),
		CheckpointAdvanceErrors: prometheus.NewDesc("error_reconciler_checkpoint_advance", "", nil, nil),
		FetchErrors:             prometheus.NewDesc("error_reconciler_fetch", "", nil, nil),
		DecodeErrors:            prometheus.NewDesc("error_reconciler_decode", "", nil, nil),
		ResolveErrors:           prometheus.NewDesc("error_reconciler_resolve", "", nil, nil),
		StatusUpdateErrors:      prometheus.NewDesc("error_reconciler_status_update", "", nil, nil),
		DonationUpsertErrors:    prometheus.NewDesc("error_reconciler_donation_upsert", "", nil, nil),
		FailedCycles:            prometheus.NewDesc("error_reconciler_failed_cycles", "", nil, nil),

		// Publisher
		CampaignsPending:      prometheus.NewDesc("publisher_campaigns_pending", "", nil, nil),
		CampaignsPublished:    prometheus.NewDesc("publisher_campaigns_published", "", nil, nil),
		PublishInFlight:       prometheus.NewDesc("publisher_in_flight", "", nil, nil),
		PublishErrors:         prometheus.NewDesc("error_publisher_publish", "", nil, nil),
		PublishedUpdateErrors: prometheus.NewDesc("error_publisher_status_update", "", nil, nil),

		// Notifier
		MessagesPublished:     prometheus.NewDesc("notifier_messages_published", "", nil, nil),
		NotifierErrors:        prometheus.NewDesc("error_notifier_publish", "", nil, nil),
		NotifierPersistentErr: prometheus.NewDesc("error_notifier_persistent", "", nil, nil),
	}
}

func (self *Collector) WithMonitor(m *Monitor) *Collector {
	self.monitor = m
	return self
}

func (self *Collector) Describe(ch chan<- *prometheus.Desc) {
	// Run
	ch <- self.UpForSeconds

	// Reconciler state
	ch <- self.CyclesCompleted
	ch <- self.LastSuccessfulCycleTimestamp
	ch <- self.LogsFetched
	ch <- self.DonationsUpserted
	ch <- self.CampaignsPublishedObserved
	ch <- self.CampaignsAdopted
	ch <- self.CampaignsClosed
	ch <- self.StatusUpdatesIgnored
	ch <- self.EventsSkipped
	ch <- self.CheckpointSeconds
	ch <- self.CheckpointLagSeconds
	ch <- self.AverageLogsPerMinute
	ch <- self.AverageCyclesPerMinute

	// Reconciler errors
	ch <- self.CheckpointLoadErrors
	ch <- self.CheckpointMissing
	ch <- self.CheckpointAdvanceErrors
	ch <- self.FetchErrors
	ch <- self.DecodeErrors
	ch <- self.ResolveErrors
	ch <- self.StatusUpdateErrors
	ch <- self.DonationUpsertErrors
	ch <- self.FailedCycles

	// Publisher
	ch <- self.CampaignsPending
	ch <- self.CampaignsPublished
	ch <- self.PublishInFlight
	ch <- self.PublishErrors
	ch <- self.PublishedUpdateErrors

	// Notifier
	ch <- self.MessagesPublished
	ch <- self.NotifierErrors
	ch <- self.NotifierPersistentErr
}

// Collect implements required collect function for all promehteus collectors
func (self *Collector) Collect(ch chan<- prometheus.Metric) {
	self.monitor.fill()

	r := &self.monitor.Report

	// Run
	ch <- prometheus.MustNewConstMetric(self.UpForSeconds, prometheus.GaugeValue, float64(r.Run.State.UpForSeconds.Load()))

	// Reconciler state
	ch <- prometheus.MustNewConstMetric(self.CyclesCompleted, prometheus.CounterValue, float64(r.Reconciler.State.CyclesCompleted.Load()))
	ch <- prometheus.MustNewConstMetric(self.LastSuccessfulCycleTimestamp, prometheus.GaugeValue, float64(r.Reconciler.State.LastSuccessfulCycleTimestamp.Load()))
	ch <- prometheus.MustNewConstMetric(self.LogsFetched, prometheus.CounterValue, float64(r.Reconciler.State.LogsFetched.Load()))
	ch <- prometheus.MustNewConstMetric(self.DonationsUpserted, prometheus.CounterValue, float64(r.Reconciler.State.DonationsUpserted.Load()))
	ch <- prometheus.MustNewConstMetric(self.CampaignsPublishedObserved, prometheus.CounterValue, float64(r.Reconciler.State.CampaignsPublishedObserved.Load()))
	ch <- prometheus.MustNewConstMetric(self.CampaignsAdopted, prometheus.CounterValue, float64(r.Reconciler.State.CampaignsAdopted.Load()))
	ch <- prometheus.MustNewConstMetric(self.CampaignsClosed, prometheus.CounterValue, float64(r.Reconciler.State.CampaignsClosed.Load()))
	ch <- prometheus.MustNewConstMetric(self.StatusUpdatesIgnored, prometheus.CounterValue, float64(r.Reconciler.State.StatusUpdatesIgnored.Load()))
	ch <- prometheus.MustNewConstMetric(self.EventsSkipped, prometheus.CounterValue, float64(r.Reconciler.State.EventsSkipped.Load()))
	ch <- prometheus.MustNewConstMetric(self.CheckpointSeconds, prometheus.GaugeValue, float64(r.Reconciler.State.CheckpointSeconds.Load()))
	ch <- prometheus.MustNewConstMetric(self.CheckpointLagSeconds, prometheus.GaugeValue, float64(r.Reconciler.State.CheckpointLagSeconds.Load()))
	ch <- prometheus.MustNewConstMetric(self.AverageLogsPerMinute, prometheus.GaugeValue, r.Reconciler.State.AverageLogsPerMinute.Load())
	ch <- prometheus.MustNewConstMetric(self.AverageCyclesPerMinute, prometheus.GaugeValue, r.Reconciler.State.AverageCyclesPerMinute.Load())

	// Reconciler errors
	ch <- prometheus.MustNewConstMetric(self.CheckpointLoadErrors, prometheus.CounterValue, float64(r.Reconciler.Errors.CheckpointLoad.Load()))
	ch <- prometheus.MustNewConstMetric(self.CheckpointMissing, prometheus.CounterValue, float64(r.Reconciler.Errors.CheckpointMissing.Load()))
	ch <- prometheus.MustNewConstMetric(self.CheckpointAdvanceErrors, prometheus.CounterValue, float64(r.Reconciler.Errors.CheckpointAdvance.Load()))
	ch <- prometheus.MustNewConstMetric(self.FetchErrors, prometheus.CounterValue, float64(r.Reconciler.Errors.Fetch.Load()))
	ch <- prometheus.MustNewConstMetric(self.DecodeErrors, prometheus.CounterValue, float64(r.Reconciler.Errors.Decode.Load()))
	ch <- prometheus.MustNewConstMetric(self.ResolveErrors, prometheus.CounterValue, float64(r.Reconciler.Errors.Resolve.Load()))
	ch <- prometheus.MustNewConstMetric(self.StatusUpdateErrors, prometheus.CounterValue, float64(r.Reconciler.Errors.StatusUpdate.Load()))
	ch <- prometheus.MustNewConstMetric(self.DonationUpsertErrors, prometheus.CounterValue, float64(r.Reconciler.Errors.DonationUpsert.Load()))
	ch <- prometheus.MustNewConstMetric(self.FailedCycles, prometheus.CounterValue, float64(r.Reconciler.Errors.FailedCycles.Load()))

	// Publisher
	ch <- prometheus.MustNewConstMetric(self.CampaignsPending, prometheus.GaugeValue, float64(r.Publisher.State.CampaignsPending.Load()))
	ch <- prometheus.MustNewConstMetric(self.CampaignsPublished, prometheus.CounterValue, float64(r.Publisher.State.CampaignsPublished.Load()))
	ch <- prometheus.MustNewConstMetric(self.PublishInFlight, prometheus.CounterValue, float64(r.Publisher.State.InFlight.Load()))
	ch <- prometheus.MustNewConstMetric(self.PublishErrors, prometheus.CounterValue, float64(r.Publisher.Errors.Publish.Load()))
	ch <- prometheus.MustNewConstMetric(self.PublishedUpdateErrors, prometheus.CounterValue, float64(r.Publisher.Errors.StatusUpdate.Load()))

	// Notifier
	ch <- prometheus.MustNewConstMetric(self.MessagesPublished, prometheus.CounterValue, float64(r.Notifier.State.MessagesPublished.Load()))
	ch <- prometheus.MustNewConstMetric(self.NotifierErrors, prometheus.CounterValue, float64(r.Notifier.Errors.Publish.Load()))
	ch <- prometheus.MustNewConstMetric(self.NotifierPersistentErr, prometheus.CounterValue, float64(r.Notifier.Errors.PersistentFailure.Load()))
}
