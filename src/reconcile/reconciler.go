package reconcile

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/donation-platform/ledger-worker/src/publish"
	"github.com/donation-platform/ledger-worker/src/store"
	"github.com/donation-platform/ledger-worker/src/utils/config"
	"github.com/donation-platform/ledger-worker/src/utils/contract"
	"github.com/donation-platform/ledger-worker/src/utils/ledger"
	"github.com/donation-platform/ledger-worker/src/utils/mirror"
	"github.com/donation-platform/ledger-worker/src/utils/model"
	"github.com/donation-platform/ledger-worker/src/utils/monitoring"
	"github.com/donation-platform/ledger-worker/src/utils/notify"
	"github.com/donation-platform/ledger-worker/src/utils/task"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
)

// Keeps the database in sync with one contract's log stream
// and publishes approved campaigns to it
type Reconciler struct {
	*task.Task

	contract config.Contract
	monitor  monitoring.Monitor

	source    LogSource
	decoder   EventDecoder
	resolver  AccountResolver
	store     Store
	locker    Locker
	publisher Publisher
	notifier  Notifier

	// Released after the reconciler stops
	release func()

	// Consecutive failures to load the checkpoint
	checkpointFailures int

	now func() time.Time
}

type CycleResult struct {
	Id string

	// Window (From, To]
	From *ledger.Timestamp
	To   ledger.Timestamp

	LogsFetched       int
	EventsSkipped     int
	StatusChanges     int
	DonationsUpserted int
	Published         int

	// Stored cursor after the cycle
	Cursor   ledger.Timestamp
	Advanced bool
}

// Outcome of applying the decoded events
type plan struct {
	donations []model.DonationUpsert

	// Index of each donation key in donations
	keys map[model.DonationKey]int

	statusChanges int
	skipped       int
}

func (self *plan) addDonation(donation model.DonationUpsert) {
	idx, ok := self.keys[donation.Key()]
	if ok {
		// Later event wins
		self.donations[idx] = donation
		return
	}
	self.keys[donation.Key()] = len(self.donations)
	self.donations = append(self.donations, donation)
}

func (self *plan) campaignIds() (out []int64) {
	seen := make(map[int64]struct{})
	for _, d := range self.donations {
		if _, ok := seen[d.CampaignId]; ok {
			continue
		}
		seen[d.CampaignId] = struct{}{}
		out = append(out, d.CampaignId)
	}
	return
}

func NewReconciler(config *config.Config, contract config.Contract) (self *Reconciler) {
	self = new(Reconciler)
	self.contract = contract
	self.now = time.Now

	self.Task = task.NewTask(config, "reconciler").
		WithOnBeforeStart(self.lock).
		WithOnAfterStop(self.unlock).
		WithSubtaskFunc(self.run).
		WithWorkerPool(config.Reconciler.ResolverNumWorkers, config.Reconciler.ResolverWorkerQueueSize)

	self.Log = self.Log.WithField("contract", contract.Key)

	return
}

func (self *Reconciler) WithMonitor(monitor monitoring.Monitor) *Reconciler {
	self.monitor = monitor
	return self
}

func (self *Reconciler) WithLogSource(source LogSource) *Reconciler {
	self.source = source
	return self
}

func (self *Reconciler) WithDecoder(decoder EventDecoder) *Reconciler {
	self.decoder = decoder
	return self
}

func (self *Reconciler) WithResolver(resolver AccountResolver) *Reconciler {
	self.resolver = resolver
	return self
}

func (self *Reconciler) WithStore(store Store) *Reconciler {
	self.store = store
	return self
}

// Reconciler runs only when it gets the lock for its checkpoint key
func (self *Reconciler) WithLocker(locker Locker) *Reconciler {
	self.locker = locker
	return self
}

// Without a publisher approved campaigns are left alone
func (self *Reconciler) WithPublisher(publisher Publisher) *Reconciler {
	self.publisher = publisher
	return self
}

func (self *Reconciler) WithNotifier(notifier Notifier) *Reconciler {
	self.notifier = notifier
	return self
}

func (self *Reconciler) lock() (err error) {
	if self.locker == nil {
		return
	}

	ctx, cancel := context.WithTimeout(self.Ctx, self.Config.Database.PingTimeout)
	defer cancel()

	self.release, err = self.locker.AcquireLock(ctx, self.contract.Key)
	if err != nil {
		self.Log.WithError(err).Error("Failed to acquire lock, another reconciler may be running")
	}
	return
}

func (self *Reconciler) unlock() {
	if self.release != nil {
		self.release()
	}
}

func (self *Reconciler) run() (err error) {
	for {
		if self.IsStopping.Load() {
			return nil
		}

		delay := self.Config.Reconciler.PollInterval

		_, err = self.RunCycle(self.Ctx)
		switch {
		case err == nil:
		case errors.Is(err, ErrCheckpointLoad):
			// Restart is the recovery
			return err
		case errors.Is(err, ErrCheckpointMissing):
			self.Log.Warn("Checkpoint not provisioned, waiting")
			delay = self.Config.Reconciler.CheckpointMissingBackoff
		case self.IsStopping.Load():
			return nil
		default:
			delay = self.Config.Reconciler.RetryDelay
		}

		if !self.Sleep(delay) {
			return nil
		}
	}
}

// Single pass: load checkpoint, fetch the window, apply events, publish pending campaigns, advance the cursor.
// Returns an error when the cursor was left untouched.
func (self *Reconciler) RunCycle(ctx context.Context) (out CycleResult, err error) {
	out.Id = xid.New().String()
	log := self.Log.WithField("cycle", out.Id)

	defer func() {
		if err != nil {
			self.monitor.GetReport().Reconciler.Errors.FailedCycles.Inc()
			if !errors.Is(err, ErrCheckpointMissing) {
				log.WithError(err).Warn("Cycle failed")
			}
			return
		}
		self.monitor.GetReport().Reconciler.State.CyclesCompleted.Inc()
		self.monitor.GetReport().Reconciler.State.LastSuccessfulCycleTimestamp.Store(time.Now().Unix())
	}()

	checkpoint, err := self.loadCheckpoint(ctx, log)
	if err != nil {
		return
	}

	out.From, out.To, err = self.window(checkpoint)
	if err != nil {
		return
	}

	var events []contract.Event
	events, out.LogsFetched, err = self.fetch(ctx, log, out.From, out.To)
	if err != nil {
		return
	}

	p, err := self.plan(ctx, log, events)
	if err != nil {
		return
	}
	out.StatusChanges = p.statusChanges
	out.EventsSkipped = p.skipped

	err = self.applyDonations(ctx, log, p)
	if err != nil {
		return
	}
	out.DonationsUpserted = len(p.donations)

	if self.IsStopping.Load() {
		err = context.Canceled
		return
	}

	out.Published = self.publishPending(ctx, log)

	out.Cursor, out.Advanced, err = self.advance(ctx, log, out.From, out.To)
	if err != nil {
		return
	}

	log.WithField("from", formatOptional(out.From)).
		WithField("to", out.To.String()).
		WithField("logs", out.LogsFetched).
		WithField("donations", out.DonationsUpserted).
		WithField("status_changes", out.StatusChanges).
		WithField("published", out.Published).
		Debug("Cycle done")
	return
}

func formatOptional(ts *ledger.Timestamp) string {
	if ts == nil {
		return "-"
	}
	return ts.String()
}

func (self *Reconciler) loadCheckpoint(ctx context.Context, log *logrus.Entry) (out *model.Checkpoint, err error) {
	out, err = self.store.LoadCheckpoint(ctx, self.contract.Key)
	if errors.Is(err, store.ErrNotFound) {
		self.checkpointFailures = 0
		self.monitor.GetReport().Reconciler.Errors.CheckpointMissing.Inc()
		return nil, fmt.Errorf("%w: %s", ErrCheckpointMissing, self.contract.Key)
	}
	if err == nil {
		// Cursor has to be readable too
		_, err = out.From()
	}
	if err != nil {
		self.checkpointFailures++
		self.monitor.GetReport().Reconciler.Errors.CheckpointLoad.Inc()
		log.WithError(err).WithField("failures", self.checkpointFailures).Error("Failed to load checkpoint")

		if self.checkpointFailures >= self.Config.Reconciler.MaxCheckpointLoadFailures {
			return nil, fmt.Errorf("%w: %d attempts: %w", ErrCheckpointLoad, self.checkpointFailures, err)
		}
		return nil, err
	}

	self.checkpointFailures = 0
	return
}

func (self *Reconciler) window(checkpoint *model.Checkpoint) (from *ledger.Timestamp, to ledger.Timestamp, err error) {
	from, err = checkpoint.From()
	if err != nil {
		return
	}
	to = ledger.FromTime(self.now())
	return
}

// Fetches logs in the window and decodes them in order. Entries that can't be decoded are skipped.
// Returns the decoded events and the number of raw log entries in the window
func (self *Reconciler) fetch(ctx context.Context, log *logrus.Entry, from *ledger.Timestamp, to ledger.Timestamp) (out []contract.Event, fetched int, err error) {
	if from != nil && !from.Before(to) {
		// Empty window
		return
	}

	entries, err := self.source.FetchLogs(ctx, self.contract.ContractId, from, to)
	if err != nil {
		self.monitor.GetReport().Reconciler.Errors.Fetch.Inc()
		return nil, 0, err
	}
	fetched = len(entries)
	self.monitor.GetReport().Reconciler.State.LogsFetched.Add(uint64(fetched))

	out = make([]contract.Event, 0, len(entries))
	for _, entry := range entries {
		event, err := self.decoder.Decode(entry)
		if err == nil {
			out = append(out, event)
			continue
		}

		entryLog := log.WithField("tx", entry.TransactionHash).WithField("index", entry.Index)
		if errors.Is(err, contract.ErrUnknownSignature) {
			entryLog.WithError(err).Warn("Skipping log with unknown signature")
			continue
		}

		self.monitor.GetReport().Reconciler.Errors.Decode.Inc()
		entryLog.WithError(err).WithField("topics", entry.Topics).WithField("data", entry.Data).Error("Failed to decode log")

		name := ""
		if len(entry.Topics) > 0 {
			name = entry.Topics[0]
		}
		err = self.skip(ctx, log, &contract.EventMeta{
			Name:            name,
			TransactionHash: entry.TransactionHash,
			Timestamp:       entry.Timestamp,
			Index:           entry.Index,
		}, model.SkipReasonMalformed)
		if err != nil {
			return nil, 0, err
		}
	}
	return
}

// Resolves donors in parallel to warm up the resolver cache. Results are consumed in order later on.
func (self *Reconciler) prefetch(ctx context.Context, events []contract.Event) {
	if self.Workers == nil {
		return
	}

	var wg sync.WaitGroup
	seen := make(map[string]struct{})
	for _, event := range events {
		donation, ok := event.(*contract.DonationReceived)
		if !ok {
			continue
		}
		if _, ok := seen[donation.Donor]; ok {
			continue
		}
		seen[donation.Donor] = struct{}{}

		donor := donation.Donor
		wg.Add(1)
		queued := self.SubmitToWorker(func() {
			defer wg.Done()
			_, _ = self.resolver.EvmAddressToAccount(ctx, donor)
		})
		if !queued {
			wg.Done()
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Applies events strictly in order. Status transitions are written right away, donations are batched.
func (self *Reconciler) plan(ctx context.Context, log *logrus.Entry, events []contract.Event) (out *plan, err error) {
	out = &plan{keys: make(map[model.DonationKey]int)}

	self.prefetch(ctx, events)

	for _, event := range events {
		if self.IsStopping.Load() {
			return nil, context.Canceled
		}

		meta := event.Meta()
		eventLog := log.WithField("event", meta.Name).WithField("tx", meta.TransactionHash)

		var (
			changed bool
			reason  model.SkipReason
		)
		switch e := event.(type) {
		case *contract.DonationReceived:
			reason, err = self.onDonationReceived(ctx, eventLog, out, e)
		case *contract.CampaignPublished:
			changed, reason, err = self.onCampaignPublished(ctx, eventLog, e)
		case *contract.CampaignClosed:
			changed, reason, err = self.onCampaignClosed(ctx, eventLog, e)
		default:
			eventLog.Debug("Event not handled")
		}
		if err != nil {
			return nil, err
		}

		if changed {
			out.statusChanges++
		}

		if reason != "" {
			out.skipped++
			err = self.skip(ctx, eventLog, meta, reason)
			if err != nil {
				return nil, err
			}
		}
	}

	return
}

func (self *Reconciler) onDonationReceived(ctx context.Context, log *logrus.Entry, p *plan, event *contract.DonationReceived) (reason model.SkipReason, err error) {
	log = log.WithField("donor", event.Donor).WithField("campaign_onchain_id", event.CampaignId)

	amount, ok := new(big.Int).SetString(event.Amount, 10)
	if !ok || amount.Sign() < 0 {
		log.WithField("amount", event.Amount).Warn("Skipping donation with invalid amount")
		return model.SkipReasonInvalidAmount, nil
	}

	account, err := self.resolver.EvmAddressToAccount(ctx, event.Donor)
	if errors.Is(err, mirror.ErrAccountNotFound) {
		log.Warn("Skipping donation from unknown account")
		return model.SkipReasonUnknownDonor, nil
	}
	if err != nil {
		self.monitor.GetReport().Reconciler.Errors.Resolve.Inc()
		return "", err
	}

	user, err := self.store.FindUserByWalletAddress(ctx, account)
	if errors.Is(err, store.ErrNotFound) {
		log.WithField("account", account).Warn("Skipping donation from unknown user")
		return model.SkipReasonUnknownDonor, nil
	}
	if err != nil {
		return "", err
	}

	campaign, err := self.store.FindCampaignByOnchainId(ctx, event.CampaignId)
	if errors.Is(err, store.ErrNotFound) {
		log.Warn("Skipping donation to unknown campaign")
		return model.SkipReasonUnknownCampaign, nil
	}
	if err != nil {
		return "", err
	}

	p.addDonation(model.DonationUpsert{
		CampaignId:      campaign.Id,
		UserId:          user.Id,
		TransactionHash: event.TransactionHash,
		Amount:          amount.String(),
		Date:            event.Timestamp.Time(),
	})
	return
}

func (self *Reconciler) onCampaignPublished(ctx context.Context, log *logrus.Entry, event *contract.CampaignPublished) (changed bool, reason model.SkipReason, err error) {
	self.monitor.GetReport().Reconciler.State.CampaignsPublishedObserved.Inc()
	log = log.WithField("campaign_onchain_id", event.CampaignId).WithField("off_chain_id", event.OffChainId)

	hash := event.TransactionHash
	campaign, err := self.store.FindCampaignByOnchainId(ctx, event.CampaignId)
	if err == nil {
		changed, err = self.transition(ctx, log, model.CampaignTransition{
			CampaignId:            campaign.Id,
			Status:                model.CampaignStatusPublished,
			TransactionHashCreate: &hash,
		})
		return
	}
	if !errors.Is(err, store.ErrNotFound) {
		return
	}

	// Published but the result was never stored, adopt the campaign by its off-chain id
	campaign, err = self.store.FindCampaignById(ctx, event.OffChainId)
	if errors.Is(err, store.ErrNotFound) || (err == nil && (campaign.OnchainId != nil || !campaign.ApprovedByAdmin)) {
		log.Warn("Skipping publication of unknown campaign")
		return false, model.SkipReasonUnknownCampaign, nil
	}
	if err != nil {
		return
	}

	onchainId := event.CampaignId
	changed, err = self.transition(ctx, log, model.CampaignTransition{
		CampaignId:            campaign.Id,
		OnchainId:             &onchainId,
		Status:                model.CampaignStatusPublished,
		TransactionHashCreate: &hash,
	})
	if err != nil || !changed {
		return
	}

	log.Info("Adopted published campaign")
	self.monitor.GetReport().Reconciler.State.CampaignsAdopted.Inc()
	self.confirm(ctx, log, campaign.Id)
	return
}

func (self *Reconciler) onCampaignClosed(ctx context.Context, log *logrus.Entry, event *contract.CampaignClosed) (changed bool, reason model.SkipReason, err error) {
	log = log.WithField("campaign_onchain_id", event.CampaignId)

	campaign, err := self.store.FindCampaignByOnchainId(ctx, event.CampaignId)
	if errors.Is(err, store.ErrNotFound) {
		log.Warn("Skipping closing of unknown campaign")
		return false, model.SkipReasonUnknownCampaign, nil
	}
	if err != nil {
		return
	}

	hash := event.TransactionHash
	changed, err = self.transition(ctx, log, model.CampaignTransition{
		CampaignId:               campaign.Id,
		Status:                   model.CampaignStatusClosed,
		TransactionHashWithdrawn: &hash,
	})
	if changed {
		self.monitor.GetReport().Reconciler.State.CampaignsClosed.Inc()
	}
	return
}

// Conditional status update, no change is a replay or a lost race
func (self *Reconciler) transition(ctx context.Context, log *logrus.Entry, transition model.CampaignTransition) (changed bool, err error) {
	log = log.WithField("campaign_id", transition.CampaignId).WithField("status", transition.Status)

	changed, err = self.store.UpdateCampaignOnchainState(ctx, transition)
	if err != nil {
		self.monitor.GetReport().Reconciler.Errors.StatusUpdate.Inc()
		log.WithError(err).Error("Failed to update campaign")
		return
	}

	if !changed {
		self.monitor.GetReport().Reconciler.State.StatusUpdatesIgnored.Inc()
		log.Debug("Campaign not in a preceding status, ignoring")
		return
	}

	log.Info("Campaign status changed")

	var hash string
	if transition.TransactionHashCreate != nil {
		hash = *transition.TransactionHashCreate
	} else if transition.TransactionHashWithdrawn != nil {
		hash = *transition.TransactionHashWithdrawn
	}
	self.notify(&notify.Message{
		Kind:            notify.KindCampaignStatus,
		ContractKey:     self.contract.Key,
		CampaignIds:     []int64{transition.CampaignId},
		Status:          string(transition.Status),
		TransactionHash: hash,
	})
	return
}

// Keeps a dropped event for manual replay
func (self *Reconciler) skip(ctx context.Context, log *logrus.Entry, meta *contract.EventMeta, reason model.SkipReason) (err error) {
	self.monitor.GetReport().Reconciler.State.EventsSkipped.Inc()

	event := &model.SkippedEvent{
		CheckpointKey:   self.contract.Key,
		TransactionHash: meta.TransactionHash,
		EventName:       meta.Name,
		LogIndex:        meta.Index,
		Reason:          reason,
		Timestamp:       meta.Timestamp.String(),
	}

	args := meta.Args
	if args == nil {
		args = map[string]string{}
	}
	err = event.Args.Set(args)
	if err != nil {
		return
	}

	err = self.store.RecordSkippedEvent(ctx, event)
	if err != nil {
		log.WithError(err).WithField("reason", reason).Error("Failed to record skipped event")
	}
	return
}

func (self *Reconciler) applyDonations(ctx context.Context, log *logrus.Entry, p *plan) (err error) {
	if len(p.donations) == 0 {
		return
	}

	err = self.store.UpsertDonations(ctx, p.donations)
	if err != nil {
		self.monitor.GetReport().Reconciler.Errors.DonationUpsert.Inc()
		log.WithError(err).WithField("count", len(p.donations)).Error("Failed to upsert donations")
		return
	}

	self.monitor.GetReport().Reconciler.State.DonationsUpserted.Add(uint64(len(p.donations)))

	self.notify(&notify.Message{
		Kind:        notify.KindDonations,
		ContractKey: self.contract.Key,
		CampaignIds: p.campaignIds(),
	})
	return
}

// Publishes approved campaigns one by one. Failures are retried next cycle and don't affect the cursor.
func (self *Reconciler) publishPending(ctx context.Context, log *logrus.Entry) (published int) {
	if self.publisher == nil {
		return
	}

	campaigns, err := self.store.FindApprovedUnpublishedCampaigns(ctx)
	if err != nil {
		log.WithError(err).Warn("Failed to list campaigns to publish")
		return
	}
	self.monitor.GetReport().Publisher.State.CampaignsPending.Store(int64(len(campaigns)))

	for _, campaign := range campaigns {
		if self.IsStopping.Load() {
			return
		}

		campaignLog := log.WithField("campaign_id", campaign.Id)

		result, err := self.publisher.PublishCampaign(ctx, publish.Request{
			OffChainId:       campaign.Id,
			Title:            campaign.Title,
			TokenAddress:     campaign.TokenAddress,
			Goal:             campaign.Goal,
			OrganizerAccount: campaign.OrganizerWalletAddress,
		})
		if errors.Is(err, publish.ErrInFlight) {
			self.monitor.GetReport().Publisher.State.InFlight.Inc()
			campaignLog.WithError(err).Info("Publication not confirmed yet")
			continue
		}
		if err != nil {
			self.monitor.GetReport().Publisher.Errors.Publish.Inc()
			campaignLog.WithError(err).Warn("Failed to publish campaign")
			continue
		}

		campaignLog = campaignLog.WithField("onchain_id", result.OnchainId).WithField("tx", result.TransactionHash)

		onchainId := result.OnchainId
		hash := result.TransactionHash
		_, err = self.transition(ctx, campaignLog, model.CampaignTransition{
			CampaignId:            campaign.Id,
			OnchainId:             &onchainId,
			Status:                model.CampaignStatusPublished,
			TransactionHashCreate: &hash,
		})
		if err != nil {
			// Attempt stays, next cycle picks up the mined transaction
			self.monitor.GetReport().Publisher.Errors.StatusUpdate.Inc()
			continue
		}

		published++
		self.monitor.GetReport().Publisher.State.CampaignsPublished.Inc()
		self.confirm(ctx, campaignLog, campaign.Id)
	}
	return
}

func (self *Reconciler) confirm(ctx context.Context, log *logrus.Entry, campaignId int64) {
	if self.publisher == nil {
		return
	}

	err := self.publisher.Confirm(ctx, campaignId)
	if err != nil {
		log.WithError(err).Warn("Failed to clear publish attempt")
	}
}

// Moves the cursor to the window's end minus the safety margin, never backwards
func (self *Reconciler) advance(ctx context.Context, log *logrus.Entry, from *ledger.Timestamp, to ledger.Timestamp) (cursor ledger.Timestamp, advanced bool, err error) {
	cursor = to.Add(-self.Config.Reconciler.SafetyMargin)
	if from != nil && !cursor.After(*from) {
		return *from, false, nil
	}

	err = task.NewRetry().
		WithContext(ctx).
		WithMaxElapsedTime(self.Config.Reconciler.RetryDelay).
		WithOnError(func(err error) error {
			if !errors.Is(err, store.ErrRetryable) {
				return backoff.Permanent(err)
			}
			log.WithError(err).Warn("Failed to advance checkpoint, retrying")
			return err
		}).
		Run(func() (err error) {
			advanced, err = self.store.AdvanceCheckpoint(ctx, self.contract.Key, cursor)
			return
		})
	if err != nil {
		self.monitor.GetReport().Reconciler.Errors.CheckpointAdvance.Inc()
		log.WithError(err).Error("Failed to advance checkpoint")
		return
	}

	self.monitor.GetReport().Reconciler.State.CheckpointSeconds.Store(cursor.Time().Unix())
	return
}

func (self *Reconciler) notify(msg *notify.Message) {
	if self.notifier == nil {
		return
	}
	self.notifier.Notify(msg)
}
