package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/donation-platform/ledger-worker/src/publish"
	"github.com/donation-platform/ledger-worker/src/store"
	"github.com/donation-platform/ledger-worker/src/utils/contract"
	"github.com/donation-platform/ledger-worker/src/utils/ledger"
	"github.com/donation-platform/ledger-worker/src/utils/mirror"
	"github.com/donation-platform/ledger-worker/src/utils/model"
	"github.com/donation-platform/ledger-worker/src/utils/notify"
)

// Decodes as a log with an unknown signature
type unknownEvent struct {
	contract.EventMeta
}

// Decodes as a malformed log
type malformedEvent struct {
	contract.EventMeta
}

// Log source and decoder backed by a list of events
type fakeLedger struct {
	mtx    sync.Mutex
	events []contract.Event
	err    error
	calls  []fetchCall
}

type fetchCall struct {
	from *ledger.Timestamp
	to   ledger.Timestamp
}

func (self *fakeLedger) add(event contract.Event) {
	self.mtx.Lock()
	defer self.mtx.Unlock()
	self.events = append(self.events, event)
}

func (self *fakeLedger) FetchLogs(ctx context.Context, contractId string, from *ledger.Timestamp, to ledger.Timestamp) (out []mirror.LogEntry, err error) {
	self.mtx.Lock()
	defer self.mtx.Unlock()

	self.calls = append(self.calls, fetchCall{from: from, to: to})
	if self.err != nil {
		return nil, fmt.Errorf("%w: %w", mirror.ErrRetryable, self.err)
	}

	for i, event := range self.events {
		meta := event.Meta()
		if from != nil && !meta.Timestamp.After(*from) {
			continue
		}
		if meta.Timestamp.After(to) {
			continue
		}
		out = append(out, mirror.LogEntry{
			Data:            strconv.Itoa(i),
			TransactionHash: meta.TransactionHash,
			Timestamp:       meta.Timestamp,
			Index:           meta.Index,
		})
	}
	return
}

func (self *fakeLedger) Decode(entry mirror.LogEntry) (contract.Event, error) {
	self.mtx.Lock()
	defer self.mtx.Unlock()

	idx, err := strconv.Atoi(entry.Data)
	if err != nil {
		return nil, contract.ErrMalformedLog
	}
	switch event := self.events[idx].(type) {
	case *unknownEvent:
		return nil, contract.ErrUnknownSignature
	case *malformedEvent:
		return nil, contract.ErrMalformedLog
	default:
		return event, nil
	}
}

type fakeResolver struct {
	mtx      sync.Mutex
	accounts map[string]string
	err      error
	calls    int
}

func (self *fakeResolver) EvmAddressToAccount(ctx context.Context, evmAddress string) (string, error) {
	self.mtx.Lock()
	defer self.mtx.Unlock()

	self.calls++
	if self.err != nil {
		return "", self.err
	}
	account, ok := self.accounts[evmAddress]
	if !ok {
		return "", mirror.ErrAccountNotFound
	}
	return account, nil
}

// In memory version of the database
type fakeStore struct {
	checkpoint *model.Checkpoint
	loadErr    error
	advanceErr error
	upsertErr  error

	users     []model.User
	campaigns map[int64]*model.Campaign
	donations map[model.DonationKey]model.DonationUpsert
	skipped   []model.SkippedEvent
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		campaigns: make(map[int64]*model.Campaign),
		donations: make(map[model.DonationKey]model.DonationUpsert),
	}
}

func (self *fakeStore) setCursor(ts ledger.Timestamp) {
	value := ts.String()
	self.checkpoint = &model.Checkpoint{Key: "crawl_onchain", Value: &value}
}

func (self *fakeStore) cursor() string {
	if self.checkpoint == nil || self.checkpoint.Value == nil {
		return ""
	}
	return *self.checkpoint.Value
}

func (self *fakeStore) LoadCheckpoint(ctx context.Context, key string) (*model.Checkpoint, error) {
	if self.loadErr != nil {
		return nil, self.loadErr
	}
	if self.checkpoint == nil {
		return nil, fmt.Errorf("%w: checkpoint %s", store.ErrNotFound, key)
	}
	out := *self.checkpoint
	return &out, nil
}

func (self *fakeStore) AdvanceCheckpoint(ctx context.Context, key string, cursor ledger.Timestamp) (bool, error) {
	if self.advanceErr != nil {
		return false, self.advanceErr
	}
	current, err := self.checkpoint.From()
	if err != nil {
		return false, err
	}
	if current != nil && !cursor.After(*current) {
		return false, nil
	}
	value := cursor.String()
	self.checkpoint.Value = &value
	return true, nil
}

func (self *fakeStore) FindUserByWalletAddress(ctx context.Context, address string) (*model.User, error) {
	for i := range self.users {
		if self.users[i].WalletAddress == address {
			return &self.users[i], nil
		}
	}
	return nil, fmt.Errorf("%w: user", store.ErrNotFound)
}

func (self *fakeStore) FindCampaignByOnchainId(ctx context.Context, onchainId int64) (*model.Campaign, error) {
	for _, c := range self.campaigns {
		if c.OnchainId != nil && *c.OnchainId == onchainId {
			out := *c
			return &out, nil
		}
	}
	return nil, fmt.Errorf("%w: campaign", store.ErrNotFound)
}

func (self *fakeStore) FindCampaignById(ctx context.Context, id int64) (*model.Campaign, error) {
	c, ok := self.campaigns[id]
	if !ok {
		return nil, fmt.Errorf("%w: campaign", store.ErrNotFound)
	}
	out := *c
	return &out, nil
}

func (self *fakeStore) FindApprovedUnpublishedCampaigns(ctx context.Context) (out []model.PendingCampaign, err error) {
	for _, c := range self.campaigns {
		if !c.ApprovedByAdmin || c.OnchainId != nil {
			continue
		}
		if c.Status != model.CampaignStatusNew && c.Status != model.CampaignStatusPending {
			continue
		}

		pending := model.PendingCampaign{
			Id:           c.Id,
			Title:        c.Title,
			Goal:         c.Goal,
			Status:       c.Status,
			TokenAddress: "0.0.6006",
		}
		for _, u := range self.users {
			if u.Id == c.OrganizerId {
				pending.OrganizerWalletAddress = u.WalletAddress
			}
		}
		out = append(out, pending)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return
}

func (self *fakeStore) UpdateCampaignOnchainState(ctx context.Context, transition model.CampaignTransition) (bool, error) {
	c, ok := self.campaigns[transition.CampaignId]
	if !ok {
		return false, nil
	}

	allowed := false
	for _, s := range model.Predecessors(transition.Status) {
		if c.Status == s {
			allowed = true
		}
	}
	if !allowed {
		return false, nil
	}
	if transition.OnchainId != nil && c.OnchainId != nil && *c.OnchainId != *transition.OnchainId {
		return false, nil
	}

	c.Status = transition.Status
	if transition.OnchainId != nil {
		id := *transition.OnchainId
		c.OnchainId = &id
	}
	if transition.TransactionHashCreate != nil {
		hash := *transition.TransactionHashCreate
		c.TransactionHashCreate = &hash
	}
	if transition.TransactionHashWithdrawn != nil {
		hash := *transition.TransactionHashWithdrawn
		c.TransactionHashWithdrawn = &hash
	}
	return true, nil
}

func (self *fakeStore) UpsertDonations(ctx context.Context, batch []model.DonationUpsert) error {
	if self.upsertErr != nil {
		return self.upsertErr
	}
	for _, d := range batch {
		self.donations[d.Key()] = d
	}
	return nil
}

func (self *fakeStore) RecordSkippedEvent(ctx context.Context, event *model.SkippedEvent) error {
	for _, s := range self.skipped {
		if s.TransactionHash == event.TransactionHash && s.EventName == event.EventName && s.LogIndex == event.LogIndex {
			return nil
		}
	}
	self.skipped = append(self.skipped, *event)
	return nil
}

type fakePublisher struct {
	results   map[int64]publish.Result
	err       error
	requests  []publish.Request
	confirmed []int64
}

func (self *fakePublisher) PublishCampaign(ctx context.Context, req publish.Request) (publish.Result, error) {
	self.requests = append(self.requests, req)
	if self.err != nil {
		return publish.Result{}, self.err
	}
	result, ok := self.results[req.OffChainId]
	if !ok {
		return publish.Result{}, fmt.Errorf("%w: no event", publish.ErrPublish)
	}
	return result, nil
}

func (self *fakePublisher) Confirm(ctx context.Context, campaignId int64) error {
	self.confirmed = append(self.confirmed, campaignId)
	return nil
}

type fakeNotifier struct {
	messages []*notify.Message
}

func (self *fakeNotifier) Notify(msg *notify.Message) {
	self.messages = append(self.messages, msg)
}

var errConnection = errors.New("connection refused")
