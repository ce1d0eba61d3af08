package reconcile

import (
	"context"

	"github.com/donation-platform/ledger-worker/src/publish"
	"github.com/donation-platform/ledger-worker/src/utils/contract"
	"github.com/donation-platform/ledger-worker/src/utils/ledger"
	"github.com/donation-platform/ledger-worker/src/utils/mirror"
	"github.com/donation-platform/ledger-worker/src/utils/model"
	"github.com/donation-platform/ledger-worker/src/utils/notify"
)

type LogSource interface {
	FetchLogs(ctx context.Context, contractId string, from *ledger.Timestamp, to ledger.Timestamp) ([]mirror.LogEntry, error)
}

type EventDecoder interface {
	Decode(entry mirror.LogEntry) (contract.Event, error)
}

type AccountResolver interface {
	EvmAddressToAccount(ctx context.Context, evmAddress string) (string, error)
}

type Store interface {
	LoadCheckpoint(ctx context.Context, key string) (*model.Checkpoint, error)
	AdvanceCheckpoint(ctx context.Context, key string, cursor ledger.Timestamp) (bool, error)

	FindUserByWalletAddress(ctx context.Context, address string) (*model.User, error)
	FindCampaignByOnchainId(ctx context.Context, onchainId int64) (*model.Campaign, error)
	FindCampaignById(ctx context.Context, id int64) (*model.Campaign, error)
	FindApprovedUnpublishedCampaigns(ctx context.Context) ([]model.PendingCampaign, error)

	UpdateCampaignOnchainState(ctx context.Context, transition model.CampaignTransition) (bool, error)
	UpsertDonations(ctx context.Context, batch []model.DonationUpsert) error
	RecordSkippedEvent(ctx context.Context, event *model.SkippedEvent) error
}

type Locker interface {
	AcquireLock(ctx context.Context, key string) (release func(), err error)
}

type Publisher interface {
	PublishCampaign(ctx context.Context, req publish.Request) (publish.Result, error)
	Confirm(ctx context.Context, campaignId int64) error
}

type Notifier interface {
	Notify(msg *notify.Message)
}
