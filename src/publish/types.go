package publish

import (
	"context"
	"math/big"

	"github.com/donation-platform/ledger-worker/src/utils/model"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

type Request struct {
	OffChainId int64
	Title      string

	// EVM address or ledger account id
	TokenAddress string

	// Decimal string, must be integral
	Goal string

	// Ledger account id of the organizer
	OrganizerAccount string
}

type Result struct {
	OnchainId       int64
	TransactionHash string
}

// JSON-RPC access needed to build, send and confirm transactions
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend

	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
}

type AccountResolver interface {
	AccountToEvmAddress(ctx context.Context, accountId string) (string, error)
}

// Persistence of the in-flight marker
type AttemptStore interface {
	LoadPublishAttempt(ctx context.Context, campaignId int64) (*model.PublishAttempt, error)
	SavePublishAttempt(ctx context.Context, attempt *model.PublishAttempt) error
	DeletePublishAttempt(ctx context.Context, campaignId int64) error
}
