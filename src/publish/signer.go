package publish

import (
	"context"
	"math/big"
	"sync"

	"github.com/donation-platform/ledger-worker/src/utils/config"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/ratelimit"
)

// Worker account shared by all publishers of the process.
// One account means one nonce sequence, so submissions are serialized.
type Signer struct {
	mtx     sync.Mutex
	opts    *bind.TransactOpts
	limiter ratelimit.Limiter
}

func NewSigner(config *config.Config, opts *bind.TransactOpts) (self *Signer) {
	self = new(Signer)
	self.opts = opts

	if config.Publisher.MaxTransactionsPerSecond > 0 {
		self.limiter = ratelimit.New(config.Publisher.MaxTransactionsPerSecond)
	} else {
		self.limiter = ratelimit.NewUnlimited()
	}
	return
}

func (self *Signer) Address() common.Address {
	return self.opts.From
}

// Takes the submission slot, caller must call the returned function when done
func (self *Signer) acquire() (release func()) {
	self.mtx.Lock()
	self.limiter.Take()
	return self.mtx.Unlock
}

// Options for building a signed transaction without sending it
func (self *Signer) transactOpts(ctx context.Context, gasLimit uint64, nonce *uint64, gasPrice *big.Int) *bind.TransactOpts {
	opts := &bind.TransactOpts{
		From:     self.opts.From,
		Signer:   self.opts.Signer,
		Context:  ctx,
		GasLimit: gasLimit,
		NoSend:   true,
		GasPrice: gasPrice,
	}
	if nonce != nil {
		opts.Nonce = new(big.Int).SetUint64(*nonce)
	}
	return opts
}
