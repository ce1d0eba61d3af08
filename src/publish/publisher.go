package publish

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/donation-platform/ledger-worker/src/store"
	"github.com/donation-platform/ledger-worker/src/utils/config"
	"github.com/donation-platform/ledger-worker/src/utils/contract"
	"github.com/donation-platform/ledger-worker/src/utils/logger"
	"github.com/donation-platform/ledger-worker/src/utils/model"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
)

// Publishes approved campaigns to one contract
type Publisher struct {
	config *config.Config
	log    *logrus.Entry

	backend  Backend
	address  common.Address
	contract *bind.BoundContract
	decoder  *contract.Decoder
	signer   *Signer
	resolver AccountResolver
	attempts AttemptStore

	now func() time.Time
}

func NewPublisher(config *config.Config) (self *Publisher) {
	self = new(Publisher)
	self.config = config
	self.log = logger.NewSublogger("publisher")
	self.now = time.Now
	return
}

func (self *Publisher) WithBackend(backend Backend) *Publisher {
	self.backend = backend
	return self
}

func (self *Publisher) WithContract(address common.Address, decoder *contract.Decoder) *Publisher {
	self.address = address
	self.decoder = decoder
	self.log = self.log.WithField("contract", address.Hex())
	return self
}

func (self *Publisher) WithSigner(signer *Signer) *Publisher {
	self.signer = signer
	return self
}

func (self *Publisher) WithResolver(resolver AccountResolver) *Publisher {
	self.resolver = resolver
	return self
}

func (self *Publisher) WithAttemptStore(attempts AttemptStore) *Publisher {
	self.attempts = attempts
	return self
}

func (self *Publisher) bound() *bind.BoundContract {
	if self.contract == nil {
		self.contract = bind.NewBoundContract(self.address, *self.decoder.ABI(), self.backend, self.backend, self.backend)
	}
	return self.contract
}

// Publishes the campaign and waits for the CampaignPublished event in the receipt.
// A transaction sent in an earlier run is finalized instead of being sent again.
func (self *Publisher) PublishCampaign(ctx context.Context, req Request) (out Result, err error) {
	log := self.log.WithField("campaign_id", req.OffChainId)

	var (
		nonce    *uint64
		replaced []string
	)
	attempt, err := self.attempts.LoadPublishAttempt(ctx, req.OffChainId)
	switch {
	case errors.Is(err, store.ErrNotFound):
		// Nothing in flight
	case err != nil:
		return
	default:
		var (
			done    bool
			replace *model.PublishAttempt
		)
		out, done, replace, err = self.recoverAttempt(ctx, log, attempt)
		if done || err != nil {
			return
		}
		if replace != nil {
			nonce = &replace.Nonce
			replaced = append(append([]string{}, replace.ReplacedTransactionHashes...), replace.TransactionHash)
		}
	}

	args, err := self.arguments(ctx, req)
	if err != nil {
		log.WithError(err).Warn("Invalid campaign, can't publish")
		return
	}

	release := self.signer.acquire()
	defer release()

	var gasPrice *big.Int
	if nonce != nil {
		gasPrice, err = self.replacementGasPrice(ctx)
		if err != nil {
			return
		}
	}

	tx, err := self.build(ctx, nonce, gasPrice, args...)
	if err != nil {
		err = fmt.Errorf("%w: build transaction: %s", ErrPublish, err.Error())
		return
	}

	// Marker goes first, a crash after sending must not lead to a second publication
	err = self.attempts.SavePublishAttempt(ctx, &model.PublishAttempt{
		CampaignId:      req.OffChainId,
		TransactionHash: tx.Hash().Hex(),
		Nonce:           tx.Nonce(),
		SubmittedAt:     self.now(),

		ReplacedTransactionHashes: replaced,
	})
	if err != nil {
		return
	}

	log = log.WithField("tx", tx.Hash().Hex()).WithField("nonce", tx.Nonce())
	log.Info("Sending publish transaction")

	err = self.send(ctx, tx)
	if err != nil {
		switch {
		case isTimeout(err):
			// May have reached the node, the marker stays
		case attempt != nil && nonce != nil:
			// Replacement rejected, the expired transaction may still land
			self.restore(ctx, log, attempt)
		default:
			// Rejected, nothing is in flight
			self.clear(ctx, log, req.OffChainId)
		}
		err = fmt.Errorf("%w: send transaction: %s", ErrPublish, err.Error())
		return
	}

	receiptCtx, cancel := context.WithTimeout(ctx, self.config.Publisher.ReceiptTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(receiptCtx, self.backend, tx)
	if err != nil {
		log.WithError(err).Warn("Receipt not available yet, will check in the next cycle")
		err = fmt.Errorf("%w: %s", ErrInFlight, err.Error())
		return
	}

	out, err = self.result(ctx, log, req.OffChainId, receipt)
	return
}

// Removes the in-flight marker once the result is persisted
func (self *Publisher) Confirm(ctx context.Context, campaignId int64) error {
	return self.attempts.DeletePublishAttempt(ctx, campaignId)
}

// Checks the outcome of earlier transactions for the campaign.
// Returns done=true with the result when one of them was mined with the event.
// Returns the attempt to replace when its nonce wasn't mined yet.
func (self *Publisher) recoverAttempt(ctx context.Context, log *logrus.Entry, attempt *model.PublishAttempt) (out Result, done bool, replace *model.PublishAttempt, err error) {
	log = log.WithField("tx", attempt.TransactionHash).WithField("nonce", attempt.Nonce)

	for _, hash := range attempt.TransactionHashes() {
		receipt, err := self.backend.TransactionReceipt(ctx, common.HexToHash(hash))
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return out, false, nil, fmt.Errorf("%w: receipt of %s: %s", ErrPublish, hash, err.Error())
		}
		if err != nil || receipt == nil {
			continue
		}

		log.WithField("mined_tx", hash).Info("Earlier publish transaction was mined")
		out, err = self.result(ctx, log, attempt.CampaignId, receipt)
		if errors.Is(err, ErrPublish) {
			// Reverted, submit again
			return out, false, nil, nil
		}
		return out, err == nil, nil, err
	}

	age := self.now().Sub(attempt.SubmittedAt)
	if age < self.config.Publisher.AttemptExpiry {
		log.WithField("age", age).Debug("Publish transaction still pending")
		err = ErrInFlight
		return
	}

	// Pending nonce would count the expired transaction itself, only mined ones tell it can't land anymore
	mined, err := self.backend.NonceAt(ctx, self.signer.Address(), nil)
	if err != nil {
		err = fmt.Errorf("%w: mined nonce: %s", ErrPublish, err.Error())
		return
	}

	if mined <= attempt.Nonce {
		// Same nonce keeps at most one of the transactions valid
		log.WithField("mined_nonce", mined).Warn("Publish transaction expired, replacing it")
		replace = attempt
		return
	}

	log.WithField("mined_nonce", mined).Warn("Publish transaction expired and its nonce was used by another transaction, submitting again")
	self.clear(ctx, log, attempt.CampaignId)
	return
}

// Replacing a transaction with the same nonce needs a higher price
func (self *Publisher) replacementGasPrice(ctx context.Context) (*big.Int, error) {
	price, err := self.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: gas price: %s", ErrPublish, err.Error())
	}
	bump := new(big.Int).Mul(price, big.NewInt(self.config.Publisher.ReplacementGasPriceBump))
	bump.Div(bump, big.NewInt(100))
	return price.Add(price, bump), nil
}

func (self *Publisher) build(ctx context.Context, nonce *uint64, gasPrice *big.Int, args ...interface{}) (tx *types.Transaction, err error) {
	submitCtx, cancel := context.WithTimeout(ctx, self.config.Publisher.SubmitTimeout)
	defer cancel()

	opts := self.signer.transactOpts(submitCtx, self.config.Publisher.GasLimit, nonce, gasPrice)
	return self.bound().Transact(opts, contract.MethodPublishAndApproveCampaign, args...)
}

func (self *Publisher) send(ctx context.Context, tx *types.Transaction) error {
	submitCtx, cancel := context.WithTimeout(ctx, self.config.Publisher.SubmitTimeout)
	defer cancel()
	return self.backend.SendTransaction(submitCtx, tx)
}

func (self *Publisher) result(ctx context.Context, log *logrus.Entry, offChainId int64, receipt *types.Receipt) (out Result, err error) {
	out.TransactionHash = receipt.TxHash.Hex()

	if receipt.Status != types.ReceiptStatusSuccessful {
		self.clear(ctx, log, offChainId)
		err = fmt.Errorf("%w: transaction %s reverted", ErrPublish, out.TransactionHash)
		return
	}

	for _, l := range receipt.Logs {
		if l.Address != self.address {
			continue
		}
		event, err := self.decoder.DecodeReceiptLog(l)
		if err != nil {
			continue
		}
		published, ok := event.(*contract.CampaignPublished)
		if !ok || published.OffChainId != offChainId {
			continue
		}

		out.OnchainId = published.CampaignId
		log.WithField("onchain_id", out.OnchainId).Info("Campaign published")
		return out, nil
	}

	self.clear(ctx, log, offChainId)
	err = fmt.Errorf("%w: no CampaignPublished event in %s", ErrPublish, out.TransactionHash)
	return
}

// Puts back the record of an attempt whose replacement wasn't sent
func (self *Publisher) restore(ctx context.Context, log *logrus.Entry, attempt *model.PublishAttempt) {
	err := self.attempts.SavePublishAttempt(ctx, attempt)
	if err != nil {
		log.WithError(err).Error("Failed to restore publish attempt")
	}
}

func (self *Publisher) clear(ctx context.Context, log *logrus.Entry, campaignId int64) {
	err := self.attempts.DeletePublishAttempt(ctx, campaignId)
	if err != nil {
		log.WithError(err).Error("Failed to clear publish attempt")
	}
}

// Contract call arguments, in ABI order
func (self *Publisher) arguments(ctx context.Context, req Request) (args []interface{}, err error) {
	goal, err := parseGoal(req.Goal)
	if err != nil {
		return
	}

	token, err := self.toAddress(ctx, req.TokenAddress)
	if err != nil {
		return
	}

	organizer, err := self.toAddress(ctx, req.OrganizerAccount)
	if err != nil {
		return
	}

	args = []interface{}{
		big.NewInt(req.OffChainId),
		req.Title,
		token,
		goal,
		organizer,
	}
	return
}

// Accepts an EVM address or a ledger account id
func (self *Publisher) toAddress(ctx context.Context, v string) (out common.Address, err error) {
	v = strings.TrimSpace(v)
	if common.IsHexAddress(v) {
		return common.HexToAddress(v), nil
	}

	evm, err := self.resolver.AccountToEvmAddress(ctx, v)
	if err != nil {
		err = fmt.Errorf("%w: resolve %q: %w", ErrPublish, v, err)
		return
	}
	if !common.IsHexAddress(evm) {
		err = fmt.Errorf("%w: %q resolved to invalid address %q", ErrPublish, v, evm)
		return
	}
	return common.HexToAddress(evm), nil
}

// Goal is stored with two decimals and published as an integer
func parseGoal(v string) (*big.Int, error) {
	goal, ok := new(big.Rat).SetString(strings.TrimSpace(v))
	if !ok {
		return nil, fmt.Errorf("%w: goal %q is not a number", ErrPublish, v)
	}
	if !goal.IsInt() {
		return nil, fmt.Errorf("%w: goal %q is not integral", ErrPublish, v)
	}
	if goal.Sign() <= 0 {
		return nil, fmt.Errorf("%w: goal %q is not positive", ErrPublish, v)
	}
	return new(big.Int).Set(goal.Num()), nil
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
