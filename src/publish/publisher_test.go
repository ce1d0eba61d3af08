package publish

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/donation-platform/ledger-worker/src/store"
	"github.com/donation-platform/ledger-worker/src/utils/config"
	"github.com/donation-platform/ledger-worker/src/utils/contract"
	"github.com/donation-platform/ledger-worker/src/utils/mirror"
	"github.com/donation-platform/ledger-worker/src/utils/model"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

var contractAddress = common.HexToAddress("0x00000000000000000000000000000000000003e9")

type fakeBackend struct {
	Backend

	mtx      sync.Mutex
	decoder  *contract.Decoder
	nonce    uint64
	mined    uint64
	sent     []*types.Transaction
	receipts map[common.Hash]*types.Receipt

	mine      bool
	revert    bool
	sendErr   error
	onchainId int64
}

func (self *fakeBackend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(1)}, nil
}

func (self *fakeBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(100), nil
}

func (self *fakeBackend) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return []byte{1}, nil
}

func (self *fakeBackend) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	return 100000, nil
}

func (self *fakeBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	self.mtx.Lock()
	defer self.mtx.Unlock()
	return self.nonce, nil
}

func (self *fakeBackend) NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error) {
	self.mtx.Lock()
	defer self.mtx.Unlock()
	return self.mined, nil
}

func (self *fakeBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	self.mtx.Lock()
	defer self.mtx.Unlock()

	if self.sendErr != nil {
		return self.sendErr
	}

	self.sent = append(self.sent, tx)
	if tx.Nonce() >= self.nonce {
		self.nonce = tx.Nonce() + 1
	}

	if self.mine {
		self.receipts[tx.Hash()] = self.receipt(tx)
		self.mined = tx.Nonce() + 1
	}
	return nil
}

func (self *fakeBackend) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	self.mtx.Lock()
	defer self.mtx.Unlock()

	receipt, ok := self.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

func (self *fakeBackend) receipt(tx *types.Transaction) *types.Receipt {
	receipt := &types.Receipt{TxHash: tx.Hash(), Status: types.ReceiptStatusSuccessful}
	if self.revert {
		receipt.Status = types.ReceiptStatusFailed
		return receipt
	}

	abi := self.decoder.ABI()
	values, err := abi.Methods[contract.MethodPublishAndApproveCampaign].Inputs.Unpack(tx.Data()[4:])
	if err != nil {
		panic(err)
	}

	event := abi.Events[contract.EventCampaignPublished]
	data, err := event.Inputs.NonIndexed().Pack(values[0], big.NewInt(self.onchainId))
	if err != nil {
		panic(err)
	}

	receipt.Logs = []*types.Log{{
		Address: contractAddress,
		Topics:  []common.Hash{event.ID},
		Data:    data,
		TxHash:  tx.Hash(),
	}}
	return receipt
}

type fakeAttempts struct {
	mtx      sync.Mutex
	attempts map[int64]model.PublishAttempt
}

func (self *fakeAttempts) LoadPublishAttempt(ctx context.Context, campaignId int64) (*model.PublishAttempt, error) {
	self.mtx.Lock()
	defer self.mtx.Unlock()
	attempt, ok := self.attempts[campaignId]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &attempt, nil
}

func (self *fakeAttempts) SavePublishAttempt(ctx context.Context, attempt *model.PublishAttempt) error {
	self.mtx.Lock()
	defer self.mtx.Unlock()
	self.attempts[attempt.CampaignId] = *attempt
	return nil
}

func (self *fakeAttempts) DeletePublishAttempt(ctx context.Context, campaignId int64) error {
	self.mtx.Lock()
	defer self.mtx.Unlock()
	delete(self.attempts, campaignId)
	return nil
}

type fakeResolver map[string]string

func (self fakeResolver) AccountToEvmAddress(ctx context.Context, accountId string) (string, error) {
	evm, ok := self[accountId]
	if !ok {
		return "", mirror.ErrAccountNotFound
	}
	return evm, nil
}

func TestPublisherTestSuite(t *testing.T) {
	suite.Run(t, new(PublisherTestSuite))
}

type PublisherTestSuite struct {
	suite.Suite
	ctx    context.Context
	config *config.Config

	decoder   *contract.Decoder
	opts      *bind.TransactOpts
	backend   *fakeBackend
	attempts  *fakeAttempts
	publisher *Publisher
	request   Request
}

func (s *PublisherTestSuite) SetupSuite() {
	s.ctx = context.Background()
	s.config = config.Default()
	s.config.Publisher.GasLimit = 300000
	s.config.Publisher.ReceiptTimeout = 200 * time.Millisecond
	s.config.Publisher.AttemptExpiry = time.Minute
	s.config.Publisher.MaxTransactionsPerSecond = 0

	var err error
	s.decoder, err = contract.NewDecoder()
	require.Nil(s.T(), err)

	key, err := crypto.GenerateKey()
	require.Nil(s.T(), err)
	s.opts, err = bind.NewKeyedTransactorWithChainID(key, big.NewInt(296))
	require.Nil(s.T(), err)
}

func (s *PublisherTestSuite) SetupTest() {
	s.backend = &fakeBackend{
		decoder:   s.decoder,
		receipts:  make(map[common.Hash]*types.Receipt),
		mine:      true,
		onchainId: 7,
	}
	s.attempts = &fakeAttempts{attempts: make(map[int64]model.PublishAttempt)}

	s.publisher = NewPublisher(s.config).
		WithBackend(s.backend).
		WithContract(contractAddress, s.decoder).
		WithSigner(NewSigner(s.config, s.opts)).
		WithResolver(fakeResolver{"0.0.5005": "0x0000000000000000000000000000000000001111"}).
		WithAttemptStore(s.attempts)

	s.request = Request{
		OffChainId:       42,
		Title:            "Clean water",
		TokenAddress:     "0x0000000000000000000000000000000000000fa1",
		Goal:             "1000.00",
		OrganizerAccount: "0.0.5005",
	}
}

func (s *PublisherTestSuite) TestPublish() {
	out, err := s.publisher.PublishCampaign(s.ctx, s.request)
	require.Nil(s.T(), err)
	require.Equal(s.T(), int64(7), out.OnchainId)

	require.Len(s.T(), s.backend.sent, 1)
	tx := s.backend.sent[0]
	require.Equal(s.T(), tx.Hash().Hex(), out.TransactionHash)
	require.Equal(s.T(), &contractAddress, tx.To())

	values, err := s.decoder.ABI().Methods[contract.MethodPublishAndApproveCampaign].Inputs.Unpack(tx.Data()[4:])
	require.Nil(s.T(), err)
	require.Equal(s.T(), big.NewInt(42), values[0])
	require.Equal(s.T(), "Clean water", values[1])
	require.Equal(s.T(), common.HexToAddress("0x0000000000000000000000000000000000000fa1"), values[2])
	require.Equal(s.T(), big.NewInt(1000), values[3])
	require.Equal(s.T(), common.HexToAddress("0x0000000000000000000000000000000000001111"), values[4])

	// Marker stays until the result is persisted
	require.Contains(s.T(), s.attempts.attempts, int64(42))
	require.Nil(s.T(), s.publisher.Confirm(s.ctx, 42))
	require.NotContains(s.T(), s.attempts.attempts, int64(42))
}

func (s *PublisherTestSuite) TestInvalidRequest() {
	req := s.request
	req.Goal = "10.5"
	_, err := s.publisher.PublishCampaign(s.ctx, req)
	require.ErrorIs(s.T(), err, ErrPublish)

	req = s.request
	req.OrganizerAccount = "0.0.404"
	_, err = s.publisher.PublishCampaign(s.ctx, req)
	require.ErrorIs(s.T(), err, ErrPublish)
	require.ErrorIs(s.T(), err, mirror.ErrAccountNotFound)

	require.Empty(s.T(), s.backend.sent)
	require.Empty(s.T(), s.attempts.attempts)
}

func (s *PublisherTestSuite) TestReverted() {
	s.backend.revert = true

	_, err := s.publisher.PublishCampaign(s.ctx, s.request)
	require.ErrorIs(s.T(), err, ErrPublish)
	require.Empty(s.T(), s.attempts.attempts)
}

func (s *PublisherTestSuite) TestSendRejected() {
	s.backend.sendErr = errors.New("insufficient funds")

	_, err := s.publisher.PublishCampaign(s.ctx, s.request)
	require.ErrorIs(s.T(), err, ErrPublish)
	require.Empty(s.T(), s.attempts.attempts)
}

func (s *PublisherTestSuite) TestNotMinedInTime() {
	s.backend.mine = false

	_, err := s.publisher.PublishCampaign(s.ctx, s.request)
	require.ErrorIs(s.T(), err, ErrInFlight)
	require.Contains(s.T(), s.attempts.attempts, int64(42))

	// Next cycle sees a young attempt and doesn't send again
	_, err = s.publisher.PublishCampaign(s.ctx, s.request)
	require.ErrorIs(s.T(), err, ErrInFlight)
	require.Len(s.T(), s.backend.sent, 1)
}

func (s *PublisherTestSuite) TestRecoversMinedAttempt() {
	s.backend.mine = false
	_, err := s.publisher.PublishCampaign(s.ctx, s.request)
	require.ErrorIs(s.T(), err, ErrInFlight)

	// Gets mined after the worker gave up waiting
	tx := s.backend.sent[0]
	s.backend.receipts[tx.Hash()] = s.backend.receipt(tx)

	out, err := s.publisher.PublishCampaign(s.ctx, s.request)
	require.Nil(s.T(), err)
	require.Equal(s.T(), int64(7), out.OnchainId)
	require.Equal(s.T(), tx.Hash().Hex(), out.TransactionHash)
	require.Len(s.T(), s.backend.sent, 1)
}

func (s *PublisherTestSuite) expire() {
	s.publisher.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
}

func (s *PublisherTestSuite) TestReplacesDroppedAttempt() {
	s.backend.mine = false
	_, err := s.publisher.PublishCampaign(s.ctx, s.request)
	require.ErrorIs(s.T(), err, ErrInFlight)
	first := s.backend.sent[0]

	// Transaction got dropped, its nonce is free again
	s.backend.nonce = first.Nonce()
	s.expire()
	s.backend.mine = true

	out, err := s.publisher.PublishCampaign(s.ctx, s.request)
	require.Nil(s.T(), err)
	require.Equal(s.T(), int64(7), out.OnchainId)

	require.Len(s.T(), s.backend.sent, 2)
	require.Equal(s.T(), first.Nonce(), s.backend.sent[1].Nonce())
}

func (s *PublisherTestSuite) TestReplacesExpiredPendingAttempt() {
	s.backend.mine = false
	_, err := s.publisher.PublishCampaign(s.ctx, s.request)
	require.ErrorIs(s.T(), err, ErrInFlight)
	first := s.backend.sent[0]

	// Still in the pool, pending nonce counts it
	require.Equal(s.T(), first.Nonce()+1, s.backend.nonce)
	s.expire()

	_, err = s.publisher.PublishCampaign(s.ctx, s.request)
	require.ErrorIs(s.T(), err, ErrInFlight)

	require.Len(s.T(), s.backend.sent, 2)
	second := s.backend.sent[1]
	require.Equal(s.T(), first.Nonce(), second.Nonce())
	require.Equal(s.T(), big.NewInt(100), first.GasPrice())
	require.Equal(s.T(), big.NewInt(125), second.GasPrice())

	attempt := s.attempts.attempts[42]
	require.Equal(s.T(), second.Hash().Hex(), attempt.TransactionHash)
	require.Equal(s.T(), []string{first.Hash().Hex()}, attempt.ReplacedTransactionHashes)

	// Replaced transaction lands after all
	s.backend.receipts[first.Hash()] = s.backend.receipt(first)
	s.backend.mined = first.Nonce() + 1

	out, err := s.publisher.PublishCampaign(s.ctx, s.request)
	require.Nil(s.T(), err)
	require.Equal(s.T(), int64(7), out.OnchainId)
	require.Equal(s.T(), first.Hash().Hex(), out.TransactionHash)
	require.Len(s.T(), s.backend.sent, 2)
}

func (s *PublisherTestSuite) TestRejectedReplacementKeepsAttempt() {
	s.backend.mine = false
	_, err := s.publisher.PublishCampaign(s.ctx, s.request)
	require.ErrorIs(s.T(), err, ErrInFlight)
	first := s.backend.sent[0]

	s.expire()
	s.backend.sendErr = errors.New("replacement transaction underpriced")

	_, err = s.publisher.PublishCampaign(s.ctx, s.request)
	require.ErrorIs(s.T(), err, ErrPublish)
	require.Len(s.T(), s.backend.sent, 1)

	attempt, ok := s.attempts.attempts[42]
	require.True(s.T(), ok)
	require.Equal(s.T(), first.Hash().Hex(), attempt.TransactionHash)
	require.Equal(s.T(), first.Nonce(), attempt.Nonce)
}

func (s *PublisherTestSuite) TestResubmitsWhenNonceWasTaken() {
	s.backend.mine = false
	_, err := s.publisher.PublishCampaign(s.ctx, s.request)
	require.ErrorIs(s.T(), err, ErrInFlight)
	first := s.backend.sent[0]

	// Another transaction of the account was mined with the same nonce
	s.backend.mined = first.Nonce() + 1
	s.expire()
	s.backend.mine = true

	out, err := s.publisher.PublishCampaign(s.ctx, s.request)
	require.Nil(s.T(), err)
	require.Equal(s.T(), int64(7), out.OnchainId)

	require.Len(s.T(), s.backend.sent, 2)
	require.Equal(s.T(), first.Nonce()+1, s.backend.sent[1].Nonce())
	require.Empty(s.T(), s.attempts.attempts[42].ReplacedTransactionHashes)
}

func TestParseGoal(t *testing.T) {
	goal, err := parseGoal("1000.00")
	require.Nil(t, err)
	require.Equal(t, big.NewInt(1000), goal)

	_, err = parseGoal("1000.01")
	require.ErrorIs(t, err, ErrPublish)

	_, err = parseGoal("0")
	require.ErrorIs(t, err, ErrPublish)

	_, err = parseGoal("abc")
	require.ErrorIs(t, err, ErrPublish)
}
