package store

import (
	"context"
	"errors"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/donation-platform/ledger-worker/src/utils/config"
	"github.com/donation-platform/ledger-worker/src/utils/ledger"
	"github.com/donation-platform/ledger-worker/src/utils/logger"
	"github.com/donation-platform/ledger-worker/src/utils/model"

	"github.com/jackc/pgtype"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

// Runs against a real Postgres configured with LEDGER_WORKER_DATABASE_* variables
func TestStoreTestSuite(t *testing.T) {
	if os.Getenv("LEDGER_WORKER_TEST_DATABASE") == "" {
		t.Skip("LEDGER_WORKER_TEST_DATABASE not set")
	}
	suite.Run(t, new(StoreTestSuite))
}

type StoreTestSuite struct {
	suite.Suite
	ctx    context.Context
	cancel context.CancelFunc
	config *config.Config
	db     *gorm.DB
	store  *Store

	userId  int64
	tokenId int64
}

func (s *StoreTestSuite) SetupSuite() {
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.config = config.Default()
	s.config.Database.MigrationUser = s.config.Database.User
	s.config.Database.MigrationPassword = s.config.Database.Password

	var err error
	s.db, err = model.NewConnection(s.ctx, s.config, "store-test")
	require.Nil(s.T(), err)

	s.store = NewStore(s.config, s.db)
}

func (s *StoreTestSuite) TearDownSuite() {
	db, err := s.db.DB()
	if err == nil {
		db.Close()
	}
	s.cancel()
}

func (s *StoreTestSuite) SetupTest() {
	err := s.db.Exec(`TRUNCATE skipped_event, publish_attempt, donation, campaign, token, "user", crawl_checkpoint RESTART IDENTITY CASCADE`).Error
	require.Nil(s.T(), err)

	user := model.User{WalletAddress: "0.0.5005"}
	require.Nil(s.T(), s.db.Create(&user).Error)
	s.userId = user.Id

	token := model.Token{Name: "Test", Symbol: "TST", Address: "0x0000000000000000000000000000000000000fa1", Decimal: 2}
	require.Nil(s.T(), s.db.Create(&token).Error)
	s.tokenId = token.Id
}

func (s *StoreTestSuite) campaign(id int64, status model.CampaignStatus, onchainId *int64, approved bool) {
	campaign := model.Campaign{
		Id:                  id,
		Title:               "Campaign",
		Goal:                "1000.00",
		CurrentAmount:       "0",
		PercentageCompleted: "0",
		Status:              status,
		ApprovedByAdmin:     approved,
		OnchainId:           onchainId,
		TokenId:             &s.tokenId,
		OrganizerId:         s.userId,
	}
	require.Nil(s.T(), s.db.Create(&campaign).Error)
}

func requireNumeric(t *testing.T, expected float64, actual string) {
	v, err := strconv.ParseFloat(actual, 64)
	require.Nil(t, err)
	require.InDelta(t, expected, v, 0.001)
}

func ptr[T any](v T) *T {
	return &v
}

func (s *StoreTestSuite) TestCheckpoint() {
	_, err := s.store.LoadCheckpoint(s.ctx, "crawl_onchain")
	require.ErrorIs(s.T(), err, ErrNotFound)

	created, err := s.store.SeedCheckpoint(s.ctx, "crawl_onchain", &ledger.Timestamp{Seconds: 100})
	require.Nil(s.T(), err)
	require.True(s.T(), created)

	// Seeding again never moves anything
	created, err = s.store.SeedCheckpoint(s.ctx, "crawl_onchain", &ledger.Timestamp{Seconds: 500})
	require.Nil(s.T(), err)
	require.False(s.T(), created)

	advanced, err := s.store.AdvanceCheckpoint(s.ctx, "crawl_onchain", ledger.Timestamp{Seconds: 147})
	require.Nil(s.T(), err)
	require.True(s.T(), advanced)

	// Monotonic
	advanced, err = s.store.AdvanceCheckpoint(s.ctx, "crawl_onchain", ledger.Timestamp{Seconds: 140})
	require.Nil(s.T(), err)
	require.False(s.T(), advanced)

	checkpoint, err := s.store.LoadCheckpoint(s.ctx, "crawl_onchain")
	require.Nil(s.T(), err)
	from, err := checkpoint.From()
	require.Nil(s.T(), err)
	require.Equal(s.T(), ledger.Timestamp{Seconds: 147}, *from)

	_, err = s.store.AdvanceCheckpoint(s.ctx, "missing", ledger.Timestamp{Seconds: 1})
	require.ErrorIs(s.T(), err, ErrNotFound)
}

func (s *StoreTestSuite) TestAdvisoryLock() {
	release, err := s.store.AcquireLock(s.ctx, "crawl_onchain")
	require.Nil(s.T(), err)

	_, err = s.store.AcquireLock(s.ctx, "crawl_onchain")
	require.ErrorIs(s.T(), err, ErrLocked)

	release()

	release, err = s.store.AcquireLock(s.ctx, "crawl_onchain")
	require.Nil(s.T(), err)
	release()
}

func (s *StoreTestSuite) TestUpsertDonationsIsIdempotent() {
	s.campaign(42, model.CampaignStatusPublished, ptr(int64(7)), true)

	date := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	donation := model.DonationUpsert{CampaignId: 42, UserId: s.userId, TransactionHash: "0xaa", Amount: "500", Date: date}

	require.Nil(s.T(), s.store.UpsertDonations(s.ctx, []model.DonationUpsert{donation}))

	donation.Amount = "600"
	require.Nil(s.T(), s.store.UpsertDonations(s.ctx, []model.DonationUpsert{donation, donation}))

	var rows []model.Donation
	require.Nil(s.T(), s.db.Find(&rows).Error)
	require.Len(s.T(), rows, 1)
	requireNumeric(s.T(), 600, rows[0].Amount)

	campaign, err := s.store.FindCampaignById(s.ctx, 42)
	require.Nil(s.T(), err)
	requireNumeric(s.T(), 600, campaign.CurrentAmount)
	requireNumeric(s.T(), 60, campaign.PercentageCompleted)
}

func (s *StoreTestSuite) TestUpsertDonationsReportsCappedTotal() {
	s.campaign(42, model.CampaignStatusPublished, ptr(int64(7)), true)

	log, hook := test.NewNullLogger()
	s.store.log = logrus.NewEntry(log)
	defer func() { s.store.log = logger.NewSublogger("store") }()

	err := s.store.UpsertDonations(s.ctx, []model.DonationUpsert{
		{CampaignId: 42, UserId: s.userId, TransactionHash: "0xaa", Amount: "5000000000000000000000", Date: time.Now()},
	})
	require.Nil(s.T(), err)

	// Exact amount is kept on the donation
	var rows []model.Donation
	require.Nil(s.T(), s.db.Find(&rows).Error)
	require.Len(s.T(), rows, 1)
	require.Equal(s.T(), "5000000000000000000000", rows[0].Amount)

	campaign, err := s.store.FindCampaignById(s.ctx, 42)
	require.Nil(s.T(), err)
	require.Equal(s.T(), "999999999999999999.99", campaign.CurrentAmount)

	entry := hook.LastEntry()
	require.NotNil(s.T(), entry)
	require.Equal(s.T(), logrus.WarnLevel, entry.Level)
	require.Equal(s.T(), int64(42), entry.Data["campaign_id"])
	require.Equal(s.T(), "5000000000000000000000", entry.Data["total"])
	require.Equal(s.T(), true, entry.Data["amount_capped"])
}

func (s *StoreTestSuite) TestUpsertDonationsAllOrNothing() {
	s.campaign(42, model.CampaignStatusPublished, ptr(int64(7)), true)

	err := s.store.UpsertDonations(s.ctx, []model.DonationUpsert{
		{CampaignId: 42, UserId: s.userId, TransactionHash: "0xaa", Amount: "1", Date: time.Now()},
		// Violates the foreign key
		{CampaignId: 999, UserId: s.userId, TransactionHash: "0xbb", Amount: "1", Date: time.Now()},
	})
	require.NotNil(s.T(), err)

	var count int64
	require.Nil(s.T(), s.db.Model(&model.Donation{}).Count(&count).Error)
	require.Zero(s.T(), count)
}

func (s *StoreTestSuite) TestStatusTransitions() {
	s.campaign(42, model.CampaignStatusNew, nil, true)

	changed, err := s.store.UpdateCampaignOnchainState(s.ctx, model.CampaignTransition{
		CampaignId:            42,
		OnchainId:             ptr(int64(7)),
		Status:                model.CampaignStatusPublished,
		TransactionHashCreate: ptr("0xcreate"),
	})
	require.Nil(s.T(), err)
	require.True(s.T(), changed)

	// Replay is a no-op
	changed, err = s.store.UpdateCampaignOnchainState(s.ctx, model.CampaignTransition{
		CampaignId: 42,
		OnchainId:  ptr(int64(7)),
		Status:     model.CampaignStatusPublished,
	})
	require.Nil(s.T(), err)
	require.False(s.T(), changed)

	changed, err = s.store.UpdateCampaignOnchainState(s.ctx, model.CampaignTransition{
		CampaignId:               42,
		Status:                   model.CampaignStatusClosed,
		TransactionHashWithdrawn: ptr("0xclose"),
	})
	require.Nil(s.T(), err)
	require.True(s.T(), changed)

	// Never backwards
	changed, err = s.store.UpdateCampaignOnchainState(s.ctx, model.CampaignTransition{
		CampaignId: 42,
		Status:     model.CampaignStatusPublished,
	})
	require.Nil(s.T(), err)
	require.False(s.T(), changed)

	campaign, err := s.store.FindCampaignByOnchainId(s.ctx, 7)
	require.Nil(s.T(), err)
	require.Equal(s.T(), model.CampaignStatusClosed, campaign.Status)
	require.Equal(s.T(), "0xcreate", *campaign.TransactionHashCreate)
	require.Equal(s.T(), "0xclose", *campaign.TransactionHashWithdrawn)

	_, err = s.store.UpdateCampaignOnchainState(s.ctx, model.CampaignTransition{CampaignId: 42, Status: model.CampaignStatusNew})
	require.ErrorIs(s.T(), err, ErrInvalidTransition)
}

func (s *StoreTestSuite) TestFindApprovedUnpublishedCampaigns() {
	s.campaign(1, model.CampaignStatusNew, nil, true)
	s.campaign(2, model.CampaignStatusPending, nil, true)
	s.campaign(3, model.CampaignStatusNew, nil, false)
	s.campaign(4, model.CampaignStatusPublished, ptr(int64(9)), true)

	out, err := s.store.FindApprovedUnpublishedCampaigns(s.ctx)
	require.Nil(s.T(), err)
	require.Len(s.T(), out, 2)
	require.Equal(s.T(), int64(1), out[0].Id)
	require.Equal(s.T(), int64(2), out[1].Id)
	require.Equal(s.T(), "0.0.5005", out[0].OrganizerWalletAddress)
	require.Equal(s.T(), "0x0000000000000000000000000000000000000fa1", out[0].TokenAddress)
	require.Equal(s.T(), 2, out[0].TokenDecimal)
}

func (s *StoreTestSuite) TestUsersAndCampaignsNotFound() {
	user, err := s.store.FindUserByWalletAddress(s.ctx, "0.0.5005")
	require.Nil(s.T(), err)
	require.Equal(s.T(), s.userId, user.Id)

	_, err = s.store.FindUserByWalletAddress(s.ctx, "0.0.1")
	require.ErrorIs(s.T(), err, ErrNotFound)

	_, err = s.store.FindCampaignByOnchainId(s.ctx, 12345)
	require.True(s.T(), errors.Is(err, ErrNotFound))
}

func (s *StoreTestSuite) TestPublishAttempt() {
	s.campaign(42, model.CampaignStatusNew, nil, true)

	_, err := s.store.LoadPublishAttempt(s.ctx, 42)
	require.ErrorIs(s.T(), err, ErrNotFound)

	attempt := &model.PublishAttempt{CampaignId: 42, TransactionHash: "0x1", Nonce: 1, SubmittedAt: time.Now()}
	require.Nil(s.T(), s.store.SavePublishAttempt(s.ctx, attempt))

	attempt.TransactionHash = "0x2"
	attempt.ReplacedTransactionHashes = []string{"0x1"}
	require.Nil(s.T(), s.store.SavePublishAttempt(s.ctx, attempt))

	loaded, err := s.store.LoadPublishAttempt(s.ctx, 42)
	require.Nil(s.T(), err)
	require.Equal(s.T(), "0x2", loaded.TransactionHash)
	require.Equal(s.T(), []string{"0x2", "0x1"}, loaded.TransactionHashes())

	require.Nil(s.T(), s.store.DeletePublishAttempt(s.ctx, 42))
	_, err = s.store.LoadPublishAttempt(s.ctx, 42)
	require.ErrorIs(s.T(), err, ErrNotFound)
}

func (s *StoreTestSuite) TestRecordSkippedEvent() {
	var args pgtype.JSONB
	require.Nil(s.T(), args.Set(map[string]string{"donor": "0xabc"}))

	event := model.SkippedEvent{
		CheckpointKey:   "crawl_onchain",
		TransactionHash: "0xaa",
		EventName:       "DonationReceived",
		LogIndex:        1,
		Reason:          model.SkipReasonUnknownDonor,
		Args:            args,
		Timestamp:       "120.000000000",
	}
	require.Nil(s.T(), s.store.RecordSkippedEvent(s.ctx, &event))

	again := event
	again.Id = 0
	require.Nil(s.T(), s.store.RecordSkippedEvent(s.ctx, &again))

	count, err := s.store.CountSkippedEvents(s.ctx, "crawl_onchain")
	require.Nil(s.T(), err)
	require.Equal(s.T(), int64(1), count)
}
