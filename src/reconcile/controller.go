package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/donation-platform/ledger-worker/src/publish"
	"github.com/donation-platform/ledger-worker/src/store"
	"github.com/donation-platform/ledger-worker/src/utils/config"
	"github.com/donation-platform/ledger-worker/src/utils/contract"
	"github.com/donation-platform/ledger-worker/src/utils/eth"
	"github.com/donation-platform/ledger-worker/src/utils/mirror"
	"github.com/donation-platform/ledger-worker/src/utils/model"
	"github.com/donation-platform/ledger-worker/src/utils/monitoring"
	monitor_reconciler "github.com/donation-platform/ledger-worker/src/utils/monitoring/reconciler"
	"github.com/donation-platform/ledger-worker/src/utils/notify"
	"github.com/donation-platform/ledger-worker/src/utils/task"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"gorm.io/gorm"
)

var (
	ErrNoContracts    = errors.New("no contracts configured")
	ErrNoEvmAddress   = errors.New("contract needs an EVM address to publish")
	ErrNoPublisherKey = errors.New("publisher enabled without a private key")
)

type Controller struct {
	*task.Task

	db        *gorm.DB
	ethClient *ethclient.Client
}

// Main class that orchestrates the worker.
// Runs one reconciler per configured contract, sharing the database pool, the mirror client and the signer.
func NewController(config *config.Config) (self *Controller, err error) {
	self = new(Controller)

	self.Task = task.NewTask(config, "controller").
		WithOnAfterStop(self.close)

	if len(config.Contracts) == 0 {
		return nil, ErrNoContracts
	}

	defer func() {
		if err != nil {
			self.close()
		}
	}()

	monitor := monitor_reconciler.NewMonitor().
		WithMaxHistorySize(30).
		WithMaxIdleTime(config.Reconciler.PollInterval + 5*config.Reconciler.RetryDelay + config.Mirror.RequestTimeout)

	server := monitoring.NewServer(config).
		WithMonitor(monitor)

	self.db, err = model.NewConnection(self.Ctx, config, "ledger-worker")
	if err != nil {
		return
	}

	stateStore := store.NewStore(config, self.db)

	mirrorUrl, err := eth.MirrorUrl(config)
	if err != nil {
		return
	}

	mirrorClient := mirror.NewClient(config, mirrorUrl)
	resolver := mirror.NewResolver(mirrorClient, config.Mirror.AccountCacheTTL)

	decoder, err := contract.NewDecoder()
	if err != nil {
		return
	}

	var signer *publish.Signer
	if config.Publisher.Enabled {
		signer, err = self.newSigner(self.Ctx)
		if err != nil {
			return
		}
	}

	var notifier *notify.RedisNotifier
	if config.Redis.Enabled {
		notifier = notify.NewRedisNotifier(config).
			WithMonitor(monitor)
		self.Task = self.Task.WithSubtask(notifier.Task)
	}

	for _, c := range config.Contracts {
		reconciler := NewReconciler(config, c).
			WithMonitor(monitor).
			WithLogSource(mirrorClient).
			WithDecoder(decoder).
			WithResolver(resolver).
			WithStore(stateStore)

		if config.Reconciler.UseAdvisoryLock {
			reconciler = reconciler.WithLocker(stateStore)
		}

		if notifier != nil {
			reconciler = reconciler.WithNotifier(notifier)
		}

		if signer != nil {
			if !common.IsHexAddress(c.Address) {
				err = fmt.Errorf("%w: %s", ErrNoEvmAddress, c.Key)
				return
			}

			publisher := publish.NewPublisher(config).
				WithBackend(self.ethClient).
				WithContract(common.HexToAddress(c.Address), decoder).
				WithSigner(signer).
				WithResolver(resolver).
				WithAttemptStore(stateStore)

			reconciler = reconciler.WithPublisher(publisher)
		}

		self.Task = self.Task.WithSubtask(reconciler.Task)
	}

	self.Task = self.Task.
		WithSubtask(monitor.Task).
		WithSubtask(server.Task)

	return
}

func (self *Controller) newSigner(ctx context.Context) (signer *publish.Signer, err error) {
	if self.Config.Publisher.PrivateKey == "" {
		return nil, ErrNoPublisherKey
	}

	key, err := eth.ParsePrivateKey(self.Config.Publisher.PrivateKey)
	if err != nil {
		return
	}

	client, chainId, err := eth.GetEthClient(ctx, self.Log, self.Config)
	if err != nil {
		return
	}
	self.ethClient = client

	opts, address, err := eth.NewTransactor(key, chainId)
	if err != nil {
		return
	}

	self.Log.WithField("address", address.Hex()).Info("Publishing campaigns")

	return publish.NewSigner(self.Config, opts), nil
}

func (self *Controller) close() {
	if self.ethClient != nil {
		self.ethClient.Close()
	}

	if self.db == nil {
		return
	}

	db, err := self.db.DB()
	if err != nil {
		self.Log.WithError(err).Error("Failed to get database handle")
		return
	}

	err = db.Close()
	if err != nil {
		self.Log.WithError(err).Error("Failed to close database")
	}
}
