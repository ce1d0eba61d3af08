package notify

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"time"

	"github.com/donation-platform/ledger-worker/src/utils/config"
	"github.com/donation-platform/ledger-worker/src/utils/monitoring"
	"github.com/donation-platform/ledger-worker/src/utils/task"

	"github.com/redis/go-redis/v9"
)

// Publishes change notifications to a Redis channel.
// Delivery is best effort, the database stays the source of truth.
type RedisNotifier struct {
	*task.Task

	monitor monitoring.Monitor

	client      *redis.Client
	channelName string
	input       chan *Message
}

func NewRedisNotifier(config *config.Config) (self *RedisNotifier) {
	self = new(RedisNotifier)

	self.channelName = config.Redis.ChannelName
	self.input = make(chan *Message, config.Redis.MaxQueueSize)

	self.Task = task.NewTask(config, "notifier").
		WithSubtaskFunc(self.run).
		WithOnBeforeStart(self.connect).
		WithOnAfterStop(self.disconnect).
		WithWorkerPool(config.Redis.MaxWorkers, config.Redis.MaxQueueSize)

	return
}

func (self *RedisNotifier) WithMonitor(monitor monitoring.Monitor) *RedisNotifier {
	self.monitor = monitor
	return self
}

func (self *RedisNotifier) WithClient(client *redis.Client) *RedisNotifier {
	self.client = client
	return self
}

// Enqueues a message, drops it when the notifier is stopping or the queue is full
func (self *RedisNotifier) Notify(msg *Message) {
	if self.IsStopping.Load() {
		return
	}

	select {
	case self.input <- msg:
	default:
		self.Log.WithField("kind", msg.Kind).Warn("Notification queue full, dropping message")
		self.monitor.GetReport().Notifier.Errors.PersistentFailure.Inc()
	}
}

func (self *RedisNotifier) disconnect() {
	err := self.client.Close()
	if err != nil {
		self.Log.WithError(err).Error("Failed to close connection")
	}
}

func (self *RedisNotifier) connect() (err error) {
	if self.client != nil {
		return
	}

	opts := redis.Options{
		ClientName:      fmt.Sprintf("ledger-worker/%s", self.Name),
		Addr:            fmt.Sprintf("%s:%d", self.Config.Redis.Host, self.Config.Redis.Port),
		Password:        self.Config.Redis.Password,
		Username:        self.Config.Redis.User,
		DB:              self.Config.Redis.DB,
		MinIdleConns:    self.Config.Redis.MinIdleConns,
		MaxIdleConns:    self.Config.Redis.MaxIdleConns,
		ConnMaxIdleTime: self.Config.Redis.ConnMaxIdleTime,
		PoolSize:        self.Config.Redis.MaxOpenConns,
		ConnMaxLifetime: self.Config.Redis.ConnMaxLifetime,
	}

	if self.Config.Redis.ClientCert != "" && self.Config.Redis.ClientKey != "" && self.Config.Redis.CaCert != "" {
		cert, err := tls.X509KeyPair([]byte(self.Config.Redis.ClientCert), []byte(self.Config.Redis.ClientKey))
		if err != nil {
			self.Log.WithError(err).Error("Failed to load client cert")
			return err
		}

		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM([]byte(self.Config.Redis.CaCert)) {
			return errors.New("failed to append CA cert to pool")
		}

		opts.TLSConfig = &tls.Config{
			RootCAs:      caCertPool,
			Certificates: []tls.Certificate{cert},
		}
	}

	// Client dials lazily, a Redis outage doesn't stop the worker
	self.client = redis.NewClient(&opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = self.client.Ping(ctx).Err()
	if err != nil {
		self.Log.WithError(err).Warn("Redis unreachable, notifications are dropped until it is back")
		self.monitor.GetReport().Notifier.Errors.Publish.Inc()
	}

	return nil
}

func (self *RedisNotifier) run() (err error) {
	for {
		select {
		case <-self.StopChannel:
			return nil
		case msg := <-self.input:
			self.SubmitToWorker(func() { self.publish(msg) })
		}
	}
}

func (self *RedisNotifier) publish(msg *Message) {
	err := task.NewRetry().
		WithContext(self.Ctx).
		WithMaxElapsedTime(self.Config.Redis.MaxElapsedTime).
		WithMaxInterval(self.Config.Redis.MaxInterval).
		WithOnError(func(err error) error {
			self.Log.WithError(err).Warn("Failed to publish message, retrying")
			self.monitor.GetReport().Notifier.Errors.Publish.Inc()
			return err
		}).
		Run(func() error {
			return self.client.Publish(self.Ctx, self.channelName, msg).Err()
		})
	if err != nil {
		self.Log.WithError(err).Error("Failed to publish message, giving up")
		self.monitor.GetReport().Notifier.Errors.PersistentFailure.Inc()
		return
	}

	self.monitor.GetReport().Notifier.State.MessagesPublished.Inc()
	self.monitor.GetReport().Notifier.State.LastSuccessfulMessageTimestamp.Store(time.Now().Unix())
}
