package store

import (
	"context"

	"github.com/donation-platform/ledger-worker/src/utils/config"
	"github.com/donation-platform/ledger-worker/src/utils/logger"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Access to the relational store. Each method is one unit of work on one pooled connection.
type Store struct {
	db     *gorm.DB
	config *config.Config
	log    *logrus.Entry
}

func NewStore(config *config.Config, db *gorm.DB) (self *Store) {
	self = new(Store)
	self.config = config
	self.db = db
	self.log = logger.NewSublogger("store")
	return
}

func (self *Store) DB() *gorm.DB {
	return self.db
}

func (self *Store) readContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if self.config.Database.ReadTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, self.config.Database.ReadTimeout)
}

// Writes ignore shutdown so a transaction in flight completes or rolls back on its own
func (self *Store) writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if self.config.Database.WriteTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, self.config.Database.WriteTimeout)
}
