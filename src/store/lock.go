package store

import (
	"context"
	"fmt"
	"time"
)

// Session level advisory lock held on a dedicated connection until release is called.
// Ensures a single reconciler per checkpoint key across processes.
func (self *Store) AcquireLock(ctx context.Context, key string) (release func(), err error) {
	db, err := self.db.DB()
	if err != nil {
		return
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, classify(err)
	}

	var ok bool
	err = conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock(hashtext($1))", key).Scan(&ok)
	if err != nil {
		conn.Close()
		return nil, classify(err)
	}
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("%w: %s", ErrLocked, key)
	}

	self.log.WithField("key", key).Info("Acquired advisory lock")

	release = func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_, err := conn.ExecContext(ctx, "SELECT pg_advisory_unlock(hashtext($1))", key)
		if err != nil {
			self.log.WithError(err).WithField("key", key).Warn("Failed to release advisory lock")
		}

		// Closing the session releases the lock anyway
		conn.Close()
	}
	return
}
