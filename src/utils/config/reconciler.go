package config

import (
	"time"

	"github.com/spf13/viper"
)

type Reconciler struct {
	// Sleep between cycles
	PollInterval time.Duration

	// Sleep after a cycle failed with a retryable error
	RetryDelay time.Duration

	// Sleep while the checkpoint row is not provisioned
	CheckpointMissingBackoff time.Duration

	// Cursor is stored this much behind the window's upper bound
	SafetyMargin time.Duration

	// Consecutive checkpoint load failures before the reconciler gives up
	MaxCheckpointLoadFailures int

	// Workers resolving donor addresses ahead of applying events
	ResolverNumWorkers int

	// Max number of resolutions waiting in the worker queue
	ResolverWorkerQueueSize int

	// Take the per-contract advisory lock before running
	UseAdvisoryLock bool
}

func setReconcilerDefaults() {
	viper.SetDefault("Reconciler.PollInterval", "3s")
	viper.SetDefault("Reconciler.RetryDelay", "3s")
	viper.SetDefault("Reconciler.CheckpointMissingBackoff", "5s")
	viper.SetDefault("Reconciler.SafetyMargin", "3s")
	viper.SetDefault("Reconciler.MaxCheckpointLoadFailures", "20")
	viper.SetDefault("Reconciler.ResolverNumWorkers", "4")
	viper.SetDefault("Reconciler.ResolverWorkerQueueSize", "100")
	viper.SetDefault("Reconciler.UseAdvisoryLock", "true")
}
