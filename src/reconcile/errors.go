package reconcile

import "errors"

var (
	// Checkpoint row isn't provisioned yet
	ErrCheckpointMissing = errors.New("checkpoint missing")

	// Checkpoint couldn't be loaded too many times in a row
	ErrCheckpointLoad = errors.New("failed to load checkpoint")
)
