package publish

import "errors"

var (
	// Campaign couldn't be published this time, it stays unpublished and is retried later
	ErrPublish = errors.New("failed to publish campaign")

	// Transaction was sent and isn't confirmed yet
	ErrInFlight = errors.New("publication in flight")
)
