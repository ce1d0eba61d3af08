package mirror

import "errors"

var (
	// Transport failure, non-2xx status or malformed body. Safe to retry.
	ErrRetryable = errors.New("mirror node request failed")

	// Mirror node returned logs out of timestamp order
	ErrUnordered = errors.New("mirror node returned unordered logs")

	// Window needs more pages than allowed
	ErrTooManyPages = errors.New("too many pages")

	// Account or address doesn't exist on the ledger
	ErrAccountNotFound = errors.New("account not found")

	errNotFound = errors.New("not found")
)
