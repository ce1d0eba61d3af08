package reconcile

import (
	"testing"

	"github.com/donation-platform/ledger-worker/src/utils/config"

	"github.com/stretchr/testify/require"
)

func TestControllerRequiresContracts(t *testing.T) {
	config := config.Default()
	config.Contracts = nil

	controller, err := NewController(config)
	require.ErrorIs(t, err, ErrNoContracts)
	require.Nil(t, controller)
}
