package model

import (
	"testing"

	"github.com/donation-platform/ledger-worker/src/utils/ledger"

	"github.com/stretchr/testify/require"
)

func TestCampaignStatusTransitions(t *testing.T) {
	require.True(t, CampaignStatusNew.CanTransitionTo(CampaignStatusPublished))
	require.True(t, CampaignStatusPending.CanTransitionTo(CampaignStatusPublished))
	require.True(t, CampaignStatusPublished.CanTransitionTo(CampaignStatusClosed))

	// Backward and skipping transitions
	require.False(t, CampaignStatusClosed.CanTransitionTo(CampaignStatusPublished))
	require.False(t, CampaignStatusPublished.CanTransitionTo(CampaignStatusPending))
	require.False(t, CampaignStatusNew.CanTransitionTo(CampaignStatusClosed))
	require.False(t, CampaignStatusClosed.CanTransitionTo(CampaignStatusClosed))
}

func TestPredecessors(t *testing.T) {
	require.Equal(t, []CampaignStatus{CampaignStatusNew, CampaignStatusPending}, Predecessors(CampaignStatusPublished))
	require.Equal(t, []CampaignStatus{CampaignStatusPublished}, Predecessors(CampaignStatusClosed))
	require.Empty(t, Predecessors(CampaignStatusNew))
}

func TestCheckpointFrom(t *testing.T) {
	start := "100.000000000"
	value := "147.5"

	from, err := (&Checkpoint{Key: "k"}).From()
	require.Nil(t, err)
	require.Nil(t, from)

	from, err = (&Checkpoint{Key: "k", StartAt: &start}).From()
	require.Nil(t, err)
	require.Equal(t, ledger.Timestamp{Seconds: 100}, *from)

	from, err = (&Checkpoint{Key: "k", StartAt: &start, Value: &value}).From()
	require.Nil(t, err)
	require.Equal(t, ledger.Timestamp{Seconds: 147, Nanos: 500000000}, *from)
}
