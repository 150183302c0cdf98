package escrow

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeDeadlinesOrdering(t *testing.T) {
	durations := []uint64{60 * 60, 24 * 60 * 60, 7 * 24 * 60 * 60, 90 * 24 * 60 * 60}
	now := uint64(1_700_000_000)
	for _, duration := range durations {
		release, verification, dispute := ComputeDeadlines(duration, now)
		require.Equal(t, now+duration, release)
		require.Equal(t, now+duration/2, verification)
		require.Equal(t, release+DisputeGraceSeconds, dispute)
		require.LessOrEqual(t, verification, release)
		require.LessOrEqual(t, release, dispute)
	}
}

func TestCanReleaseMonotonic(t *testing.T) {
	releaseTime := uint64(5_000)

	require.True(t, CanRelease(true, false, releaseTime, 0), "confirmation releases immediately")

	require.False(t, CanRelease(false, true, releaseTime, releaseTime-1))
	require.True(t, CanRelease(false, true, releaseTime, releaseTime))

	// Once true at time T, stays true for every later time.
	for _, now := range []uint64{releaseTime, releaseTime + 1, releaseTime * 10} {
		require.True(t, CanRelease(false, true, releaseTime, now))
	}

	// Without delivery, no amount of elapsed time releases.
	require.False(t, CanRelease(false, false, releaseTime, releaseTime*1000))
}

func TestCanCancel(t *testing.T) {
	buyer := newTestAddress(0x01)
	other := newTestAddress(0x02)

	require.True(t, CanCancel(false, buyer, buyer))
	require.False(t, CanCancel(true, buyer, buyer), "delivery forecloses cancellation")
	require.False(t, CanCancel(false, other, buyer))
}

func TestCancellationSplitPartitions(t *testing.T) {
	amount := big.NewInt(1_000_001) // odd value to exercise flooring

	refund, compensation := CancellationSplit(amount, false, 500)
	require.Equal(t, 0, refund.Cmp(amount), "pre-delivery refunds in full")
	require.Zero(t, compensation.Sign())

	refund, compensation = CancellationSplit(amount, true, 500)
	require.Equal(t, 0, compensation.Cmp(big.NewInt(50_000)), "5% compensation floors")
	total := new(big.Int).Add(refund, compensation)
	require.Equal(t, 0, total.Cmp(amount), "split partitions the deposit exactly")

	refund, compensation = CancellationSplit(nil, true, 500)
	require.Zero(t, refund.Sign())
	require.Zero(t, compensation.Sign())
}

func TestDisputeEligible(t *testing.T) {
	deadline := uint64(9_000)

	require.True(t, DisputeEligible(StateActive, deadline, deadline))
	require.True(t, DisputeEligible(StateDelivered, deadline, deadline-1))
	require.False(t, DisputeEligible(StateActive, deadline, deadline+1), "window closes after the deadline")
	require.False(t, DisputeEligible(StateCompleted, deadline, 0))
	require.False(t, DisputeEligible(StateDisputed, deadline, 0))
	require.False(t, DisputeEligible(StateCancelled, deadline, 0))
}

func TestValidTransitionTable(t *testing.T) {
	all := []State{StateActive, StateDelivered, StateDisputed, StateCompleted, StateCancelled, StateRefunded}
	allowed := map[State][]State{
		StateActive:    {StateDelivered, StateDisputed, StateCancelled},
		StateDelivered: {StateDisputed, StateCompleted},
		StateDisputed:  {StateCompleted, StateRefunded},
	}
	for _, from := range all {
		for _, to := range all {
			want := false
			for _, candidate := range allowed[from] {
				if candidate == to {
					want = true
				}
			}
			require.Equal(t, want, ValidTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestValidateParams(t *testing.T) {
	buyer := newTestAddress(0x01)
	seller := newTestAddress(0x02)
	limits := DefaultLimits()
	amount := ether(1)

	require.NoError(t, ValidateParams(buyer, seller, amount, testDuration, limits))

	require.ErrorIs(t, ValidateParams([20]byte{}, seller, amount, testDuration, limits), ErrInvalidParty)
	require.ErrorIs(t, ValidateParams(buyer, [20]byte{}, amount, testDuration, limits), ErrInvalidParty)
	require.ErrorIs(t, ValidateParams(buyer, buyer, amount, testDuration, limits), ErrInvalidParty)
	require.ErrorIs(t, ValidateParams(buyer, seller, nil, testDuration, limits), ErrInvalidAmount)
	require.ErrorIs(t, ValidateParams(buyer, seller, big.NewInt(-1), testDuration, limits), ErrInvalidAmount)
	require.ErrorIs(t, ValidateParams(buyer, seller, new(big.Int).Lsh(big.NewInt(1), 96), testDuration, limits), ErrInvalidAmount)
	require.ErrorIs(t, ValidateParams(buyer, seller, amount, limits.MinDuration-1, limits), ErrDurationOutOfRange)
	require.ErrorIs(t, ValidateParams(buyer, seller, amount, limits.MaxDuration+1, limits), ErrDurationOutOfRange)
}

func TestIsReasonableAmount(t *testing.T) {
	limits := DefaultLimits()

	require.True(t, IsReasonableAmount(ether(1), AssetWebsite, limits))
	require.True(t, IsReasonableAmount(ether(1000), AssetWebsite, limits), "websites cap at the global maximum")
	require.True(t, IsReasonableAmount(ether(100), AssetSocialMedia, limits))
	require.False(t, IsReasonableAmount(ether(101), AssetSocialMedia, limits))
	require.True(t, IsReasonableAmount(ether(250), AssetOther, limits))
	require.False(t, IsReasonableAmount(ether(251), AssetOther, limits))
	require.False(t, IsReasonableAmount(big.NewInt(1), AssetWebsite, limits), "dust below the minimum")
	require.False(t, IsReasonableAmount(nil, AssetWebsite, limits))
}

func TestLimitsClone(t *testing.T) {
	limits := DefaultLimits()
	clone := limits.Clone()
	clone.MaxListingPrice.SetInt64(1)
	require.NotEqual(t, 0, limits.MaxListingPrice.Cmp(clone.MaxListingPrice), "clone must not alias the originals")
}
