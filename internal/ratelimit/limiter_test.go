package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/smith-runtime/smith/contracts"
	"github.com/stretchr/testify/require"
)

func TestAcquire_EnforcesMinimumInterval(t *testing.T) {
	descriptors := []contracts.ToolDescriptor{
		{Name: "search", DefaultRateInterval: 50 * time.Millisecond},
	}
	l := New(true, descriptors, nil)

	ctx := context.Background()
	start := time.Now()
	require.NoError(t, l.Acquire(ctx, "search"))
	require.NoError(t, l.Acquire(ctx, "search"))
	elapsed := time.Since(start)

	require.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
}

func TestAcquire_OverrideTakesPriorityOverDescriptorDefault(t *testing.T) {
	descriptors := []contracts.ToolDescriptor{
		{Name: "search", DefaultRateInterval: 5 * time.Second},
	}
	overrides := map[contracts.ToolName]float64{"search": 0.02}
	l := New(true, descriptors, overrides)

	ctx := context.Background()
	start := time.Now()
	require.NoError(t, l.Acquire(ctx, "search"))
	require.NoError(t, l.Acquire(ctx, "search"))
	elapsed := time.Since(start)

	require.Less(t, elapsed, 5*time.Second)
	require.GreaterOrEqual(t, elapsed, 20*time.Millisecond)
}

func TestAcquire_UngatedToolNeverBlocks(t *testing.T) {
	l := New(true, nil, nil)

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Acquire(ctx, "no-interval-tool"))
	}
	require.Less(t, time.Since(start), 20*time.Millisecond)
}

func TestAcquire_DisabledMasterSwitchNeverBlocks(t *testing.T) {
	descriptors := []contracts.ToolDescriptor{
		{Name: "search", DefaultRateInterval: time.Second},
	}
	l := New(false, descriptors, nil)

	ctx := context.Background()
	start := time.Now()
	require.NoError(t, l.Acquire(ctx, "search"))
	require.NoError(t, l.Acquire(ctx, "search"))
	require.Less(t, time.Since(start), 20*time.Millisecond)
}

func TestAcquire_RespondsToCancellation(t *testing.T) {
	descriptors := []contracts.ToolDescriptor{
		{Name: "search", DefaultRateInterval: time.Second},
	}
	l := New(true, descriptors, nil)

	ctx := context.Background()
	require.NoError(t, l.Acquire(ctx, "search"))

	cancelCtx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := l.Acquire(cancelCtx, "search")
	require.Error(t, err)
	require.ErrorIs(t, err, contracts.ErrRateLimitCanceled)
}
