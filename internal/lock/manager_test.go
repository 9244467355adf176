package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/smith-runtime/smith/contracts"
	"github.com/stretchr/testify/require"
)

func TestAcquireAll_ExcludesOtherAgents(t *testing.T) {
	m := New(nil)
	ctx := context.Background()

	require.NoError(t, m.AcquireAll(ctx, "agent-a", []string{"ledger"}))

	done := make(chan struct{})
	go func() {
		_ = m.AcquireAll(ctx, "agent-b", []string{"ledger"})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("agent-b should not have acquired a lock held by agent-a")
	case <-time.After(30 * time.Millisecond):
	}

	m.ReleaseAll("agent-a", []string{"ledger"})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("agent-b should acquire once agent-a releases")
	}
}

func TestAcquireAll_SameAgentIsReentrant(t *testing.T) {
	m := New(nil)
	ctx := context.Background()

	require.NoError(t, m.AcquireAll(ctx, "agent-a", []string{"ledger"}))
	require.NoError(t, m.AcquireAll(ctx, "agent-a", []string{"ledger"}))
}

func TestAcquireAll_SortsResourcesForDeadlockAvoidance(t *testing.T) {
	m := New(nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		errs[0] = m.AcquireAll(ctx, "agent-a", []string{"z-resource", "a-resource"})
	}()
	go func() {
		defer wg.Done()
		errs[1] = m.AcquireAll(ctx, "agent-b", []string{"a-resource", "z-resource"})
	}()

	time.Sleep(20 * time.Millisecond)
	m.ReleaseAll("agent-a", []string{"a-resource", "z-resource"})
	m.ReleaseAll("agent-b", []string{"a-resource", "z-resource"})

	wg.Wait()
}

func TestAcquireAll_CancellationUnblocksPromptly(t *testing.T) {
	m := New(nil)
	require.NoError(t, m.AcquireAll(context.Background(), "agent-a", []string{"ledger"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := m.AcquireAll(ctx, "agent-b", []string{"ledger"})
	require.Error(t, err)
}

func TestReleaseAllForAgent_ReleasesEveryHeldResource(t *testing.T) {
	m := New(nil)
	ctx := context.Background()
	require.NoError(t, m.AcquireAll(ctx, "agent-a", []string{"ledger", "inbox"}))

	released := m.ReleaseAllForAgent("agent-a")
	require.Equal(t, 2, released)

	require.NoError(t, m.AcquireAll(ctx, contracts.AgentID("agent-b"), []string{"ledger", "inbox"}))
}
