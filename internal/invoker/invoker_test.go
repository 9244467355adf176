package invoker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smith-runtime/smith/contracts"
	"github.com/smith-runtime/smith/internal/lock"
	"github.com/smith-runtime/smith/internal/ratelimit"
	"github.com/smith-runtime/smith/internal/registry"
)

func testRegistry(t *testing.T, resources []string, dangerous bool) contracts.Registry {
	t.Helper()
	reg := registry.New()
	reg = registry.Register(reg, contracts.ToolDescriptor{
		Name:       "echo",
		FunctionID: "fn.echo",
		Dangerous:  dangerous,
		Resources:  resources,
	})
	return reg
}

func newInvoker(t *testing.T, resources []string, dangerous bool, fn contracts.ToolFunc, approval contracts.ApprovalCallback, requireApproval bool) *Invoker {
	t.Helper()
	reg := testRegistry(t, resources, dangerous)
	return New(Config{
		AgentID:         "agent-test",
		Registry:        reg,
		Funcs:           MapResolver{"fn.echo": fn},
		RateLimiter:     ratelimit.New(false, nil, nil),
		LockManager:     lock.New(nil),
		Approval:        approval,
		RequireApproval: requireApproval,
	})
}

func task(retry int, timeout time.Duration, onFail contracts.OnFailPolicy) *contracts.Task {
	return &contracts.Task{
		ID:      "0",
		Tool:    "echo",
		Retry:   retry,
		Timeout: timeout,
		OnFail:  onFail,
	}
}

func TestInvoke_SuccessOnFirstAttempt(t *testing.T) {
	inv := newInvoker(t, nil, false, func(ctx context.Context, in map[string]any) (any, error) {
		return "ok", nil
	}, nil, false)

	rec := inv.Invoke(context.Background(), task(0, time.Second, contracts.OnFailHalt), nil)
	require.Equal(t, contracts.TaskSuccess, rec.Status)
	require.Equal(t, "ok", rec.Output)
	require.Equal(t, 1, rec.Attempts)
}

func TestInvoke_RetriesUpToRetryBudgetThenSucceeds(t *testing.T) {
	calls := 0
	inv := newInvoker(t, nil, false, func(ctx context.Context, in map[string]any) (any, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("transient failure")
		}
		return "ok", nil
	}, nil, false)

	rec := inv.Invoke(context.Background(), task(2, 10*time.Second, contracts.OnFailHalt), nil)
	require.Equal(t, contracts.TaskSuccess, rec.Status)
	require.Equal(t, 3, rec.Attempts)
}

func TestInvoke_ExhaustsRetriesAndEmitsError(t *testing.T) {
	inv := newInvoker(t, nil, false, func(ctx context.Context, in map[string]any) (any, error) {
		return nil, errors.New("permanent failure")
	}, nil, false)

	rec := inv.Invoke(context.Background(), task(1, 10*time.Second, contracts.OnFailHalt), nil)
	require.Equal(t, contracts.TaskError, rec.Status)
	require.Equal(t, 2, rec.Attempts)
	require.Contains(t, rec.ErrorMessage, "permanent failure")
}

func TestInvoke_DeadlineExpiryEmitsTimeoutWithNoFurtherRetry(t *testing.T) {
	calls := 0
	inv := newInvoker(t, nil, false, func(ctx context.Context, in map[string]any) (any, error) {
		calls++
		<-ctx.Done()
		return nil, ctx.Err()
	}, nil, false)

	rec := inv.Invoke(context.Background(), task(5, 50*time.Millisecond, contracts.OnFailHalt), nil)
	require.Equal(t, contracts.TaskTimeout, rec.Status)
	require.Equal(t, 1, calls)
}

func TestInvoke_DangerousToolRequiresApprovalDeniedFails(t *testing.T) {
	inv := newInvoker(t, nil, true, func(ctx context.Context, in map[string]any) (any, error) {
		return "should-not-run", nil
	}, func(ctx context.Context, task *contracts.Task) (bool, error) {
		return false, nil
	}, true)

	rec := inv.Invoke(context.Background(), task(0, time.Second, contracts.OnFailHalt), nil)
	require.Equal(t, contracts.TaskError, rec.Status)
	require.Contains(t, rec.ErrorMessage, "denied")
}

func TestInvoke_DangerousToolApprovedRuns(t *testing.T) {
	inv := newInvoker(t, nil, true, func(ctx context.Context, in map[string]any) (any, error) {
		return "ran", nil
	}, func(ctx context.Context, task *contracts.Task) (bool, error) {
		return true, nil
	}, true)

	rec := inv.Invoke(context.Background(), task(0, time.Second, contracts.OnFailHalt), nil)
	require.Equal(t, contracts.TaskSuccess, rec.Status)
	require.Equal(t, "ran", rec.Output)
}

func TestInvoke_ReleasesResourcesUnconditionallyOnFailure(t *testing.T) {
	lm := lock.New(nil)
	reg := testRegistry(t, []string{"ledger"}, false)
	inv := New(Config{
		AgentID:     "agent-test",
		Registry:    reg,
		Funcs:       MapResolver{"fn.echo": func(ctx context.Context, in map[string]any) (any, error) { return nil, errors.New("boom") }},
		RateLimiter: ratelimit.New(false, nil, nil),
		LockManager: lm,
	})

	inv.Invoke(context.Background(), task(0, time.Second, contracts.OnFailHalt), nil)

	require.NoError(t, lm.AcquireAll(context.Background(), "another-agent", []string{"ledger"}))
}
