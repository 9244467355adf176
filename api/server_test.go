package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/smith-runtime/smith/contracts"
	"github.com/smith-runtime/smith/internal/invoker"
	"github.com/smith-runtime/smith/internal/registry"
)

// ============================================================================
// RunStore Tests
// ============================================================================

func TestRunStore_CreateGet(t *testing.T) {
	store := NewRunStore()

	run := &contracts.Run{
		ID:    "test-run-1",
		State: contracts.RunPending,
	}

	_, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := store.Create(run, cancel)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	entry, exists := store.Get("test-run-1")
	if !exists {
		t.Fatal("expected run to exist")
	}
	if entry.Run.ID != "test-run-1" {
		t.Errorf("expected ID 'test-run-1', got '%s'", entry.Run.ID)
	}
	if entry.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}

	_, exists = store.Get("non-existent")
	if exists {
		t.Error("expected non-existent run to not exist")
	}
}

func TestRunStore_CreateDuplicateID(t *testing.T) {
	store := NewRunStore()

	run := &contracts.Run{ID: "dup-1", State: contracts.RunPending}
	_, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := store.Create(run, cancel)
	if err != nil {
		t.Fatalf("first Create failed: %v", err)
	}

	err = store.Create(run, cancel)
	if err == nil {
		t.Fatal("expected error for duplicate ID")
	}
	if !strings.Contains(err.Error(), "already exists") {
		t.Errorf("expected 'already exists' error, got: %v", err)
	}
}

func TestRunStore_Abort(t *testing.T) {
	store := NewRunStore()

	run := &contracts.Run{ID: "abort-1", State: contracts.RunRunning}
	ctx, cancel := context.WithCancel(context.Background())

	err := store.Create(run, cancel)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	err = store.Abort("abort-1")
	if err != nil {
		t.Fatalf("Abort failed: %v", err)
	}

	if !store.IsAborting("abort-1") {
		t.Error("expected IsAborting to return true")
	}

	select {
	case <-ctx.Done():
	default:
		t.Error("expected context to be cancelled")
	}

	err = store.Abort("non-existent")
	if err == nil {
		t.Error("expected error for non-existent run")
	}
}

func TestRunStore_AbortCompleted(t *testing.T) {
	store := NewRunStore()

	run := &contracts.Run{ID: "abort-2", State: contracts.RunCompleted}
	_, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := store.Create(run, cancel)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	err = store.Abort("abort-2")
	if err == nil {
		t.Error("expected error for completed run")
	}
}

func TestRunStore_UpdateTimestamp(t *testing.T) {
	store := NewRunStore()

	run := &contracts.Run{ID: "ts-1", State: contracts.RunRunning}
	_, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := store.Create(run, cancel)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	_, created := store.GetTimestamps("ts-1")

	time.Sleep(10 * time.Millisecond)
	store.MarkDone("ts-1", nil)

	_, updated := store.GetTimestamps("ts-1")

	if updated <= created {
		t.Errorf("expected UpdatedAt > CreatedAt, got created=%d, updated=%d", created, updated)
	}
}

func TestRunStore_GetSnapshot(t *testing.T) {
	store := NewRunStore()

	run := &contracts.Run{
		ID:    "snap-1",
		State: contracts.RunRunning,
		Tasks: map[contracts.TaskID]*contracts.Task{
			"A": {
				ID:    "A",
				State: contracts.TaskSuccess,
				Outputs: &contracts.TaskResult{
					Output: "result-A",
				},
			},
		},
		Usage: contracts.Usage{Tokens: 100},
	}

	_, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := store.Create(run, cancel)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	snap, exists := store.GetSnapshot("snap-1")
	if !exists {
		t.Fatal("expected snapshot to exist")
	}

	if snap.APIState != "running" {
		t.Errorf("expected state 'running', got '%s'", snap.APIState)
	}

	if snap.Tasks["A"].Output != "result-A" {
		t.Errorf("expected task A output 'result-A', got '%v'", snap.Tasks["A"].Output)
	}
}

// ============================================================================
// Handler Tests
// ============================================================================

// echoServer builds a test Server whose only tool is "echo", resolving to a
// function that returns "ok".
func echoServer(t *testing.T) *Server {
	t.Helper()

	reg := registry.New()
	reg = registry.Register(reg, contracts.ToolDescriptor{Name: "echo", FunctionID: "fn.echo"})

	funcs := invoker.MapResolver{
		"fn.echo": func(ctx context.Context, in map[string]any) (any, error) {
			return "ok", nil
		},
	}

	return NewServer(":0", ServerOptions{Registry: reg, Funcs: funcs})
}

func blockingServer(t *testing.T, fn contracts.ToolFunc) *Server {
	t.Helper()

	reg := registry.New()
	reg = registry.Register(reg, contracts.ToolDescriptor{Name: "echo", FunctionID: "fn.echo"})

	funcs := invoker.MapResolver{"fn.echo": fn}

	return NewServer(":0", ServerOptions{Registry: reg, Funcs: funcs})
}

func TestHandleStartRun_Success(t *testing.T) {
	server := echoServer(t)

	reqBody := `{
		"id": "test-run",
		"final_output_node": "A",
		"policy": {"max_concurrent_tools": 2, "budget_limit": {"amount": 1.0, "currency": "USD"}},
		"tasks": [
			{"id": "A", "tool": "echo"}
		]
	}`

	req := httptest.NewRequest("POST", "/api/v1/runs", bytes.NewBufferString(reqBody))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	server.Handlers().HandleStartRun(w, req)

	if w.Code != http.StatusAccepted {
		t.Errorf("expected status 202, got %d: %s", w.Code, w.Body.String())
	}

	var resp RunResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.ID != "test-run" {
		t.Errorf("expected ID 'test-run', got '%s'", resp.ID)
	}
}

func TestHandleStartRun_InvalidJSON(t *testing.T) {
	server := echoServer(t)

	req := httptest.NewRequest("POST", "/api/v1/runs", bytes.NewBufferString("{invalid json"))
	w := httptest.NewRecorder()

	server.Handlers().HandleStartRun(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestHandleStartRun_DAGCycle(t *testing.T) {
	server := echoServer(t)

	reqBody := `{
		"final_output_node": "A",
		"policy": {"max_concurrent_tools": 1, "budget_limit": {"amount": 1.0, "currency": "USD"}},
		"tasks": [
			{"id": "A", "tool": "echo", "deps": ["B"]},
			{"id": "B", "tool": "echo", "deps": ["A"]}
		]
	}`

	req := httptest.NewRequest("POST", "/api/v1/runs", bytes.NewBufferString(reqBody))
	w := httptest.NewRecorder()

	server.Handlers().HandleStartRun(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected status 422, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandleStartRun_DuplicateID(t *testing.T) {
	server := blockingServer(t, func(ctx context.Context, in map[string]any) (any, error) {
		time.Sleep(100 * time.Millisecond)
		return "ok", nil
	})

	reqBody := `{
		"id": "dup-run",
		"final_output_node": "A",
		"policy": {"max_concurrent_tools": 1, "budget_limit": {"amount": 1.0, "currency": "USD"}},
		"tasks": [{"id": "A", "tool": "echo"}]
	}`

	req1 := httptest.NewRequest("POST", "/api/v1/runs", bytes.NewBufferString(reqBody))
	w1 := httptest.NewRecorder()
	server.Handlers().HandleStartRun(w1, req1)

	if w1.Code != http.StatusAccepted {
		t.Fatalf("first request failed: %d", w1.Code)
	}

	req2 := httptest.NewRequest("POST", "/api/v1/runs", bytes.NewBufferString(reqBody))
	w2 := httptest.NewRecorder()
	server.Handlers().HandleStartRun(w2, req2)

	if w2.Code != http.StatusConflict {
		t.Errorf("expected status 409, got %d: %s", w2.Code, w2.Body.String())
	}
}

func TestHandleGetStatus_NotFound(t *testing.T) {
	server := echoServer(t)

	req := httptest.NewRequest("GET", "/api/v1/runs/non-existent", nil)
	req.SetPathValue("id", "non-existent")
	w := httptest.NewRecorder()

	server.Handlers().HandleGetStatus(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
}

func TestHandleAbort_AlreadyCompleted(t *testing.T) {
	server := echoServer(t)

	run := &contracts.Run{ID: "completed-run", State: contracts.RunCompleted}
	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	server.Store().Create(run, cancel)

	req := httptest.NewRequest("POST", "/api/v1/runs/completed-run/abort", nil)
	req.SetPathValue("id", "completed-run")
	w := httptest.NewRecorder()

	server.Handlers().HandleAbort(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("expected status 409, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandleStartRun_MissingTool(t *testing.T) {
	server := echoServer(t)

	reqBody := `{
		"final_output_node": "A",
		"policy": {"max_concurrent_tools": 1, "budget_limit": {"amount": 1.0, "currency": "USD"}},
		"tasks": [{"id": "A"}]
	}`

	req := httptest.NewRequest("POST", "/api/v1/runs", bytes.NewBufferString(reqBody))
	w := httptest.NewRecorder()

	server.Handlers().HandleStartRun(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandleStartRun_ZeroConcurrency(t *testing.T) {
	server := echoServer(t)

	reqBody := `{
		"final_output_node": "A",
		"policy": {"max_concurrent_tools": 0, "budget_limit": {"amount": 0, "currency": "USD"}},
		"tasks": [{"id": "A", "tool": "echo"}]
	}`

	req := httptest.NewRequest("POST", "/api/v1/runs", bytes.NewBufferString(reqBody))
	w := httptest.NewRecorder()

	server.Handlers().HandleStartRun(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandleEnqueueTask_NotImplemented(t *testing.T) {
	server := echoServer(t)

	req := httptest.NewRequest("POST", "/api/v1/runs/any/tasks", nil)
	req.SetPathValue("id", "any")
	w := httptest.NewRecorder()

	server.Handlers().HandleEnqueueTask(w, req)

	if w.Code != http.StatusNotImplemented {
		t.Errorf("expected status 501, got %d", w.Code)
	}

	allow := w.Header().Get("Allow")
	if allow != "POST /api/v1/runs" {
		t.Errorf("expected Allow header 'POST /api/v1/runs', got '%s'", allow)
	}
}

// ============================================================================
// Integration Tests
// ============================================================================

func TestServer_FullCycle(t *testing.T) {
	completed := make(chan struct{})

	server := blockingServer(t, func(ctx context.Context, in map[string]any) (any, error) {
		return "result:A", nil
	})

	reqBody := `{
		"id": "full-cycle",
		"final_output_node": "A",
		"policy": {"max_concurrent_tools": 1, "budget_limit": {"amount": 1.0, "currency": "USD"}},
		"tasks": [
			{"id": "A", "tool": "echo"}
		]
	}`

	req := httptest.NewRequest("POST", "/api/v1/runs", bytes.NewBufferString(reqBody))
	w := httptest.NewRecorder()
	server.Handlers().HandleStartRun(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("StartRun failed: %d - %s", w.Code, w.Body.String())
	}

	go func() {
		for i := 0; i < 100; i++ {
			time.Sleep(10 * time.Millisecond)

			req := httptest.NewRequest("GET", "/api/v1/runs/full-cycle", nil)
			req.SetPathValue("id", "full-cycle")
			w := httptest.NewRecorder()
			server.Handlers().HandleGetStatus(w, req)

			var resp RunResponse
			json.NewDecoder(w.Body).Decode(&resp)

			if resp.State == "completed" {
				close(completed)
				return
			}
		}
	}()

	select {
	case <-completed:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for run to complete")
	}

	req = httptest.NewRequest("GET", "/api/v1/runs/full-cycle", nil)
	req.SetPathValue("id", "full-cycle")
	w = httptest.NewRecorder()
	server.Handlers().HandleGetStatus(w, req)

	var resp RunResponse
	json.NewDecoder(w.Body).Decode(&resp)

	if resp.State != "completed" {
		t.Errorf("expected state 'completed', got '%s'", resp.State)
	}

	if resp.Tasks == nil || resp.Tasks["A"].Output != "result:A" {
		t.Errorf("expected task A output 'result:A', got: %+v", resp.Tasks)
	}
}

func TestServer_AbortRunning(t *testing.T) {
	aborted := make(chan struct{})

	server := blockingServer(t, func(ctx context.Context, in map[string]any) (any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Second):
			return "should not reach", nil
		}
	})

	reqBody := `{
		"id": "abort-test",
		"final_output_node": "A",
		"policy": {"max_concurrent_tools": 1, "budget_limit": {"amount": 1.0, "currency": "USD"}},
		"tasks": [{"id": "A", "tool": "echo"}]
	}`

	req := httptest.NewRequest("POST", "/api/v1/runs", bytes.NewBufferString(reqBody))
	w := httptest.NewRecorder()
	server.Handlers().HandleStartRun(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("StartRun failed: %d", w.Code)
	}

	time.Sleep(50 * time.Millisecond)

	req = httptest.NewRequest("POST", "/api/v1/runs/abort-test/abort", nil)
	req.SetPathValue("id", "abort-test")
	w = httptest.NewRecorder()
	server.Handlers().HandleAbort(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Abort failed: %d - %s", w.Code, w.Body.String())
	}

	var abortResp RunResponse
	json.NewDecoder(w.Body).Decode(&abortResp)

	if abortResp.State != "aborting" {
		t.Errorf("expected state 'aborting', got '%s'", abortResp.State)
	}

	go func() {
		for i := 0; i < 100; i++ {
			time.Sleep(10 * time.Millisecond)

			req := httptest.NewRequest("GET", "/api/v1/runs/abort-test", nil)
			req.SetPathValue("id", "abort-test")
			w := httptest.NewRecorder()
			server.Handlers().HandleGetStatus(w, req)

			var resp RunResponse
			json.NewDecoder(w.Body).Decode(&resp)

			if resp.State == "aborted" || resp.State == "halted" {
				close(aborted)
				return
			}
		}
	}()

	select {
	case <-aborted:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for run to abort")
	}
}
