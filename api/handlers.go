package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/smith-runtime/smith/contracts"
	"github.com/smith-runtime/smith/internal/invoker"
	"github.com/smith-runtime/smith/internal/orchestration"
)

// maxRequestBodySize limits the size of incoming request bodies (4MB).
const maxRequestBodySize = 4 * 1024 * 1024

// runRetention controls how long completed runs are kept in memory.
const runRetention = time.Hour

// defaultTaskTimeout applies when neither a task nor its run policy sets one
// explicitly — a zero timeout would otherwise make the Tool Invoker's
// whole-node deadline expire before the first attempt starts.
const defaultTaskTimeout = 30 * time.Second

// Handlers contains the HTTP handler methods for the API. One Handlers
// instance serves a fixed tool catalog (registry + function resolver) shared
// across every run it starts — tools are a deployment-time concern, not a
// per-request one.
type Handlers struct {
	store    *RunStore
	registry contracts.Registry
	funcs    invoker.FuncResolver
	approval contracts.ApprovalCallback
	logger   hclog.Logger
	auditDir string // directory for run audit JSON files (empty = disabled)
}

// NewHandlers creates a new Handlers instance.
// auditDir specifies the directory for run audit JSON files (empty = disabled).
func NewHandlers(store *RunStore, registry contracts.Registry, funcs invoker.FuncResolver, approval contracts.ApprovalCallback, logger hclog.Logger, auditDir string) *Handlers {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Handlers{
		store:    store,
		registry: registry,
		funcs:    funcs,
		approval: approval,
		logger:   logger,
		auditDir: auditDir,
	}
}

// HandleStartRun handles POST /api/v1/runs.
func (h *Handlers) HandleStartRun(w http.ResponseWriter, r *http.Request) {
	limitedReader := io.LimitReader(r.Body, maxRequestBodySize+1)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		WriteError(w, fmt.Errorf("failed to read request body: %w", contracts.ErrInvalidInput))
		return
	}
	if len(body) > maxRequestBodySize {
		WriteError(w, fmt.Errorf("request body too large (max %d bytes): %w", maxRequestBodySize, contracts.ErrInvalidInput))
		return
	}

	var req StartRunRequest
	if err := json.Unmarshal(body, &req); err != nil {
		WriteError(w, fmt.Errorf("invalid JSON: %w", contracts.ErrInvalidInput))
		return
	}

	if err := validateStartRunRequest(&req); err != nil {
		WriteError(w, err)
		return
	}

	runID := req.ID
	if runID == "" {
		runID = generateRunID()
	}

	policy := req.Policy.ToRunPolicy()
	if policy.DefaultTimeout == 0 {
		policy.DefaultTimeout = defaultTaskTimeout
	}
	taskMap := make(map[contracts.TaskID]*contracts.Task, len(req.Tasks))
	tasks := make([]contracts.Task, len(req.Tasks))

	for i, taskDTO := range req.Tasks {
		task := taskDTO.ToTask()
		if task.Timeout == 0 {
			task.Timeout = policy.DefaultTimeout
		}
		tasks[i] = *task
		taskMap[task.ID] = task
	}

	resolver := orchestration.NewDependencyResolver()
	dag, err := resolver.BuildDAG(tasks, contracts.TaskID(req.FinalOutputNode))
	if err != nil {
		WriteError(w, err)
		return
	}
	if err := resolver.Validate(dag, h.registry); err != nil {
		WriteError(w, err)
		return
	}

	run := &contracts.Run{
		ID:     contracts.RunID(runID),
		State:  contracts.RunPending,
		Policy: policy,
		DAG:    dag,
		Tasks:  taskMap,
	}

	ctx, cancel := context.WithCancel(context.Background())

	if err := h.store.Create(run, cancel); err != nil {
		cancel()
		WriteError(w, err)
		return
	}

	h.store.PruneCompleted(runRetention)

	go h.runOrchestrator(ctx, run)

	snap, _ := h.store.GetSnapshot(run.ID)
	resp := SnapshotToResponse(snap)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, resp)
}

// HandleGetStatus handles GET /api/v1/runs/{id}.
func (h *Handlers) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	if runID == "" {
		WriteError(w, fmt.Errorf("missing run ID: %w", contracts.ErrInvalidInput))
		return
	}

	snap, exists := h.store.GetSnapshot(contracts.RunID(runID))
	if !exists {
		WriteError(w, fmt.Errorf("run %s: %w", runID, contracts.ErrRunNotFound))
		return
	}

	resp := SnapshotToResponse(snap)

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, resp)
}

// HandleAbort handles POST /api/v1/runs/{id}/abort.
func (h *Handlers) HandleAbort(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	if runID == "" {
		WriteError(w, fmt.Errorf("missing run ID: %w", contracts.ErrInvalidInput))
		return
	}

	if err := h.store.Abort(contracts.RunID(runID)); err != nil {
		WriteError(w, err)
		return
	}

	snap, exists := h.store.GetSnapshot(contracts.RunID(runID))
	if !exists {
		WriteError(w, fmt.Errorf("run %s: %w", runID, contracts.ErrRunNotFound))
		return
	}

	resp := SnapshotToResponse(snap)

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, resp)
}

// HandleEnqueueTask handles POST /api/v1/runs/{id}/tasks.
// V1: Returns 501 Not Implemented.
func (h *Handlers) HandleEnqueueTask(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", "POST /api/v1/runs")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotImplemented)
	writeJSON(w, ErrorDTO{
		Code:    string(CodeNotImplemented),
		Message: "Dynamic task addition not supported in V1. Submit all tasks in StartRun.",
	})
}

// runOrchestrator runs the orchestrator for a run in a goroutine.
//
// RACE SAFETY NOTE: the orchestrator modifies run.Tasks and run.State during
// execution. To avoid concurrent reads of run, API handlers read only the
// shadow state maintained by RunStore. The progress callback syncs shadow
// state after each round, and MarkDone performs a final sync once the run
// finishes.
func (h *Handlers) runOrchestrator(ctx context.Context, run *contracts.Run) {
	h.store.SetShadowRunState(run.ID, contracts.RunRunning)
	h.store.UpdateTimestamp(run.ID)

	onProgress := func(run *contracts.Run) {
		h.store.UpdateShadowState(run.ID)
	}

	orch := orchestration.Build(orchestration.BuildOptions{
		AgentID:    contracts.AgentID(run.ID),
		Registry:   h.registry,
		Funcs:      h.funcs,
		Approval:   h.approval,
		Policy:     run.Policy,
		Logger:     h.logger.Named("run").With("run_id", string(run.ID)),
		OnProgress: onProgress,
	})

	err := orch.Run(ctx, run)
	h.store.MarkDone(run.ID, err)

	if h.auditDir != "" {
		h.writeAuditFile(run.ID)
	}
}

// writeAuditFile writes the run audit to a JSON file in the configured audit directory.
func (h *Handlers) writeAuditFile(runID contracts.RunID) {
	snap, exists := h.store.GetSnapshot(runID)
	if !exists {
		h.logger.Warn("cannot write audit file, run not found", "run_id", runID)
		return
	}

	resp := SnapshotToResponse(snap)
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		h.logger.Error("failed to marshal audit JSON", "run_id", runID, "error", err)
		return
	}

	filename := filepath.Join(h.auditDir, fmt.Sprintf("run-%s.json", runID))
	if err := os.MkdirAll(h.auditDir, 0755); err != nil {
		h.logger.Error("failed to create audit dir", "dir", h.auditDir, "error", err)
		return
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		h.logger.Error("failed to write audit file", "path", filename, "error", err)
		return
	}

	h.logger.Info("audit file written", "run_id", runID, "path", filename)
}

// validateStartRunRequest validates a StartRunRequest.
func validateStartRunRequest(req *StartRunRequest) error {
	if req.Policy.MaxConcurrentTools <= 0 {
		return fmt.Errorf("policy.max_concurrent_tools must be > 0: %w", contracts.ErrInvalidInput)
	}

	if len(req.Tasks) == 0 {
		return fmt.Errorf("at least one task is required: %w", contracts.ErrInvalidInput)
	}
	if req.FinalOutputNode == "" {
		return fmt.Errorf("final_output_node is required: %w", contracts.ErrInvalidInput)
	}

	taskIDs := make(map[string]bool)
	for _, task := range req.Tasks {
		if task.ID == "" {
			return fmt.Errorf("task.id is required: %w", contracts.ErrInvalidInput)
		}
		if taskIDs[task.ID] {
			return fmt.Errorf("duplicate task.id: %s: %w", task.ID, contracts.ErrInvalidInput)
		}
		taskIDs[task.ID] = true

		if task.Tool == "" {
			return fmt.Errorf("task %s: tool is required: %w", task.ID, contracts.ErrInvalidInput)
		}
	}

	return nil
}

// generateRunID generates a unique run ID.
func generateRunID() string {
	return fmt.Sprintf("run-%d", timeNowFunc().UnixNano())
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		_ = err
	}
}

// timeNowFunc is a variable for testing time-dependent code.
var timeNowFunc = time.Now
