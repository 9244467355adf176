// Package planner implements the compiler front-end: prompt assembly,
// generation, parse, structural validation, and a bounded repair loop that
// turns a user utterance plus a tool registry into a validated DAG.
//
// Grounded on _examples/original_source/src/smith/planner.py: the
// clean-json-output stripping, the registry-indexed per-node schema check,
// the repair-prompt-with-last-error loop, and the dedicated syntax-only
// repair pass triggered specifically by a parse failure. Cycle-freedom is
// verified with github.com/philopon/go-toposort; no depends_on < id ordering
// is required, since a malformed depends_on set can violate id-ordering
// without actually cycling, and vice versa a repaired plan may legitimately
// renumber nodes.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	toposort "github.com/philopon/go-toposort"
	"github.com/hashicorp/go-hclog"

	"github.com/smith-runtime/smith/contracts"
	"github.com/smith-runtime/smith/internal/telemetry"
)

// MaxAttempts bounds the generate/repair loop, matching planner.py's
// MAX_PLANNER_ATTEMPTS.
const MaxAttempts = 3

// placeholderOpen and placeholderClose detect a template placeholder: a
// string value containing both "{{" and "}}" is rejected; the component design forbids template placeholders in
// node inputs — dependency values must flow via depends_on edges only.
const placeholderOpen, placeholderClose = "{{", "}}"

// Collaborator is the external language-model contract the Planner drives.
// Individual collaborator implementations are out of scope; this interface
// is the seam.
type Collaborator interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Error is returned when the Planner exhausts its repair budget without
// producing a valid DAG. It always wraps contracts.ErrPlannerFailed.
type Error struct {
	Reason        string
	LastCandidate string
}

func (e *Error) Error() string {
	return fmt.Sprintf("planner failed: %s", e.Reason)
}

func (e *Error) Unwrap() error { return contracts.ErrPlannerFailed }

// Planner compiles utterances into validated DAGs.
type Planner struct {
	collaborator Collaborator
	registry     contracts.Registry
	logger       hclog.Logger
	events       telemetry.Emitter
}

func New(collaborator Collaborator, registry contracts.Registry, logger hclog.Logger) *Planner {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Planner{
		collaborator: collaborator,
		registry:     registry,
		logger:       logger.Named("planner"),
		events:       telemetry.Discard,
	}
}

// WithEmitter attaches a telemetry stream so Plan reports planning and
// plan_complete events as it runs. Returns the Planner for chaining.
func (p *Planner) WithEmitter(e telemetry.Emitter) *Planner {
	if e != nil {
		p.events = e
	}
	return p
}

// wireNode is the on-the-wire node shape of the external interfaces section.
type wireNode struct {
	ID        int            `json:"id"`
	Tool      string         `json:"tool"`
	Function  string         `json:"function"`
	Inputs    map[string]any `json:"inputs"`
	DependsOn []int          `json:"depends_on"`
	Retry     int            `json:"retry"`
	Timeout   float64        `json:"timeout"`
	OnFail    string         `json:"on_fail"`
	Metadata  struct {
		Purpose string `json:"purpose"`
	} `json:"metadata"`
}

// depEdge records a "from must complete before to" dependency pair, fed to
// the cycle checker.
type depEdge struct{ from, to int }

type wirePlan struct {
	Status          string     `json:"status"`
	Error           string     `json:"error"`
	Nodes           []wireNode `json:"nodes"`
	FinalOutputNode int        `json:"final_output_node"`
}

// Plan runs the full generate -> parse -> validate -> repair pipeline for
// utterance, returning a validated DAG and its constituent Tasks, or an
// *Error describing the last failure after MaxAttempts.
func (p *Planner) Plan(ctx context.Context, utterance string) (*contracts.DAG, []contracts.Task, error) {
	p.events.Emit(telemetry.Planning())

	registryDoc := p.renderRegistry()

	var lastRaw, lastErrMsg string

	for attempt := 0; attempt < MaxAttempts; attempt++ {
		var prompt string
		if attempt == 0 {
			prompt = assemblyPrompt(registryDoc, utterance)
		} else {
			prompt = repairPrompt(registryDoc, utterance, lastRaw, lastErrMsg)
		}

		p.logger.Info("planner generation attempt", "attempt", attempt+1, "max_attempts", MaxAttempts)

		raw, err := p.collaborator.Complete(ctx, prompt)
		if err != nil {
			lastErrMsg = fmt.Sprintf("generation failed: %v", err)
			p.logger.Warn("planner generation failed", "attempt", attempt+1, "error", err)
			continue
		}
		lastRaw = raw

		cleaned := cleanJSONOutput(raw)
		plan, err := parsePlan(cleaned)
		if err != nil {
			p.logger.Warn("planner parse failed, invoking syntax-only repair", "attempt", attempt+1, "error", err)
			fixed, fixErr := p.collaborator.Complete(ctx, syntaxRepairPrompt(cleaned, err.Error()))
			if fixErr != nil {
				lastErrMsg = fmt.Sprintf("syntax-fix generation failed: %v", fixErr)
				continue
			}
			fixedClean := cleanJSONOutput(fixed)
			lastRaw = fixedClean
			plan, err = parsePlan(fixedClean)
			if err != nil {
				lastErrMsg = fmt.Sprintf("JSON parse error after syntax fix: %v", err)
				continue
			}
		}

		if plan.Status == "error" {
			lastErrMsg = fmt.Sprintf("planner declined: %s", plan.Error)
			p.logger.Warn("planner declined the request", "reason", plan.Error)
			continue
		}

		dag, tasks, err := p.validate(plan, utterance)
		if err != nil {
			lastErrMsg = err.Error()
			p.logger.Warn("planner validation failed", "attempt", attempt+1, "error", err)
			continue
		}

		p.logger.Info("planner produced a valid DAG", "node_count", len(tasks))
		p.events.Emit(telemetry.PlanComplete(len(tasks), toolNames(tasks)))
		return dag, tasks, nil
	}

	p.events.Emit(telemetry.Error("planner failed", map[string]any{"reason": lastErrMsg}))
	return nil, nil, &Error{Reason: lastErrMsg, LastCandidate: lastRaw}
}

// toolNames collects the distinct tool names a validated plan uses, in node order.
func toolNames(tasks []contracts.Task) []string {
	seen := make(map[contracts.ToolName]bool, len(tasks))
	names := make([]string, 0, len(tasks))
	for _, t := range tasks {
		if seen[t.Tool] {
			continue
		}
		seen[t.Tool] = true
		names = append(names, string(t.Tool))
	}
	return names
}

// cleanJSONOutput strips markdown fences and isolates the first JSON object,
// mirroring planner.py's _clean_json_output.
func cleanJSONOutput(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.Split(text, "\n")
		if len(lines) >= 3 {
			text = strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
		}
	}

	start := strings.Index(text, "{")
	if start == -1 {
		return text
	}
	end := strings.LastIndex(text, "}")
	if end == -1 {
		end = len(text) - 1
	}
	return text[start : end+1]
}

func parsePlan(cleaned string) (*wirePlan, error) {
	var plan wirePlan
	if err := json.Unmarshal([]byte(cleaned), &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

// validate applies every invariant of the data model section plus the
// registry/schema/placeholder/cycle/synthesis rules of the validation pass.
func (p *Planner) validate(plan *wirePlan, utterance string) (*contracts.DAG, []contracts.Task, error) {
	if len(plan.Nodes) == 0 {
		return nil, nil, fmt.Errorf("missing or empty nodes list: %w", contracts.ErrDAGInvalid)
	}

	seen := make(map[int]bool, len(plan.Nodes))
	for _, n := range plan.Nodes {
		if seen[n.ID] {
			return nil, nil, fmt.Errorf("duplicate node id %d: %w", n.ID, contracts.ErrDAGInvalid)
		}
		seen[n.ID] = true
	}

	tasks := make([]contracts.Task, 0, len(plan.Nodes))
	nodesByID := make(map[int]wireNode, len(plan.Nodes))
	for _, n := range plan.Nodes {
		nodesByID[n.ID] = n
	}

	edges := make([]depEdge, 0)
	for _, n := range plan.Nodes {
		if n.Tool == "" {
			return nil, nil, fmt.Errorf("node %d: missing tool: %w", n.ID, contracts.ErrDAGInvalid)
		}

		desc, ok := p.registry.Lookup(contracts.ToolName(n.Tool))
		if !ok {
			return nil, nil, fmt.Errorf("node %d: tool %q not in registry: %w", n.ID, n.Tool, contracts.ErrToolNotFound)
		}

		if err := validateInputs(n, desc); err != nil {
			return nil, nil, err
		}
		if err := checkPlaceholders(n); err != nil {
			return nil, nil, err
		}

		deps := make([]contracts.TaskID, 0, len(n.DependsOn))
		for _, dep := range n.DependsOn {
			if dep == n.ID {
				return nil, nil, fmt.Errorf("node %d: self-dependency: %w", n.ID, contracts.ErrDAGInvalid)
			}
			if !seen[dep] {
				return nil, nil, fmt.Errorf("node %d: depends_on references unknown id %d: %w", n.ID, dep, contracts.ErrDepNotFound)
			}
			deps = append(deps, contracts.TaskID(strconv.Itoa(dep)))
			edges = append(edges, depEdge{from: dep, to: n.ID})
		}

		onFail := contracts.OnFailPolicy(n.OnFail)
		if onFail != contracts.OnFailHalt && onFail != contracts.OnFailContinue {
			return nil, nil, fmt.Errorf("node %d: on_fail must be 'halt' or 'continue', got %q: %w", n.ID, n.OnFail, contracts.ErrDAGInvalid)
		}
		if n.Retry < 0 {
			return nil, nil, fmt.Errorf("node %d: retry must be >= 0: %w", n.ID, contracts.ErrDAGInvalid)
		}
		if n.Timeout <= 0 {
			return nil, nil, fmt.Errorf("node %d: timeout must be > 0: %w", n.ID, contracts.ErrDAGInvalid)
		}

		tasks = append(tasks, contracts.Task{
			ID:      contracts.TaskID(strconv.Itoa(n.ID)),
			State:   contracts.TaskPending,
			Tool:    contracts.ToolName(n.Tool),
			Inputs:  n.Inputs,
			Deps:    deps,
			Retry:   n.Retry,
			Timeout: secondsToDuration(n.Timeout),
			OnFail:  onFail,
			Purpose: n.Metadata.Purpose,
		})
	}

	if !seen[plan.FinalOutputNode] {
		return nil, nil, fmt.Errorf("final_output_node %d does not exist: %w", plan.FinalOutputNode, contracts.ErrDAGInvalid)
	}

	if err := checkAcyclic(plan.Nodes, edges); err != nil {
		return nil, nil, err
	}

	if err := p.checkSynthesisLinearity(plan, nodesByID, utterance); err != nil {
		return nil, nil, err
	}

	dag := &contracts.DAG{
		Nodes:           make(map[contracts.TaskID]*contracts.DAGNode, len(tasks)),
		Edges:           make(map[contracts.TaskID][]contracts.TaskID),
		FinalOutputNode: contracts.TaskID(strconv.Itoa(plan.FinalOutputNode)),
	}
	for _, t := range tasks {
		dag.Nodes[t.ID] = &contracts.DAGNode{ID: t.ID, Deps: t.Deps, Pending: len(t.Deps)}
	}
	for _, t := range tasks {
		for _, dep := range t.Deps {
			dag.Nodes[dep].Next = append(dag.Nodes[dep].Next, t.ID)
			dag.Edges[dep] = append(dag.Edges[dep], t.ID)
		}
	}

	return dag, tasks, nil
}

func secondsToDuration(secs float64) time.Duration {
	return time.Duration(secs * float64(time.Second))
}

func checkPlaceholders(n wireNode) error {
	for key, v := range n.Inputs {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if strings.Contains(s, placeholderOpen) && strings.Contains(s, placeholderClose) {
			return fmt.Errorf("node %d: input %q contains a forbidden template placeholder: %w", n.ID, key, contracts.ErrPlaceholder)
		}
	}
	return nil
}

// validateInputs checks every input key against the tool's parameter
// schema, every required key is present, and that types match with modest
// integer<->number coercion tolerance.
func validateInputs(n wireNode, desc contracts.ToolDescriptor) error {
	for key, v := range n.Inputs {
		spec, ok := desc.Parameters[key]
		if !ok {
			return fmt.Errorf("node %d: input %q not declared on tool %q's parameter schema: %w", n.ID, key, n.Tool, contracts.ErrSchemaInvalid)
		}
		if !typeMatches(spec.Type, v) {
			return fmt.Errorf("node %d: input %q has type %T, want %q: %w", n.ID, key, v, spec.Type, contracts.ErrSchemaInvalid)
		}
	}
	for _, req := range desc.Required {
		if _, ok := n.Inputs[req]; !ok {
			return fmt.Errorf("node %d: missing required input %q for tool %q: %w", n.ID, req, n.Tool, contracts.ErrSchemaInvalid)
		}
	}
	return nil
}

func typeMatches(declared string, v any) bool {
	switch declared {
	case "", "any":
		return true
	case "string":
		_, ok := v.(string)
		return ok
	case "boolean", "bool":
		_, ok := v.(bool)
		return ok
	case "integer", "number":
		switch v.(type) {
		case float64, int, int64:
			return true
		default:
			return false
		}
	case "array":
		_, ok := v.([]any)
		return ok
	case "object":
		_, ok := v.(map[string]any)
		return ok
	default:
		return true
	}
}

// checkAcyclic verifies the dependency graph has a valid topological
// ordering. Nodes are keyed by their string id (toposort.Graph operates on
// string node names); an edge from->to means "from must be ordered before
// to", matching depends_on's semantics.
func checkAcyclic(nodes []wireNode, edges []depEdge) error {
	graph := toposort.NewGraph(len(nodes))
	for _, n := range nodes {
		graph.AddNode(strconv.Itoa(n.ID))
	}
	for _, e := range edges {
		graph.AddEdge(strconv.Itoa(e.from), strconv.Itoa(e.to))
	}
	if _, ok := graph.Toposort(); !ok {
		return fmt.Errorf("dependency graph contains a cycle: %w", contracts.ErrDAGCycle)
	}
	return nil
}

// checkSynthesisLinearity enforces that a narrative-demanding request's
// final_output_node resolves to a synthesis tool (a registered tool whose
// output_type is "synthesis", generalizing planner.py's "llm_caller"
// convention), and that when multiple synthesis nodes appear, each
// subsequent one depends on the previous — enforcing linear narrative
// composition rather than parallel, mutually-unaware synthesis branches.
func (p *Planner) checkSynthesisLinearity(plan *wirePlan, nodesByID map[int]wireNode, utterance string) error {
	isSynthesis := func(n wireNode) bool {
		desc, ok := p.registry.Lookup(contracts.ToolName(n.Tool))
		return ok && desc.OutputType == "synthesis"
	}

	var synthesisIDs []int
	for _, n := range plan.Nodes {
		if isSynthesis(n) {
			synthesisIDs = append(synthesisIDs, n.ID)
		}
	}

	if demandsNarrative(utterance) {
		final, ok := nodesByID[plan.FinalOutputNode]
		if !ok || !isSynthesis(final) {
			return fmt.Errorf("final_output_node must reference a synthesis tool for a narrative request: %w", contracts.ErrDAGInvalid)
		}
	}

	if len(synthesisIDs) < 2 {
		return nil
	}
	sortedIDs := append([]int(nil), synthesisIDs...)
	sort.Ints(sortedIDs)
	for i := 1; i < len(sortedIDs); i++ {
		current := nodesByID[sortedIDs[i]]
		prev := sortedIDs[i-1]
		dependsOnPrev := false
		for _, dep := range current.DependsOn {
			if dep == prev {
				dependsOnPrev = true
				break
			}
		}
		if !dependsOnPrev {
			return fmt.Errorf("synthesis node %d must depend on preceding synthesis node %d to enforce linear narrative composition: %w", current.ID, prev, contracts.ErrDAGInvalid)
		}
	}
	return nil
}

// demandsNarrative is a conservative heuristic: requests asking for a
// written report, summary, comparison, or explanation need a synthesis
// final node. It deliberately errs toward not requiring synthesis — it only
// flags the clearest cases, since over-rejection would block valid
// data-only plans (e.g. "what's AAPL trading at").
func demandsNarrative(utterance string) bool {
	lower := strings.ToLower(utterance)
	for _, kw := range []string{"summarize", "summary", "compare", "explain", "report", "write", "analy"} {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func (p *Planner) renderRegistry() string {
	descs := p.registry.ListAll()
	type entry struct {
		Name        string                          `json:"name"`
		Description string                          `json:"description"`
		Dangerous   bool                            `json:"dangerous"`
		Parameters  map[string]contracts.ParamSpec `json:"parameters"`
		Resources   []string                        `json:"resources,omitempty"`
	}
	entries := make([]entry, 0, len(descs))
	for _, d := range descs {
		entries = append(entries, entry{
			Name:        d.Name,
			Description: d.Description,
			Dangerous:   d.Dangerous,
			Parameters:  d.Parameters,
			Resources:   d.Resources,
		})
	}
	b, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(b)
}
