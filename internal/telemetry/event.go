// Package telemetry implements the engine event stream: an ordered sequence
// of typed events a CLI or API surface renders to a user as a run
// progresses, without coupling the Planner or Orchestrator to any particular
// presentation.
//
// Grounded on _examples/original_source/src/smith/core/orchestrator.py's
// smith_orchestrator generator, which yields dicts of {"type": ..., ...} as
// it drives a run (status, plan_created, step_start, step_complete,
// final_answer, error). This package gives that same shape a typed Go form
// over the six event kinds the external interfaces section names.
package telemetry

import "time"

// Kind identifies the shape of an Event's Payload.
type Kind string

const (
	KindPlanning     Kind = "planning"
	KindPlanComplete Kind = "plan_complete"
	KindToolStart    Kind = "tool_start"
	KindToolComplete Kind = "tool_complete"
	KindFinalAnswer  Kind = "final_answer"
	KindError        Kind = "error"
)

// Event is one entry of the engine event stream.
type Event struct {
	Kind    Kind
	At      time.Time
	Payload map[string]any
}

// Emitter accepts one Event. Planner and Orchestrator call sites hold an
// Emitter, not a Stream, so tests can substitute a recording fake.
type Emitter interface {
	Emit(Event)
}

// EmitterFunc adapts a plain function to an Emitter.
type EmitterFunc func(Event)

func (f EmitterFunc) Emit(e Event) { f(e) }

// Discard is an Emitter that drops every event, the zero-value default for
// callers that don't want a stream.
var Discard Emitter = EmitterFunc(func(Event) {})

// Planning reports that generation of a new plan has started.
func Planning() Event {
	return Event{Kind: KindPlanning, Payload: map[string]any{}}
}

// PlanComplete reports a validated DAG's size and the tool names it uses.
func PlanComplete(numNodes int, tools []string) Event {
	return Event{Kind: KindPlanComplete, Payload: map[string]any{
		"num_nodes": numNodes,
		"tools":     tools,
	}}
}

// ToolStart reports that a node has been dispatched to the Tool Invoker.
func ToolStart(nodeID, tool string) Event {
	return Event{Kind: KindToolStart, Payload: map[string]any{
		"node_id": nodeID,
		"tool":    tool,
	}}
}

// ToolComplete reports a node's terminal outcome and wall-clock duration.
func ToolComplete(nodeID, status string, duration time.Duration) Event {
	return Event{Kind: KindToolComplete, Payload: map[string]any{
		"node_id":  nodeID,
		"status":   status,
		"duration": duration.Seconds(),
	}}
}

// FinalAnswer reports the synthesized response surfaced at the end of a run.
func FinalAnswer(response any) Event {
	return Event{Kind: KindFinalAnswer, Payload: map[string]any{
		"response": response,
	}}
}

// Error reports a fatal condition naming the phase and any offending node.
func Error(message string, details map[string]any) Event {
	return Event{Kind: KindError, Payload: map[string]any{
		"message": message,
		"details": details,
	}}
}
