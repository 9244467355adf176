// Package contracts defines the core types and interfaces for the Smith DAG Runtime.
package contracts

// RunID uniquely identifies a run of the Orchestrator over one DAG.
type RunID string

// TaskID uniquely identifies a node within a DAG. Wire form is a dense
// non-negative integer; internally it is carried as a string so the rest of
// the runtime (maps, sorting, logging) stays generic.
type TaskID string

// ToolName is the registry key for a tool descriptor.
type ToolName string

// AgentID identifies one node of the sub-agent/fleet agent-state tree.
type AgentID string

// ModelID identifies a language model used by an external collaborator call
// (Planner generation, sub-agent/fleet decomposition and synthesis).
type ModelID string

// TokenCount represents a count of tokens.
type TokenCount int64

// Currency represents a currency code (e.g., "USD").
type Currency string

// Timestamp represents a Unix timestamp in milliseconds.
type Timestamp int64
