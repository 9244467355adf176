// Package agentstate tracks the tree of sub-agent and fleet-peer
// invocations: hierarchy, status, and results, owned by the Sub-Agent/Fleet
// Coordinator for the lifetime of one top-level run.
//
// Grounded directly on _examples/original_source/src/smith/core/agent_state.py:
// depth = parent.depth + 1, parent.children append, BFS-queue cleanup over
// descendants, and get_stats' total/by_status/active/root aggregation.
package agentstate

import (
	"sync"

	"github.com/google/uuid"

	"github.com/smith-runtime/smith/contracts"
)

// Stats mirrors agent_state.py's get_stats shape.
type Stats struct {
	TotalAgents  int
	ByStatus     map[string]int
	ActiveAgents int
	RootAgents   int
}

// Manager owns a tree of contracts.AgentState nodes.
type Manager struct {
	mu     sync.Mutex
	agents map[contracts.AgentID]*contracts.AgentState
}

func New() *Manager {
	return &Manager{agents: make(map[contracts.AgentID]*contracts.AgentState)}
}

// Create registers a new agent under parentID (empty for a root agent) and
// returns its id. depth is derived from the parent; a root agent has depth 0.
func (m *Manager) Create(task string, parentID contracts.AgentID, now contracts.Timestamp) contracts.AgentID {
	id := contracts.AgentID(uuid.NewString()[:8])

	m.mu.Lock()
	defer m.mu.Unlock()

	depth := 0
	var parentPtr *contracts.AgentID
	if parentID != "" {
		if parent, ok := m.agents[parentID]; ok {
			depth = parent.Depth + 1
			parent.Children = append(parent.Children, id)
			parentPtr = &parentID
		}
	}

	m.agents[id] = &contracts.AgentState{
		AgentID:   id,
		ParentID:  parentPtr,
		Depth:     depth,
		Task:      task,
		Status:    contracts.AgentInitializing,
		CreatedAt: now,
	}
	return id
}

// DepthOf returns the depth recorded for parentID (0 when it is unknown),
// without creating anything — the sub-agent spawn path adds one to it to
// check the depth bound before doing any work.
func (m *Manager) DepthOf(parentID contracts.AgentID) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if parent, ok := m.agents[parentID]; ok {
		return parent.Depth
	}
	return 0
}

// UpdateStatus transitions agentID to status, recording result/error and an
// end timestamp when the status is terminal.
func (m *Manager) UpdateStatus(agentID contracts.AgentID, status contracts.AgentStatus, result any, errMsg string, now contracts.Timestamp) {
	m.mu.Lock()
	defer m.mu.Unlock()

	agent, ok := m.agents[agentID]
	if !ok {
		return
	}
	agent.Status = status
	if status == contracts.AgentCompleted || status == contracts.AgentFailed || status == contracts.AgentCancelled {
		agent.EndedAt = now
	}
	if result != nil {
		agent.Result = result
	}
	if errMsg != "" {
		agent.Error = errMsg
	}
}

// Get returns a copy of agentID's state.
func (m *Manager) Get(agentID contracts.AgentID) (contracts.AgentState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	agent, ok := m.agents[agentID]
	if !ok {
		return contracts.AgentState{}, false
	}
	return *agent, true
}

// Children returns the direct children of agentID.
func (m *Manager) Children(agentID contracts.AgentID) []contracts.AgentState {
	m.mu.Lock()
	defer m.mu.Unlock()

	agent, ok := m.agents[agentID]
	if !ok {
		return nil
	}
	out := make([]contracts.AgentState, 0, len(agent.Children))
	for _, cid := range agent.Children {
		if c, ok := m.agents[cid]; ok {
			out = append(out, *c)
		}
	}
	return out
}

// Prune removes agentID and every descendant from tracking via a BFS walk,
// matching agent_state.py's cleanup_agent.
func (m *Manager) Prune(agentID contracts.AgentID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.agents[agentID]; !ok {
		return
	}

	queue := []contracts.AgentID{agentID}
	toRemove := []contracts.AgentID{agentID}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if agent, ok := m.agents[current]; ok {
			toRemove = append(toRemove, agent.Children...)
			queue = append(queue, agent.Children...)
		}
	}
	for _, id := range toRemove {
		delete(m.agents, id)
	}
}

// Stats aggregates totals, a per-status breakdown, active-agent count, and
// root-agent count across every tracked agent.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{ByStatus: make(map[string]int)}
	for _, agent := range m.agents {
		s.TotalAgents++
		s.ByStatus[agent.Status.String()]++
		if agent.Status == contracts.AgentInitializing || agent.Status == contracts.AgentRunning {
			s.ActiveAgents++
		}
		if agent.ParentID == nil {
			s.RootAgents++
		}
	}
	return s
}
