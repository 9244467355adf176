package orchestration

import (
	"sort"
	"strconv"

	"github.com/smith-runtime/smith/contracts"
)

// sortTaskIDs orders ids using the same numeric-first comparison NextReady
// uses, so the Orchestrator's commit pass applies side effects in the same
// deterministic order regardless of goroutine completion order.
func sortTaskIDs(ids []contracts.TaskID) {
	sort.Slice(ids, func(i, j int) bool {
		return lessTaskID(ids[i], ids[j])
	})
}

// parseTaskID interprets a TaskID as the dense non-negative integer node id
// the data model specifies. Planner-produced ids are always numeric
// strings; this helper lets the scheduler and resolver sort/compare them
// numerically instead of lexicographically (which would misorder "10"
// before "2").
func parseTaskID(id contracts.TaskID) (int, error) {
	return strconv.Atoi(string(id))
}
