// Package audit provides the structured execution audit trail: one
// key/value log line per significant run event (task committed, run
// terminal), distinct from the engine event stream (internal/telemetry),
// which is aimed at a CLI or API consumer rather than an operator's log
// pipeline.
//
// Grounded on the teacher's internal/audit package (an [AUDIT]-prefixed
// log.Printf shim) repointed onto github.com/hashicorp/go-hclog, the
// structured logger the rest of the runtime uses.
package audit

import "github.com/hashicorp/go-hclog"

// Trail records audit events through a named hclog.Logger sub-logger.
type Trail struct {
	logger hclog.Logger
}

// New creates a Trail. A nil logger is replaced with a no-op logger.
func New(logger hclog.Logger) *Trail {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Trail{logger: logger.Named("audit")}
}

// Record logs one structured audit event with the given key/value pairs.
func (t *Trail) Record(event string, keyvals ...any) {
	t.logger.Info(event, keyvals...)
}
