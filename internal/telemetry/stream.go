package telemetry

import "sync"

// Stream is a broadcast Emitter: every Emit is appended to an in-memory log
// and forwarded to any subscriber channels registered via Subscribe, so a
// consumer can render events as they happen. cmd/smith and the HTTP API do
// not use it: cmd/smith emits through an EmitterFunc, and HTTP runs leave
// Events unset, which defaults to telemetry.Discard.
type Stream struct {
	mu     sync.Mutex
	events []Event
	subs   map[chan Event]struct{}
}

// NewStream creates an empty Stream.
func NewStream() *Stream {
	return &Stream{subs: make(map[chan Event]struct{})}
}

// Emit records the event and forwards it to every live subscriber. A
// subscriber whose channel is full is skipped rather than blocking the run.
func (s *Stream) Emit(e Event) {
	s.mu.Lock()
	s.events = append(s.events, e)
	subs := make([]chan Event, 0, len(s.subs))
	for ch := range s.subs {
		subs = append(subs, ch)
	}
	s.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe returns a channel that receives every future Emit call, and an
// unsubscribe function the caller must invoke when done listening.
func (s *Stream) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 64)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	unsubscribe := func() {
		s.mu.Lock()
		delete(s.subs, ch)
		s.mu.Unlock()
		close(ch)
	}
	return ch, unsubscribe
}

// Events returns a copy of every event recorded so far.
func (s *Stream) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}
