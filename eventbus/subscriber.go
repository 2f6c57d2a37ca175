package eventbus

import (
	"sync"
	"time"
)

// State is a subscriber lifecycle state. CONNECTING and ACTIVE are live;
// CLOSED, REAPED and ERRORED are terminal. A reconnecting client always gets
// a brand-new Subscriber.
type State string

const (
	StateConnecting State = "CONNECTING"
	StateActive     State = "ACTIVE"
	StateClosed     State = "CLOSED"
	StateReaped     State = "REAPED"
	StateErrored    State = "ERRORED"
)

// Subscriber is one client's registration on the broker. It is ephemeral and
// process-local.
type Subscriber struct {
	ID          string
	TenantID    string
	UserID      string
	ConnectedAt time.Time

	ch   chan Event
	done chan struct{}

	mu           sync.Mutex
	state        State
	lastActivity time.Time
}

// Events returns the channel the client reads delivered events from.
func (s *Subscriber) Events() <-chan Event {
	return s.ch
}

// Done is closed when the subscriber reaches a terminal state. Consumers
// select on it alongside Events.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

// State returns the current lifecycle state.
func (s *Subscriber) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastActivity returns when an event was last delivered to this subscriber.
func (s *Subscriber) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *Subscriber) activate() {
	s.mu.Lock()
	s.state = StateActive
	s.mu.Unlock()
}

// send delivers an event, waiting at most timeout for a stalled consumer.
// Returns false when the subscriber is not ACTIVE, already terminated, or
// too slow; a successful delivery refreshes lastActivity.
func (s *Subscriber) send(event Event, timeout time.Duration) bool {
	s.mu.Lock()
	active := s.state == StateActive
	s.mu.Unlock()
	if !active {
		return false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case s.ch <- event:
		s.touch(time.Now())
		return true
	case <-s.done:
		return false
	case <-timer.C:
		return false
	}
}

func (s *Subscriber) touch(now time.Time) {
	s.mu.Lock()
	s.lastActivity = now
	s.mu.Unlock()
}

// terminate moves the subscriber into a terminal state and releases any
// consumer blocked on Done. Only the first transition wins.
func (s *Subscriber) terminate(to State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed || s.state == StateReaped || s.state == StateErrored {
		return false
	}
	s.state = to
	close(s.done)
	return true
}

// isIdle reports whether the subscriber has seen no delivery since before
// the cutoff.
func (s *Subscriber) isIdle(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity.Before(cutoff)
}
