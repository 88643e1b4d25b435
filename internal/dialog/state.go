package dialog

import (
	"sync"
	"time"
)

// State is what the engine expects from a user's next free-text message
type State int

const (
	Idle State = iota
	AwaitingCityForCurrentWeather
	AwaitingTwoCitiesForComparison
	AwaitingCityForExtendedData
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingCityForCurrentWeather:
		return "awaiting_city_current"
	case AwaitingTwoCitiesForComparison:
		return "awaiting_two_cities"
	case AwaitingCityForExtendedData:
		return "awaiting_city_extended"
	default:
		return "unknown"
	}
}

type pending struct {
	state State
	since time.Time
}

// stateTable holds pending states only; a missing user is Idle.
// Entries older than ttl read as Idle.
type stateTable struct {
	mu      sync.Mutex
	pending map[int64]pending
	ttl     time.Duration
	now     func() time.Time
}

func newStateTable(ttl time.Duration, now func() time.Time) *stateTable {
	return &stateTable{
		pending: make(map[int64]pending),
		ttl:     ttl,
		now:     now,
	}
}

func (t *stateTable) get(userID int64) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lookup(userID)
}

func (t *stateTable) set(userID int64, s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s == Idle {
		delete(t.pending, userID)
		return
	}
	t.pending[userID] = pending{state: s, since: t.now()}
}

// take returns the current state and resets the user to Idle
func (t *stateTable) take(userID int64) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.lookup(userID)
	delete(t.pending, userID)
	return s
}

func (t *stateTable) lookup(userID int64) State {
	p, ok := t.pending[userID]
	if !ok {
		return Idle
	}
	if t.ttl > 0 && t.now().Sub(p.since) >= t.ttl {
		delete(t.pending, userID)
		return Idle
	}
	return p.state
}
