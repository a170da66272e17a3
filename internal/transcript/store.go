package transcript

import (
	"sync"
	"time"
)

// Role identifies who produced a line.
type Role string

const (
	RoleAgent    Role = "agent"
	RoleCustomer Role = "customer"
	RoleSystem   Role = "system"
)

// Line is a single turn. Lines are never edited once appended.
type Line struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
	// Timestamp is RFC 3339 with millisecond precision, UTC.
	Timestamp string `json:"ts"`
}

// Store is the append-only, ordered log of a session's turns. Position is the
// only ordering key.
//
// Appends made while a model call is in flight are legal; they become visible
// to the next request built from Snapshot, never to the one already sent.
type Store struct {
	mu    sync.RWMutex
	lines []Line
	now   func() time.Time
	last  time.Time
}

// NewStore returns an empty Store stamped with the wall clock.
func NewStore() *Store { return NewStoreWithClock(time.Now) }

// NewStoreWithClock returns an empty Store using now for timestamps.
func NewStoreWithClock(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{now: now}
}

// Append adds a line stamped with the current time. It always succeeds.
func (s *Store) Append(role Role, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := s.now().UTC()
	// keep timestamps non-decreasing if the clock steps backwards
	if ts.Before(s.last) {
		ts = s.last
	}
	s.last = ts
	s.lines = append(s.lines, Line{Role: role, Text: text, Timestamp: ts.Format(isoMillis)})
}

// Snapshot returns a copy of the current sequence.
func (s *Store) Snapshot() []Line {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Line, len(s.lines))
	copy(out, s.lines)
	return out
}

// Len reports the number of lines.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.lines)
}

// Reset empties the log. Only session start and return-to-selection call it.
func (s *Store) Reset() {
	s.mu.Lock()
	s.lines = nil
	s.last = time.Time{}
	s.mu.Unlock()
}

const isoMillis = "2006-01-02T15:04:05.000Z07:00"
