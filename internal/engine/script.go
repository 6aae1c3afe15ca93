package engine

import (
	"sync"

	"github.com/avelius/pokebattle-backend/internal/protocol"
)

// Script is an in-memory Engine for tests: the test emits events by
// hand and inspects the command lines the session wrote.
type Script struct {
	events chan protocol.Event

	mu     sync.Mutex
	writes []string
	closed bool
}

func NewScript() *Script {
	return &Script{events: make(chan protocol.Event, 64)}
}

// Emit pushes one protocol line into the stream, tagged for side
// (empty for the omniscient stream).
func (s *Script) Emit(side protocol.Side, raw string) {
	ev := protocol.Parse(raw)
	ev.Side = side
	s.events <- ev
}

func (s *Script) Events() <-chan protocol.Event { return s.events }

func (s *Script) Write(cmd string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, cmd)
	return nil
}

// Writes returns a copy of every command written so far.
func (s *Script) Writes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.writes...)
}

func (s *Script) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}
