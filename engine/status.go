package engine

import "sync"

// Status is the single operator-facing status line. Each operation either
// replaces it or appends its outcome.
type Status struct {
	mu   sync.Mutex
	text string
}

func (s *Status) Set(msg string) {
	s.mu.Lock()
	s.text = msg
	s.mu.Unlock()
}

func (s *Status) Append(msg string) {
	s.mu.Lock()
	s.text += msg
	s.mu.Unlock()
}

func (s *Status) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text
}
