package storage

import (
	"sync"
	"time"
)

// stamp is the identity a store assigns to a message at insertion time.
type stamp struct {
	At  time.Time
	Seq uint64
}

// stamper hands out strictly increasing (time, sequence) pairs.
// Time never goes backwards even if the wall clock does; it advances by step instead.
type stamper struct {
	mu   sync.Mutex
	last time.Time
	step time.Duration
	now  func() time.Time
	seq  func() (uint64, error)
	n    uint64
}

func newStamper(step time.Duration, seq func() (uint64, error)) *stamper {
	return &stamper{step: step, now: time.Now, seq: seq}
}

// resume makes every later stamp come after at, which is the newest time a
// previous run handed out.
func (s *stamper) resume(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if at.After(s.last) {
		s.last = at.UTC()
	}
}

func (s *stamper) next() (stamp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n uint64
	if s.seq != nil {
		var err error
		if n, err = s.seq(); err != nil {
			return stamp{}, err
		}
	} else {
		s.n++
		n = s.n
	}

	at := s.now().UTC().Truncate(s.step)
	if !at.After(s.last) {
		at = s.last.Add(s.step)
	}
	s.last = at
	return stamp{At: at, Seq: n}, nil
}
