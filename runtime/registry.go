package runtime

import (
	"care-chat/contract"
	"care-chat/domain"
	"sync"
)

// entry is the session set of one participant.
// Its mutex serializes Bind/Unbind for that participant only.
type entry struct {
	mu       sync.Mutex
	sessions map[string]contract.Session // session ID -> session
	pruned   bool
}

// Registry maps a participant to every session it currently has open (multi-device).
// The owners map lock is only held to find, create or prune an entry, never while
// an entry lock is requested, so different participants never wait on each other
// beyond a map lookup.
type Registry struct {
	mu     sync.RWMutex
	owners map[domain.ParticipantID]*entry
}

func NewRegistry() *Registry {
	return &Registry{owners: make(map[domain.ParticipantID]*entry)}
}

// Bind adds the session to the owner's set. Binding the same session twice is a no-op.
// If the entry was pruned between lookup and lock, Bind retries on a fresh entry.
func (r *Registry) Bind(owner domain.ParticipantID, session contract.Session) {
	for {
		e := r.getOrCreate(owner)
		e.mu.Lock()
		if e.pruned {
			e.mu.Unlock()
			continue
		}
		e.sessions[session.ID()] = session
		e.mu.Unlock()
		return
	}
}

// Unbind removes the session and prunes the owner's entry when it becomes empty.
func (r *Registry) Unbind(owner domain.ParticipantID, session contract.Session) {
	r.mu.RLock()
	e, ok := r.owners[owner]
	r.mu.RUnlock()
	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.sessions, session.ID())
	if len(e.sessions) > 0 || e.pruned {
		return
	}
	e.pruned = true
	r.mu.Lock()
	if r.owners[owner] == e {
		delete(r.owners, owner)
	}
	r.mu.Unlock()
}

// SessionsFor returns a snapshot of the owner's sessions, possibly empty.
// Callers may deliver to the snapshot without holding any registry lock.
func (r *Registry) SessionsFor(owner domain.ParticipantID) []contract.Session {
	r.mu.RLock()
	e, ok := r.owners[owner]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	sessions := make([]contract.Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

// Count returns the number of bound sessions across all participants.
func (r *Registry) Count() int {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.owners))
	for _, e := range r.owners {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	total := 0
	for _, e := range entries {
		e.mu.Lock()
		total += len(e.sessions)
		e.mu.Unlock()
	}
	return total
}

// CloseAll closes every bound session, typically on shutdown.
// Sessions unbind themselves when their connection task ends.
func (r *Registry) CloseAll(code contract.CloseCode, reason string) {
	r.mu.RLock()
	owners := make([]domain.ParticipantID, 0, len(r.owners))
	for owner := range r.owners {
		owners = append(owners, owner)
	}
	r.mu.RUnlock()

	for _, owner := range owners {
		for _, s := range r.SessionsFor(owner) {
			s.Close(code, reason)
		}
	}
}

func (r *Registry) getOrCreate(owner domain.ParticipantID) *entry {
	r.mu.RLock()
	e, ok := r.owners[owner]
	r.mu.RUnlock()
	if ok {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok = r.owners[owner]; ok {
		return e
	}
	e = &entry{sessions: make(map[string]contract.Session)}
	r.owners[owner] = e
	return e
}
