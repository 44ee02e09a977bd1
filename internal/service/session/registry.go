package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yuchenx/docpilot/internal/model/artifact"
	"github.com/yuchenx/docpilot/internal/model/chat"
)

// Registry owns all in-memory session state. Every mutation is atomic under
// a single lock; nothing blocking ever runs inside the critical section, so
// requests for different sessions only contend for the map itself.
//
// The clock is injected so TTL eviction is testable without sleeping.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*chat.Session
	now      func() time.Time
}

func NewRegistry() *Registry {
	return NewRegistryWithClock(time.Now)
}

func NewRegistryWithClock(now func() time.Time) *Registry {
	return &Registry{
		sessions: make(map[string]*chat.Session),
		now:      now,
	}
}

// GetOrCreate returns a copy of the session, creating an empty one when the
// id is unseen. It never fails; a cleared or swept id is simply recreated.
func (r *Registry) GetOrCreate(sessionID string) chat.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return snapshot(r.locked(sessionID))
}

// BindArtifact replaces the session's artifact and returns the displaced one
// so the caller can release its stored file. History is untouched.
func (r *Registry) BindArtifact(sessionID string, art *artifact.Artifact) *artifact.Artifact {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.locked(sessionID)
	displaced := s.Artifact
	s.Artifact = art
	s.LastActiveAt = r.now().UTC()
	return displaced
}

// AppendTurn records one completed query/response exchange.
func (r *Registry) AppendTurn(sessionID, query, response string, isError bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.locked(sessionID)
	nowUTC := r.now().UTC()
	s.History = append(s.History, chat.Turn{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Query:     query,
		Response:  response,
		IsError:   isError,
		CreatedAt: nowUTC,
	})
	s.LastActiveAt = nowUTC
}

// ClearArtifact unbinds the artifact only; the transcript survives.
func (r *Registry) ClearArtifact(sessionID string) *artifact.Artifact {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return nil
	}
	displaced := s.Artifact
	s.Artifact = nil
	s.LastActiveAt = r.now().UTC()
	return displaced
}

// ClearSession drops artifact and history. The id stays valid for reuse.
func (r *Registry) ClearSession(sessionID string) *artifact.Artifact {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return nil
	}
	displaced := s.Artifact
	delete(r.sessions, sessionID)
	return displaced
}

// Sweep evicts sessions idle past ttl, and unbinds stale artifacts from
// otherwise-active sessions. It returns the displaced artifacts (for file
// cleanup) and the number of evictions. Re-sweeping ids already evicted is a
// no-op.
func (r *Registry) Sweep(now time.Time, ttl time.Duration) ([]*artifact.Artifact, int) {
	cutoff := now.Add(-ttl)

	r.mu.Lock()
	defer r.mu.Unlock()

	var displaced []*artifact.Artifact
	evicted := 0
	for id, s := range r.sessions {
		switch {
		case s.LastActiveAt.Before(cutoff):
			if s.Artifact != nil {
				displaced = append(displaced, s.Artifact)
			}
			delete(r.sessions, id)
			evicted++
		case s.Artifact != nil && s.Artifact.LoadedAt.Before(cutoff):
			displaced = append(displaced, s.Artifact)
			s.Artifact = nil
			evicted++
		}
	}
	return displaced, evicted
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// locked returns the live record for sessionID, creating it if needed.
// Callers must hold r.mu.
func (r *Registry) locked(sessionID string) *chat.Session {
	s, ok := r.sessions[sessionID]
	if !ok {
		nowUTC := r.now().UTC()
		s = &chat.Session{
			ID:           sessionID,
			History:      make([]chat.Turn, 0, 16),
			CreatedAt:    nowUTC,
			LastActiveAt: nowUTC,
		}
		r.sessions[sessionID] = s
	}
	return s
}

// snapshot copies a record so callers never share the registry's slices.
func snapshot(s *chat.Session) chat.Session {
	copied := *s
	copied.History = make([]chat.Turn, len(s.History))
	copy(copied.History, s.History)
	return copied
}
