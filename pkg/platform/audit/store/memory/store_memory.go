package memory

import (
	"context"
	"sync"

	id "genba/pkg/domain"
	audit "genba/pkg/platform/audit"
)

// InMemoryStore keeps audit events per session. Backs tests and single-node
// deployments without kafka.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[id.SessionID][]audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[id.SessionID][]audit.Event)}
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.SessionID] = append(s.events[event.SessionID], event)
	return nil
}

func (s *InMemoryStore) ListBySession(_ context.Context, sessionID id.SessionID) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event{}, s.events[sessionID]...), nil
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[id.SessionID][]audit.Event)
}
