package store

import (
	"context"
	"sort"
	"sync"

	"genba/internal/session/models"
	id "genba/pkg/domain"
	"genba/pkg/platform/sentinel"
)

// InMemorySessionStore keeps sessions in a map. Used for tests and for
// running the server without a database.
type InMemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[id.SessionID]*models.WorkSession
}

func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{sessions: make(map[id.SessionID]*models.WorkSession)}
}

// clone deep-copies a session so callers can't mutate stored state in place.
func clone(s *models.WorkSession) *models.WorkSession {
	cp := *s
	if s.PausedAt != nil {
		t := *s.PausedAt
		cp.PausedAt = &t
	}
	if s.AbortedAt != nil {
		t := *s.AbortedAt
		cp.AbortedAt = &t
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		cp.CompletedAt = &t
	}
	if s.ApprovedAt != nil {
		t := *s.ApprovedAt
		cp.ApprovedAt = &t
	}
	cp.Checks = make([]models.SafetyCheck, len(s.Checks))
	copy(cp.Checks, s.Checks)
	for i := range s.Checks {
		if s.Checks[i].ConfidenceScore != nil {
			v := *s.Checks[i].ConfidenceScore
			cp.Checks[i].ConfidenceScore = &v
		}
	}
	return &cp
}

func (st *InMemorySessionStore) Create(ctx context.Context, session *models.WorkSession) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.sessions[session.ID]; ok {
		return sentinel.ErrConflict
	}
	session.Version = 1
	st.sessions[session.ID] = clone(session)
	return nil
}

func (st *InMemorySessionStore) Save(ctx context.Context, session *models.WorkSession) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	stored, ok := st.sessions[session.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if stored.Version != session.Version {
		return sentinel.ErrConflict
	}
	session.Version++
	st.sessions[session.ID] = clone(session)
	return nil
}

func (st *InMemorySessionStore) GetByID(ctx context.Context, sessionID id.SessionID) (*models.WorkSession, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[sessionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(s), nil
}

func (st *InMemorySessionStore) GetByCheckID(ctx context.Context, checkID id.CheckID) (*models.WorkSession, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	for _, s := range st.sessions {
		for i := range s.Checks {
			if s.Checks[i].ID == checkID {
				return clone(s), nil
			}
		}
	}
	return nil, sentinel.ErrNotFound
}

func (st *InMemorySessionStore) GetCurrentForWorker(ctx context.Context, workerID id.UserID) (*models.WorkSession, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	var current *models.WorkSession
	for _, s := range st.sessions {
		if s.WorkerID != workerID {
			continue
		}
		if s.Status != models.StatusInProgress && s.Status != models.StatusPaused {
			continue
		}
		if current == nil || s.StartedAt.After(current.StartedAt) {
			current = s
		}
	}
	if current == nil {
		return nil, sentinel.ErrNotFound
	}
	return clone(current), nil
}

func (st *InMemorySessionStore) ListByWorker(ctx context.Context, workerID id.UserID, filter ListFilter) ([]*models.WorkSession, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	var out []*models.WorkSession
	for _, s := range st.sessions {
		if s.WorkerID != workerID {
			continue
		}
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		if filter.Status == "" && !filter.IncludeAborted && s.Status == models.StatusAborted {
			continue
		}
		out = append(out, clone(s))
	}
	sortByStartedAtDesc(out)
	return out, nil
}

func (st *InMemorySessionStore) ListPendingReview(ctx context.Context) ([]*models.WorkSession, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	var out []*models.WorkSession
	for _, s := range st.sessions {
		if s.Status == models.StatusCompleted {
			out = append(out, clone(s))
		}
	}
	sortByStartedAtDesc(out)
	return out, nil
}

func sortByStartedAtDesc(sessions []*models.WorkSession) {
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.After(sessions[j].StartedAt)
	})
}
