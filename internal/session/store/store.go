package store

import (
	"context"

	"genba/internal/session/models"
	id "genba/pkg/domain"
)

// ListFilter narrows ListByWorker. The zero value lists every non-aborted
// session for the worker.
type ListFilter struct {
	Status         models.SessionStatus
	IncludeAborted bool
}

// SessionStore persists work sessions with their embedded check history.
//
// Save enforces optimistic concurrency: the write only lands when the stored
// row's version equals session.Version, and the stored version is bumped by
// one on success. A mismatch returns sentinel.ErrConflict so two racing
// writers cannot silently overwrite each other's checks.
type SessionStore interface {
	Create(ctx context.Context, session *models.WorkSession) error
	Save(ctx context.Context, session *models.WorkSession) error
	GetByID(ctx context.Context, sessionID id.SessionID) (*models.WorkSession, error)
	GetByCheckID(ctx context.Context, checkID id.CheckID) (*models.WorkSession, error)
	GetCurrentForWorker(ctx context.Context, workerID id.UserID) (*models.WorkSession, error)
	ListByWorker(ctx context.Context, workerID id.UserID, filter ListFilter) ([]*models.WorkSession, error)
	ListPendingReview(ctx context.Context) ([]*models.WorkSession, error)
}
