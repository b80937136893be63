package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"genba/internal/session/models"
	id "genba/pkg/domain"
	"genba/pkg/platform/sentinel"
)

// PostgresSessionStore persists sessions and their checks in PostgreSQL.
// Sessions and safety_checks are written in one transaction so a saved
// aggregate is always internally consistent.
type PostgresSessionStore struct {
	db *sql.DB
}

func NewPostgresSessionStore(db *sql.DB) *PostgresSessionStore {
	return &PostgresSessionStore{db: db}
}

const sessionColumns = `
	id, sop_id, worker_id, status, current_step_id,
	started_at, paused_at, aborted_at, abort_reason,
	completed_at, approved_at, approved_by, rejection_reason,
	locked, version
`

const checkColumns = `
	id, session_id, step_id, result, feedback_text, feedback_audio_url,
	confidence_score, needs_review, checked_at, override_reason, override_by
`

func (s *PostgresSessionStore) Create(ctx context.Context, session *models.WorkSession) error {
	session.Version = 1
	query := `
		INSERT INTO sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := s.db.ExecContext(ctx, query,
		session.ID, session.SOPID, session.WorkerID, string(session.Status),
		nullableStepID(session.CurrentStepID),
		session.StartedAt, session.PausedAt, session.AbortedAt, session.AbortReason,
		session.CompletedAt, session.ApprovedAt, nullableUserID(session.ApprovedBy),
		session.RejectionReason, session.Locked, session.Version,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// Save writes the aggregate back under an optimistic version check. The
// UPDATE only matches when the stored version equals session.Version; zero
// rows means either a concurrent writer won or the session does not exist.
func (s *PostgresSessionStore) Save(ctx context.Context, session *models.WorkSession) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save session: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE sessions SET
			status = $2, current_step_id = $3,
			paused_at = $4, aborted_at = $5, abort_reason = $6,
			completed_at = $7, approved_at = $8, approved_by = $9,
			rejection_reason = $10, locked = $11, version = version + 1
		WHERE id = $1 AND version = $12
	`
	res, err := tx.ExecContext(ctx, query,
		session.ID, string(session.Status), nullableStepID(session.CurrentStepID),
		session.PausedAt, session.AbortedAt, session.AbortReason,
		session.CompletedAt, session.ApprovedAt, nullableUserID(session.ApprovedBy),
		session.RejectionReason, session.Locked, session.Version,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session rows affected: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)`, session.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check session exists: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrConflict
	}

	// Checks are append-only plus in-place overrides, so an upsert keyed on
	// the check ID covers both.
	checkQuery := `
		INSERT INTO safety_checks (` + checkColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			result = EXCLUDED.result,
			override_reason = EXCLUDED.override_reason,
			override_by = EXCLUDED.override_by
	`
	for i := range session.Checks {
		c := &session.Checks[i]
		_, err := tx.ExecContext(ctx, checkQuery,
			c.ID, session.ID, c.StepID, string(c.Result), c.FeedbackText, c.FeedbackAudioURL,
			c.ConfidenceScore, c.NeedsReview, c.CheckedAt, c.OverrideReason, nullableUserID(c.OverrideBy),
		)
		if err != nil {
			return fmt.Errorf("upsert safety check: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save session: %w", err)
	}
	session.Version++
	return nil
}

func (s *PostgresSessionStore) GetByID(ctx context.Context, sessionID id.SessionID) (*models.WorkSession, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, sessionID)
	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	if err := s.loadChecks(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *PostgresSessionStore) GetByCheckID(ctx context.Context, checkID id.CheckID) (*models.WorkSession, error) {
	var sessionID id.SessionID
	err := s.db.QueryRowContext(ctx, `SELECT session_id FROM safety_checks WHERE id = $1`, checkID).Scan(&sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get session by check: %w", err)
	}
	return s.GetByID(ctx, sessionID)
}

func (s *PostgresSessionStore) GetCurrentForWorker(ctx context.Context, workerID id.UserID) (*models.WorkSession, error) {
	query := `
		SELECT ` + sessionColumns + ` FROM sessions
		WHERE worker_id = $1 AND status IN ('in_progress', 'paused')
		ORDER BY started_at DESC
		LIMIT 1
	`
	row := s.db.QueryRowContext(ctx, query, workerID)
	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get current session: %w", err)
	}
	if err := s.loadChecks(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *PostgresSessionStore) ListByWorker(ctx context.Context, workerID id.UserID, filter ListFilter) ([]*models.WorkSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE worker_id = $1`
	args := []any{workerID}
	switch {
	case filter.Status != "":
		query += ` AND status = $2`
		args = append(args, string(filter.Status))
	case !filter.IncludeAborted:
		query += ` AND status <> 'aborted'`
	}
	query += ` ORDER BY started_at DESC`

	return s.querySessions(ctx, query, args...)
}

func (s *PostgresSessionStore) ListPendingReview(ctx context.Context) ([]*models.WorkSession, error) {
	query := `
		SELECT ` + sessionColumns + ` FROM sessions
		WHERE status = 'completed'
		ORDER BY started_at DESC
	`
	return s.querySessions(ctx, query)
}

func (s *PostgresSessionStore) querySessions(ctx context.Context, query string, args ...any) ([]*models.WorkSession, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*models.WorkSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	for _, session := range out {
		if err := s.loadChecks(ctx, session); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *PostgresSessionStore) loadChecks(ctx context.Context, session *models.WorkSession) error {
	query := `
		SELECT ` + checkColumns + ` FROM safety_checks
		WHERE session_id = $1
		ORDER BY checked_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, session.ID)
	if err != nil {
		return fmt.Errorf("load safety checks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			c          models.SafetyCheck
			sessionID  id.SessionID
			result     string
			confidence sql.NullFloat64
			overrideBy sql.NullString
		)
		err := rows.Scan(
			&c.ID, &sessionID, &c.StepID, &result, &c.FeedbackText, &c.FeedbackAudioURL,
			&confidence, &c.NeedsReview, &c.CheckedAt, &c.OverrideReason, &overrideBy,
		)
		if err != nil {
			return fmt.Errorf("scan safety check: %w", err)
		}
		c.Result = models.CheckResult(result)
		if confidence.Valid {
			v := confidence.Float64
			c.ConfidenceScore = &v
		}
		if overrideBy.Valid {
			uid, err := id.ParseUserID(overrideBy.String)
			if err != nil {
				return fmt.Errorf("parse override_by: %w", err)
			}
			c.OverrideBy = uid
		}
		session.Checks = append(session.Checks, c)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate safety checks: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.WorkSession, error) {
	var (
		session     models.WorkSession
		status      string
		currentStep sql.NullString
		approvedBy  sql.NullString
		pausedAt    sql.NullTime
		abortedAt   sql.NullTime
		completedAt sql.NullTime
		approvedAt  sql.NullTime
	)
	err := row.Scan(
		&session.ID, &session.SOPID, &session.WorkerID, &status, &currentStep,
		&session.StartedAt, &pausedAt, &abortedAt, &session.AbortReason,
		&completedAt, &approvedAt, &approvedBy, &session.RejectionReason,
		&session.Locked, &session.Version,
	)
	if err != nil {
		return nil, err
	}
	session.Status = models.SessionStatus(status)
	if currentStep.Valid {
		stepID, err := id.ParseStepID(currentStep.String)
		if err != nil {
			return nil, fmt.Errorf("parse current_step_id: %w", err)
		}
		session.CurrentStepID = stepID
	}
	if approvedBy.Valid {
		uid, err := id.ParseUserID(approvedBy.String)
		if err != nil {
			return nil, fmt.Errorf("parse approved_by: %w", err)
		}
		session.ApprovedBy = uid
	}
	session.PausedAt = timePtr(pausedAt)
	session.AbortedAt = timePtr(abortedAt)
	session.CompletedAt = timePtr(completedAt)
	session.ApprovedAt = timePtr(approvedAt)
	return &session, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullableStepID(stepID id.StepID) any {
	if stepID.IsNil() {
		return nil
	}
	return stepID
}

func nullableUserID(userID id.UserID) any {
	if userID.IsNil() {
		return nil
	}
	return userID
}
