package store

import (
	"context"
	"database/sql"
	"fmt"

	"genba/internal/sop/models"
	id "genba/pkg/domain"
	"genba/pkg/platform/sentinel"
)

// PostgresSOPStore reads the procedure tree from PostgreSQL.
// This store is pure I/O; structural validation belongs to the domain model.
type PostgresSOPStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresSOPStore {
	return &PostgresSOPStore{db: db}
}

// GetByID loads the SOP with all tasks, steps, and hazards in traversal
// order. Three queries instead of one joined scan keeps the assembly simple;
// procedures are small.
func (s *PostgresSOPStore) GetByID(ctx context.Context, sopID id.SOPID) (*models.SOP, error) {
	sop := &models.SOP{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, created_by, created_at, updated_at
		FROM sops
		WHERE id = $1 AND deleted_at IS NULL
	`, sopID.String()).Scan(&sop.ID, &sop.Title, &sop.CreatedBy, &sop.CreatedAt, &sop.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get sop: %w", err)
	}

	taskIndex := make(map[id.TaskID]int)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, COALESCE(description, ''), order_index
		FROM tasks
		WHERE sop_id = $1
		ORDER BY order_index
	`, sopID.String())
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var task models.Task
		if err := rows.Scan(&task.ID, &task.Title, &task.Description, &task.OrderIndex); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		taskIndex[task.ID] = len(sop.Tasks)
		sop.Tasks = append(sop.Tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}

	stepTask := make(map[id.StepID]int)
	stepIndex := make(map[id.StepID]int)
	stepRows, err := s.db.QueryContext(ctx, `
		SELECT st.id, st.task_id, st.description,
		       COALESCE(st.expected_action, ''), COALESCE(st.expected_result, ''), st.order_index
		FROM steps st
		JOIN tasks t ON t.id = st.task_id
		WHERE t.sop_id = $1
		ORDER BY t.order_index, st.order_index
	`, sopID.String())
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer stepRows.Close()
	for stepRows.Next() {
		var step models.Step
		var taskID id.TaskID
		if err := stepRows.Scan(&step.ID, &taskID, &step.Description,
			&step.ExpectedAction, &step.ExpectedResult, &step.OrderIndex); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		ti, ok := taskIndex[taskID]
		if !ok {
			continue
		}
		stepTask[step.ID] = ti
		stepIndex[step.ID] = len(sop.Tasks[ti].Steps)
		sop.Tasks[ti].Steps = append(sop.Tasks[ti].Steps, step)
	}
	if err := stepRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate steps: %w", err)
	}

	hazardRows, err := s.db.QueryContext(ctx, `
		SELECT h.id, h.step_id, h.description, h.severity, COALESCE(h.mitigation, '')
		FROM hazards h
		JOIN steps st ON st.id = h.step_id
		JOIN tasks t ON t.id = st.task_id
		WHERE t.sop_id = $1
		ORDER BY h.id
	`, sopID.String())
	if err != nil {
		return nil, fmt.Errorf("list hazards: %w", err)
	}
	defer hazardRows.Close()
	for hazardRows.Next() {
		var hazard models.Hazard
		var stepID id.StepID
		if err := hazardRows.Scan(&hazard.ID, &stepID, &hazard.Description, &hazard.Severity, &hazard.Mitigation); err != nil {
			return nil, fmt.Errorf("scan hazard: %w", err)
		}
		ti, ok := stepTask[stepID]
		if !ok {
			continue
		}
		si := stepIndex[stepID]
		sop.Tasks[ti].Steps[si].Hazards = append(sop.Tasks[ti].Steps[si].Hazards, hazard)
	}
	if err := hazardRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hazards: %w", err)
	}

	return sop, nil
}
