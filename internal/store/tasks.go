package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/erazemk/terenec/internal/model"
)

const taskColumns = `id, client_token, job_id, technician_job_id, name, description, position, completed,
	created_by, created_at`

// CreateTask stores a task. The task's token identifies the write: creating
// a task whose token was already accepted returns the stored task unchanged.
func CreateTask(ctx context.Context, db *sql.DB, t model.Task) (*model.Task, error) {
	if t.Token == "" {
		return nil, fmt.Errorf("creating task: missing client token")
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO tasks (client_token, job_id, technician_job_id, name, description, position, completed, created_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (client_token) DO NOTHING`,
		t.Token, t.JobID, t.TechnicianJobID, t.Name, t.Description, t.Position, t.Completed, t.CreatedBy,
	)
	if err != nil {
		return nil, fmt.Errorf("creating task: %w", err)
	}

	got, err := scanTask(db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE client_token = ?`, t.Token,
	))
	if err != nil {
		return nil, fmt.Errorf("reading back task: %w", err)
	}
	return got, nil
}

// ListTasksByJob returns the committed tasks of a job in display order.
func ListTasksByJob(ctx context.Context, db *sql.DB, jobID int64) ([]model.Task, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE job_id = ? ORDER BY position, id`, jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	defer rows.Close()

	tasks := []model.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func scanTask(s scanner) (*model.Task, error) {
	var (
		t           model.Task
		id          int64
		description sql.NullString
	)
	if err := s.Scan(&id, &t.Token, &t.JobID, &t.TechnicianJobID, &t.Name, &description, &t.Position,
		&t.Completed, &t.CreatedBy, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.ID = strconv.FormatInt(id, 10)
	t.Origin = model.OriginCommitted
	t.Description = description.String
	return &t, nil
}
