package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/erazemk/terenec/internal/model"
)

const followUpColumns = `id, client_token, job_id, technician_job_id, notes, type, priority, status,
	due_date, created_by, created_at`

// CreateFollowUp stores a follow-up, de-duplicating on its client token.
func CreateFollowUp(ctx context.Context, db *sql.DB, f model.FollowUp) (*model.FollowUp, error) {
	if f.Token == "" {
		return nil, fmt.Errorf("creating follow-up: missing client token")
	}
	if f.Priority == "" {
		f.Priority = model.PriorityNormal
	}
	if f.Status == "" {
		f.Status = model.FollowUpOpen
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO follow_ups (client_token, job_id, technician_job_id, notes, type, priority, status, due_date, created_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (client_token) DO NOTHING`,
		f.Token, f.JobID, f.TechnicianJobID, f.Notes, f.Type, f.Priority, f.Status, f.DueDate, f.CreatedBy,
	)
	if err != nil {
		return nil, fmt.Errorf("creating follow-up: %w", err)
	}

	got, err := scanFollowUp(db.QueryRowContext(ctx,
		`SELECT `+followUpColumns+` FROM follow_ups WHERE client_token = ?`, f.Token,
	))
	if err != nil {
		return nil, fmt.Errorf("reading back follow-up: %w", err)
	}
	return got, nil
}

// ListFollowUpsByJob returns the committed follow-ups of a job, oldest first.
func ListFollowUpsByJob(ctx context.Context, db *sql.DB, jobID int64) ([]model.FollowUp, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+followUpColumns+` FROM follow_ups WHERE job_id = ? ORDER BY id`, jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing follow-ups: %w", err)
	}
	defer rows.Close()

	out := []model.FollowUp{}
	for rows.Next() {
		f, err := scanFollowUp(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning follow-up: %w", err)
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

func scanFollowUp(s scanner) (*model.FollowUp, error) {
	var (
		f   model.FollowUp
		id  int64
		typ sql.NullString
	)
	if err := s.Scan(&id, &f.Token, &f.JobID, &f.TechnicianJobID, &f.Notes, &typ, &f.Priority, &f.Status,
		&f.DueDate, &f.CreatedBy, &f.CreatedAt); err != nil {
		return nil, err
	}
	f.ID = strconv.FormatInt(id, 10)
	f.Origin = model.OriginCommitted
	f.Type = typ.String
	return &f, nil
}
