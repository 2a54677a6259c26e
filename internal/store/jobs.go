package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erazemk/terenec/internal/model"
)

const jobColumns = `j.id, j.title, j.description, j.site_id, j.status, j.scheduled_at, j.started_at,
	j.created_at, j.updated_at, s.name AS site_name`

// CreateJob creates a new scheduled job at a site.
func CreateJob(ctx context.Context, db *sql.DB, title, description string, siteID int64, scheduledAt *time.Time) (*model.Job, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO jobs (title, description, site_id, scheduled_at) VALUES (?, ?, ?, ?)`,
		title, description, siteID, scheduledAt,
	)
	if err != nil {
		return nil, fmt.Errorf("creating job: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting job id: %w", err)
	}

	return GetJob(ctx, db, id)
}

// GetJob returns a job by ID.
func GetJob(ctx context.Context, db *sql.DB, id int64) (*model.Job, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+jobColumns+`
		 FROM jobs j
		 JOIN sites s ON s.id = j.site_id
		 WHERE j.id = ?`, id,
	)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting job: %w", err)
	}
	return j, nil
}

// ListJobs returns jobs ordered by schedule, optionally only those assigned
// to the given technician.
func ListJobs(ctx context.Context, db *sql.DB, technicianID int64) ([]model.Job, error) {
	query := `SELECT ` + jobColumns + `
	          FROM jobs j
	          JOIN sites s ON s.id = j.site_id`
	var args []any

	if technicianID > 0 {
		query += ` JOIN technician_jobs tj ON tj.job_id = j.id AND tj.technician_id = ?`
		args = append(args, technicianID)
	}

	query += ` ORDER BY j.scheduled_at IS NULL, j.scheduled_at, j.id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

// StartJob marks a scheduled job as in progress. Starting an already started
// job is a no-op.
func StartJob(ctx context.Context, db *sql.DB, id int64) error {
	_, err := db.ExecContext(ctx,
		`UPDATE jobs SET status = 'in_progress', started_at = COALESCE(started_at, CURRENT_TIMESTAMP),
		        updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = 'scheduled'`,
		id,
	)
	if err != nil {
		return fmt.Errorf("starting job: %w", err)
	}
	return nil
}

// UpdateJobStatus sets a job's status.
func UpdateJobStatus(ctx context.Context, db *sql.DB, id int64, status string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, id,
	)
	if err != nil {
		return fmt.Errorf("updating job status: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*model.Job, error) {
	j := &model.Job{}
	var description sql.NullString
	if err := s.Scan(&j.ID, &j.Title, &description, &j.SiteID, &j.Status, &j.ScheduledAt, &j.StartedAt,
		&j.CreatedAt, &j.UpdatedAt, &j.SiteName); err != nil {
		return nil, err
	}
	j.Description = description.String
	return j, nil
}
