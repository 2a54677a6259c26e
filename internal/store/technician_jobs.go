package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/terenec/internal/model"
)

const technicianJobColumns = `tj.id, tj.job_id, tj.technician_id, tj.is_service_report_submitted,
	tj.assigned_at, tj.submitted_at, u.username AS technician_name`

// AssignTechnician assigns a technician to a job. Assigning twice returns
// the existing assignment.
func AssignTechnician(ctx context.Context, db *sql.DB, jobID, technicianID int64) (*model.TechnicianJob, error) {
	_, err := db.ExecContext(ctx,
		`INSERT INTO technician_jobs (job_id, technician_id) VALUES (?, ?)
		 ON CONFLICT (job_id, technician_id) DO NOTHING`,
		jobID, technicianID,
	)
	if err != nil {
		return nil, fmt.Errorf("assigning technician: %w", err)
	}

	return GetTechnicianJobFor(ctx, db, jobID, technicianID)
}

// GetTechnicianJob returns an assignment by ID.
func GetTechnicianJob(ctx context.Context, db *sql.DB, id int64) (*model.TechnicianJob, error) {
	return getTechnicianJob(ctx, db, `tj.id = ?`, id)
}

// GetTechnicianJobFor returns the assignment of a technician to a job.
func GetTechnicianJobFor(ctx context.Context, db *sql.DB, jobID, technicianID int64) (*model.TechnicianJob, error) {
	return getTechnicianJob(ctx, db, `tj.job_id = ? AND tj.technician_id = ?`, jobID, technicianID)
}

func getTechnicianJob(ctx context.Context, db *sql.DB, where string, args ...any) (*model.TechnicianJob, error) {
	tj := &model.TechnicianJob{}
	err := db.QueryRowContext(ctx,
		`SELECT `+technicianJobColumns+`
		 FROM technician_jobs tj
		 JOIN users u ON u.id = tj.technician_id
		 WHERE `+where, args...,
	).Scan(&tj.ID, &tj.JobID, &tj.TechnicianID, &tj.IsServiceReportSubmitted,
		&tj.AssignedAt, &tj.SubmittedAt, &tj.TechnicianName)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting technician job: %w", err)
	}
	return tj, nil
}

// ListJobTechnicians returns all assignments for a job.
func ListJobTechnicians(ctx context.Context, db *sql.DB, jobID int64) ([]model.TechnicianJob, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+technicianJobColumns+`
		 FROM technician_jobs tj
		 JOIN users u ON u.id = tj.technician_id
		 WHERE tj.job_id = ?
		 ORDER BY tj.assigned_at, tj.id`, jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing job technicians: %w", err)
	}
	defer rows.Close()

	var out []model.TechnicianJob
	for rows.Next() {
		var tj model.TechnicianJob
		if err := rows.Scan(&tj.ID, &tj.JobID, &tj.TechnicianID, &tj.IsServiceReportSubmitted,
			&tj.AssignedAt, &tj.SubmittedAt, &tj.TechnicianName); err != nil {
			return nil, fmt.Errorf("scanning technician job: %w", err)
		}
		out = append(out, tj)
	}
	return out, rows.Err()
}

// SetServiceReportSubmitted updates the submission flag of an assignment.
func SetServiceReportSubmitted(ctx context.Context, db *sql.DB, id int64, submitted bool) error {
	result, err := db.ExecContext(ctx,
		`UPDATE technician_jobs
		 SET is_service_report_submitted = ?,
		     submitted_at = CASE WHEN ? THEN CURRENT_TIMESTAMP ELSE NULL END
		 WHERE id = ?`,
		submitted, submitted, id,
	)
	if err != nil {
		return fmt.Errorf("updating report submission: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating report submission: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("technician job %d not found", id)
	}
	return nil
}
