package model

import "time"

// Site is a customer location a technician travels to.
type Site struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Address   string     `json:"address,omitempty"`
	Latitude  float64    `json:"latitude"`
	Longitude float64    `json:"longitude"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Job is a unit of field work at a site.
type Job struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"` // rich text (HTML)
	SiteID      int64      `json:"site_id"`
	Status      string     `json:"status"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// Joined fields (not always populated).
	SiteName string `json:"site_name,omitempty"`
}

// Job statuses.
const (
	JobStatusScheduled  = "scheduled"
	JobStatusInProgress = "in_progress"
	JobStatusCompleted  = "completed"
	JobStatusCancelled  = "cancelled"
)

// Started reports whether work on the job has begun.
func (j *Job) Started() bool {
	return j.StartedAt != nil || j.Status == JobStatusInProgress || j.Status == JobStatusCompleted
}

// TechnicianJob is the assignment of a technician to a job. It owns the
// service report submission flag.
type TechnicianJob struct {
	ID                       int64      `json:"id"`
	JobID                    int64      `json:"job_id"`
	TechnicianID             int64      `json:"technician_id"`
	IsServiceReportSubmitted bool       `json:"is_service_report_submitted"`
	AssignedAt               time.Time  `json:"assigned_at"`
	SubmittedAt              *time.Time `json:"submitted_at,omitempty"`

	// Joined fields (not always populated).
	TechnicianName string `json:"technician_name,omitempty"`
}
