package model

import (
	"slices"
	"time"
)

// Origin tells whether a report item exists only locally or has been
// accepted by the report store. It never changes after creation.
type Origin string

// Origins.
const (
	OriginDraft     Origin = "draft"
	OriginCommitted Origin = "committed"
)

// ReportItem is implemented by every service report entry.
type ReportItem interface {
	ItemID() string
	ItemOrigin() Origin
}

// Follow-up priorities.
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Follow-up statuses.
const (
	FollowUpOpen       = "open"
	FollowUpLogged     = "logged"
	FollowUpInProgress = "in_progress"
	FollowUpClosed     = "closed"
	FollowUpCancelled  = "cancelled"
	FollowUpCompleted  = "completed"
)

// Media kinds.
const (
	MediaImage = "image"
	MediaVideo = "video"
)

// ValidPriority reports whether p is a known follow-up priority.
func ValidPriority(p string) bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// ValidFollowUpStatus reports whether s is a known follow-up status.
func ValidFollowUpStatus(s string) bool {
	switch s {
	case FollowUpOpen, FollowUpLogged, FollowUpInProgress, FollowUpClosed, FollowUpCancelled, FollowUpCompleted:
		return true
	}
	return false
}

// ValidMediaKind reports whether k is a known media kind.
func ValidMediaKind(k string) bool {
	return k == MediaImage || k == MediaVideo
}

// Task is a unit of work performed during a job.
type Task struct {
	ID              string    `json:"id"`
	Token           string    `json:"token,omitempty"`
	Origin          Origin    `json:"origin"`
	JobID           int64     `json:"job_id"`
	TechnicianJobID *int64    `json:"technician_job_id,omitempty"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	Position        int       `json:"position"`
	Completed       bool      `json:"completed"`
	CreatedBy       *int64    `json:"created_by,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

func (t Task) ItemID() string     { return t.ID }
func (t Task) ItemOrigin() Origin { return t.Origin }

// FollowUp is work that has to happen after the visit.
type FollowUp struct {
	ID              string     `json:"id"`
	Token           string     `json:"token,omitempty"`
	Origin          Origin     `json:"origin"`
	JobID           int64      `json:"job_id"`
	TechnicianJobID *int64     `json:"technician_job_id,omitempty"`
	Notes           string     `json:"notes"`
	Type            string     `json:"type,omitempty"`
	Priority        string     `json:"priority"`
	Status          string     `json:"status"`
	DueDate         *time.Time `json:"due_date,omitempty"`
	CreatedBy       *int64     `json:"created_by,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func (f FollowUp) ItemID() string     { return f.ID }
func (f FollowUp) ItemOrigin() Origin { return f.Origin }

// MediaItem is a photo or video attached to a job. Committed items have a
// URL; draft items point at a local file waiting for upload. LocalRef is a
// server path and is never part of the JSON form.
type MediaItem struct {
	ID              string    `json:"id"`
	Token           string    `json:"token,omitempty"`
	Origin          Origin    `json:"origin"`
	JobID           int64     `json:"job_id"`
	TechnicianJobID *int64    `json:"technician_job_id,omitempty"`
	Kind            string    `json:"kind"`
	Description     string    `json:"description,omitempty"`
	URL             string    `json:"url,omitempty"`
	MIME            string    `json:"mime,omitempty"`
	LocalRef        string    `json:"-"`
	Extension       string    `json:"extension,omitempty"`
	CreatedBy       *int64    `json:"created_by,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

func (m MediaItem) ItemID() string     { return m.ID }
func (m MediaItem) ItemOrigin() Origin { return m.Origin }

// Draft holds the not-yet-submitted report items of one job, in insertion order.
type Draft struct {
	Tasks     []Task      `json:"tasks"`
	FollowUps []FollowUp  `json:"follow_ups"`
	Media     []MediaItem `json:"media"`
}

// Len returns the total number of draft items across all categories.
func (d Draft) Len() int {
	return len(d.Tasks) + len(d.FollowUps) + len(d.Media)
}

// Clone returns a copy that shares no slices with d. Empty categories are
// returned as empty, non-nil slices.
func (d Draft) Clone() Draft {
	c := Draft{
		Tasks:     make([]Task, len(d.Tasks)),
		FollowUps: make([]FollowUp, len(d.FollowUps)),
		Media:     make([]MediaItem, len(d.Media)),
	}
	copy(c.Tasks, d.Tasks)
	copy(c.FollowUps, d.FollowUps)
	copy(c.Media, d.Media)
	for i, f := range c.FollowUps {
		if f.DueDate != nil {
			due := *f.DueDate
			c.FollowUps[i].DueDate = &due
		}
	}
	return c
}

// IndexOf returns the position of the item with the given id, or -1.
func IndexOf[T ReportItem](items []T, id string) int {
	return slices.IndexFunc(items, func(it T) bool { return it.ItemID() == id })
}
