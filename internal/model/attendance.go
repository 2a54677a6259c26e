package model

import "time"

// ClockEntry is one clocked-in shift. ClockedOutAt is nil while the shift is open.
type ClockEntry struct {
	ID           int64      `json:"id"`
	UserID       int64      `json:"user_id"`
	ClockedInAt  time.Time  `json:"clocked_in_at"`
	ClockedOutAt *time.Time `json:"clocked_out_at,omitempty"`
}

// BreakEntry is one break taken during a shift. EndedAt is nil while on break.
type BreakEntry struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"user_id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// AttendanceStatus is the current attendance state of a technician.
type AttendanceStatus struct {
	ClockedIn bool `json:"clocked_in"`
	OnBreak   bool `json:"on_break"`
}
