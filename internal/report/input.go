package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/erazemk/terenec/internal/model"
	"github.com/hay-kot/criterio"
)

// TaskInput holds the user-editable fields of a task.
type TaskInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
}

// Validate checks the task fields.
func (in TaskInput) Validate() error {
	return criterio.ValidateStruct(
		criterio.Run("name", in.Name, required),
	)
}

// FollowUpInput holds the user-editable fields of a follow-up. Empty
// priority and status default to normal and open.
type FollowUpInput struct {
	Notes    string     `json:"notes"`
	Type     string     `json:"type"`
	Priority string     `json:"priority"`
	Status   string     `json:"status"`
	DueDate  *time.Time `json:"due_date"`
}

// Validate checks the follow-up fields.
func (in FollowUpInput) Validate() error {
	var errs criterio.FieldErrorsBuilder
	if err := required(in.Notes); err != nil {
		errs = errs.Append("notes", err)
	}
	if in.Priority != "" && !model.ValidPriority(in.Priority) {
		errs = errs.Append("priority", fmt.Errorf("unknown priority %q", in.Priority))
	}
	if in.Status != "" && !model.ValidFollowUpStatus(in.Status) {
		errs = errs.Append("status", fmt.Errorf("unknown status %q", in.Status))
	}
	return errs.ToError()
}

func (in FollowUpInput) withDefaults() FollowUpInput {
	if in.Priority == "" {
		in.Priority = model.PriorityNormal
	}
	if in.Status == "" {
		in.Status = model.FollowUpOpen
	}
	return in
}

// MediaInput describes a captured file waiting for upload.
type MediaInput struct {
	Kind        string `json:"kind"`
	Description string `json:"description"`
	LocalRef    string `json:"local_ref"`
	Extension   string `json:"extension"`
}

// Validate checks the media fields.
func (in MediaInput) Validate() error {
	var errs criterio.FieldErrorsBuilder
	if !model.ValidMediaKind(in.Kind) {
		errs = errs.Append("kind", fmt.Errorf("unknown media kind %q", in.Kind))
	}
	if err := required(in.LocalRef); err != nil {
		errs = errs.Append("local_ref", err)
	}
	return errs.ToError()
}

func required(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("is required")
	}
	return nil
}
