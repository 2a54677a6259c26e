package report

import (
	"errors"
	"fmt"
)

// CodeEmptyReport is the machine-readable code of ErrEmptyReport.
const CodeEmptyReport = "EMPTY_REPORT"

var (
	// ErrEmptyReport is returned by Submit when the job has no committed
	// and no draft items. No remote write happens in that case.
	ErrEmptyReport = errors.New("report is empty: add at least one item")

	// ErrAlreadySubmitted is returned for draft changes and submits on a job
	// whose report was already submitted.
	ErrAlreadySubmitted = errors.New("report already submitted")

	// ErrSubmitInProgress is returned when a submit for the same job is
	// still running.
	ErrSubmitInProgress = errors.New("report submission already in progress")

	// ErrReadOnlyItem is returned when editing or deleting a committed item.
	ErrReadOnlyItem = errors.New("committed report items are read-only")

	// ErrItemNotFound is returned when no report item has the given id.
	ErrItemNotFound = errors.New("report item not found")
)

// Category names one of the three report item lists.
type Category string

// Categories, in flush order.
const (
	CategoryTasks     Category = "tasks"
	CategoryFollowUps Category = "follow-ups"
	CategoryMedia     Category = "media"
)

// FlushError is the first failure of a submit. Items of the failing
// category from Index on, and all later categories, are still in the draft.
type FlushError struct {
	Category Category
	Index    int
	ItemID   string
	Err      error
}

func (e *FlushError) Error() string {
	return fmt.Sprintf("flushing %s item %d (%s): %v", e.Category, e.Index, e.ItemID, e.Err)
}

func (e *FlushError) Unwrap() error { return e.Err }

// UserMessage describes the failure in terms of the step that failed.
func (e *FlushError) UserMessage() string {
	return fmt.Sprintf("could not save %s: %v", e.Category, e.Err)
}
