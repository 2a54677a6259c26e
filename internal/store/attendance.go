package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/erazemk/terenec/internal/model"
)

// Attendance errors.
var (
	ErrAlreadyClockedIn = errors.New("already clocked in")
	ErrNotClockedIn     = errors.New("not clocked in")
	ErrAlreadyOnBreak   = errors.New("already on break")
	ErrNotOnBreak       = errors.New("not on break")
)

// ClockIn opens a shift for a user.
func ClockIn(ctx context.Context, db *sql.DB, userID int64) (*model.ClockEntry, error) {
	in, err := IsClockedIn(ctx, db, userID)
	if err != nil {
		return nil, err
	}
	if in {
		return nil, ErrAlreadyClockedIn
	}

	result, err := db.ExecContext(ctx, `INSERT INTO clock_entries (user_id) VALUES (?)`, userID)
	if err != nil {
		return nil, fmt.Errorf("clocking in: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting clock entry id: %w", err)
	}

	e := &model.ClockEntry{}
	err = db.QueryRowContext(ctx,
		`SELECT id, user_id, clocked_in_at, clocked_out_at FROM clock_entries WHERE id = ?`, id,
	).Scan(&e.ID, &e.UserID, &e.ClockedInAt, &e.ClockedOutAt)
	if err != nil {
		return nil, fmt.Errorf("getting clock entry: %w", err)
	}
	return e, nil
}

// ClockOut closes the user's open shift, ending any open break with it.
func ClockOut(ctx context.Context, db *sql.DB, userID int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE break_entries SET ended_at = CURRENT_TIMESTAMP WHERE user_id = ? AND ended_at IS NULL`,
		userID,
	); err != nil {
		return fmt.Errorf("ending break: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE clock_entries SET clocked_out_at = CURRENT_TIMESTAMP WHERE user_id = ? AND clocked_out_at IS NULL`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("clocking out: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("clocking out: %w", err)
	}
	if n == 0 {
		return ErrNotClockedIn
	}

	return tx.Commit()
}

// StartBreak opens a break. The user has to be clocked in and not already
// on a break.
func StartBreak(ctx context.Context, db *sql.DB, userID int64) error {
	status, err := GetAttendanceStatus(ctx, db, userID)
	if err != nil {
		return err
	}
	if !status.ClockedIn {
		return ErrNotClockedIn
	}
	if status.OnBreak {
		return ErrAlreadyOnBreak
	}

	if _, err := db.ExecContext(ctx, `INSERT INTO break_entries (user_id) VALUES (?)`, userID); err != nil {
		return fmt.Errorf("starting break: %w", err)
	}
	return nil
}

// EndBreak closes the user's open break.
func EndBreak(ctx context.Context, db *sql.DB, userID int64) error {
	result, err := db.ExecContext(ctx,
		`UPDATE break_entries SET ended_at = CURRENT_TIMESTAMP WHERE user_id = ? AND ended_at IS NULL`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("ending break: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("ending break: %w", err)
	}
	if n == 0 {
		return ErrNotOnBreak
	}
	return nil
}

// IsClockedIn reports whether the user has an open shift.
func IsClockedIn(ctx context.Context, db *sql.DB, userID int64) (bool, error) {
	var in bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM clock_entries WHERE user_id = ? AND clocked_out_at IS NULL)`, userID,
	).Scan(&in)
	if err != nil {
		return false, fmt.Errorf("checking clock status: %w", err)
	}
	return in, nil
}

// OnBreak reports whether the user has an open break.
func OnBreak(ctx context.Context, db *sql.DB, userID int64) (bool, error) {
	var on bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM break_entries WHERE user_id = ? AND ended_at IS NULL)`, userID,
	).Scan(&on)
	if err != nil {
		return false, fmt.Errorf("checking break status: %w", err)
	}
	return on, nil
}

// GetAttendanceStatus returns both attendance flags of a user.
func GetAttendanceStatus(ctx context.Context, db *sql.DB, userID int64) (model.AttendanceStatus, error) {
	var s model.AttendanceStatus
	var err error
	if s.ClockedIn, err = IsClockedIn(ctx, db, userID); err != nil {
		return s, err
	}
	if s.OnBreak, err = OnBreak(ctx, db, userID); err != nil {
		return s, err
	}
	return s, nil
}
