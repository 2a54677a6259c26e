package api

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/erazemk/terenec/internal/attendance"
	"github.com/erazemk/terenec/internal/store"
)

func (s *Server) attendanceStatus(w http.ResponseWriter, r *http.Request) {
	st, err := attendance.Status(r.Context(), s.backend, getClaims(r.Context()).UserID)
	if err != nil {
		s.logger.Error().Err(err).Msg("getting attendance status")
		jsonError(w, http.StatusInternalServerError, "failed to get attendance status")
		return
	}
	jsonResponse(w, http.StatusOK, st)
}

func (s *Server) clockIn(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r.Context())
	entry, err := store.ClockIn(r.Context(), s.db, claims.UserID)
	if err != nil {
		s.attendanceError(w, err)
		return
	}
	s.logger.Info().Str("user", claims.Username).Msg("clocked in")
	s.live.refreshAttendance(claims.UserID)
	jsonResponse(w, http.StatusCreated, entry)
}

func (s *Server) clockOut(w http.ResponseWriter, r *http.Request) {
	s.attendanceChange(w, r, store.ClockOut, "clocked out")
}

func (s *Server) startBreak(w http.ResponseWriter, r *http.Request) {
	s.attendanceChange(w, r, store.StartBreak, "break started")
}

func (s *Server) endBreak(w http.ResponseWriter, r *http.Request) {
	s.attendanceChange(w, r, store.EndBreak, "break ended")
}

type attendanceFunc func(ctx context.Context, db *sql.DB, userID int64) error

func (s *Server) attendanceChange(w http.ResponseWriter, r *http.Request, fn attendanceFunc, msg string) {
	claims := getClaims(r.Context())
	if err := fn(r.Context(), s.db, claims.UserID); err != nil {
		s.attendanceError(w, err)
		return
	}
	s.logger.Info().Str("user", claims.Username).Msg(msg)
	s.live.refreshAttendance(claims.UserID)

	st, err := attendance.Status(r.Context(), s.backend, claims.UserID)
	if err != nil {
		jsonResponse(w, http.StatusOK, map[string]string{"message": msg})
		return
	}
	jsonResponse(w, http.StatusOK, st)
}

func (s *Server) attendanceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrAlreadyClockedIn),
		errors.Is(err, store.ErrNotClockedIn),
		errors.Is(err, store.ErrAlreadyOnBreak),
		errors.Is(err, store.ErrNotOnBreak):
		jsonError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error().Err(err).Msg("attendance change failed")
		jsonError(w, http.StatusInternalServerError, "internal error")
	}
}
