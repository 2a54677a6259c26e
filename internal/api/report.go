package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/erazemk/terenec/internal/attendance"
	"github.com/erazemk/terenec/internal/model"
	"github.com/erazemk/terenec/internal/realtime"
	"github.com/erazemk/terenec/internal/report"
	"github.com/erazemk/terenec/internal/store"
)

type gateResponse struct {
	report.Gate
	Input report.GateInput `json:"input"`
}

// draftChanged tells live clients of the job to reload.
func (s *Server) draftChanged(jobID int64, itemID string) {
	s.hub.Publish(realtime.Event{Type: realtime.DraftChanged, JobID: jobID, ItemID: itemID})
}

// reportAccess is jobAccess for endpoints that change the report: only an
// assigned technician may use them.
func (s *Server) reportAccess(w http.ResponseWriter, r *http.Request) (*model.Job, *model.TechnicianJob, bool) {
	job, tj, ok := s.jobAccess(w, r)
	if !ok {
		return nil, nil, false
	}
	if tj == nil {
		jsonError(w, http.StatusForbidden, "only an assigned technician can change the report")
		return nil, nil, false
	}
	return job, tj, true
}

// viewTechnicianJob picks the assignment whose submission flag a report
// view shows: the caller's own, or the first one for dispatchers.
func (s *Server) viewTechnicianJob(ctx context.Context, jobID int64, tj *model.TechnicianJob) int64 {
	if tj != nil {
		return tj.ID
	}
	techs, err := store.ListJobTechnicians(ctx, s.db, jobID)
	if err != nil || len(techs) == 0 {
		return 0
	}
	return techs[0].ID
}

// gateFor evaluates whether a technician with attendance st can submit rep.
func gateFor(job *model.Job, rep report.Report, st model.AttendanceStatus) gateResponse {
	in := report.GateInput{
		ClockedIn:  st.ClockedIn,
		OnBreak:    st.OnBreak,
		JobStarted: job.Started(),
		Submitted:  rep.Submitted,
		HasContent: rep.Len() > 0,
	}
	return gateResponse{Gate: report.Evaluate(in), Input: in}
}

// getReport handles GET /api/jobs/{id}/report.
func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	job, tj, ok := s.jobAccess(w, r)
	if !ok {
		return
	}

	rep, err := s.reports.Load(r.Context(), job.ID, s.viewTechnicianJob(r.Context(), job.ID, tj))
	if err != nil {
		reportError(w, s.logger, err)
		return
	}
	jsonResponse(w, http.StatusOK, rep)
}

// reportGate handles GET /api/jobs/{id}/report/gate.
func (s *Server) reportGate(w http.ResponseWriter, r *http.Request) {
	job, tj, ok := s.reportAccess(w, r)
	if !ok {
		return
	}

	rep, err := s.reports.Load(r.Context(), job.ID, tj.ID)
	if err != nil {
		reportError(w, s.logger, err)
		return
	}
	st, err := attendance.Status(r.Context(), s.backend, tj.TechnicianID)
	if err != nil {
		s.logger.Error().Err(err).Msg("getting attendance status")
		jsonError(w, http.StatusInternalServerError, "failed to get attendance status")
		return
	}
	jsonResponse(w, http.StatusOK, gateFor(job, rep, st))
}

// addTask handles POST /api/jobs/{id}/report/tasks.
func (s *Server) addTask(w http.ResponseWriter, r *http.Request) {
	job, tj, ok := s.reportAccess(w, r)
	if !ok {
		return
	}

	var in report.TaskInput
	if err := decodeJSON(r, &in); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	t, err := s.reports.AddTask(r.Context(), job.ID, tj.ID, in)
	if err != nil {
		reportError(w, s.logger, err)
		return
	}
	s.draftChanged(job.ID, t.ID)
	jsonResponse(w, http.StatusCreated, t)
}

// updateTask handles PUT /api/jobs/{id}/report/tasks/{itemID}.
func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	job, tj, ok := s.reportAccess(w, r)
	if !ok {
		return
	}

	var in report.TaskInput
	if err := decodeJSON(r, &in); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	t, err := s.reports.UpdateTask(r.Context(), job.ID, tj.ID, chi.URLParam(r, "itemID"), in)
	if err != nil {
		reportError(w, s.logger, err)
		return
	}
	s.draftChanged(job.ID, t.ID)
	jsonResponse(w, http.StatusOK, t)
}

// addFollowUp handles POST /api/jobs/{id}/report/followups.
func (s *Server) addFollowUp(w http.ResponseWriter, r *http.Request) {
	job, tj, ok := s.reportAccess(w, r)
	if !ok {
		return
	}

	var in report.FollowUpInput
	if err := decodeJSON(r, &in); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	f, err := s.reports.AddFollowUp(r.Context(), job.ID, tj.ID, in)
	if err != nil {
		reportError(w, s.logger, err)
		return
	}
	s.draftChanged(job.ID, f.ID)
	jsonResponse(w, http.StatusCreated, f)
}

// updateFollowUp handles PUT /api/jobs/{id}/report/followups/{itemID}.
func (s *Server) updateFollowUp(w http.ResponseWriter, r *http.Request) {
	job, tj, ok := s.reportAccess(w, r)
	if !ok {
		return
	}

	var in report.FollowUpInput
	if err := decodeJSON(r, &in); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	f, err := s.reports.UpdateFollowUp(r.Context(), job.ID, tj.ID, chi.URLParam(r, "itemID"), in)
	if err != nil {
		reportError(w, s.logger, err)
		return
	}
	s.draftChanged(job.ID, f.ID)
	jsonResponse(w, http.StatusOK, f)
}

// addMedia handles POST /api/jobs/{id}/report/media. The multipart form
// carries kind, description and file. The file is kept in the media
// directory until the report is submitted.
func (s *Server) addMedia(w http.ResponseWriter, r *http.Request) {
	job, tj, ok := s.reportAccess(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			jsonError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		jsonError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "file required")
		return
	}
	defer file.Close()

	in := report.MediaInput{
		Kind:        r.FormValue("kind"),
		Description: r.FormValue("description"),
		Extension:   strings.ToLower(strings.TrimPrefix(filepath.Ext(header.Filename), ".")),
	}

	path, err := s.saveMediaFile(file, in.Extension)
	if err != nil {
		s.logger.Error().Err(err).Msg("saving media file")
		jsonError(w, http.StatusInternalServerError, "failed to save file")
		return
	}
	in.LocalRef = path

	m, err := s.reports.AddMedia(r.Context(), job.ID, tj.ID, in)
	if err != nil {
		s.removeMediaFile(path)
		reportError(w, s.logger, err)
		return
	}
	s.draftChanged(job.ID, m.ID)
	jsonResponse(w, http.StatusCreated, m)
}

func (s *Server) saveMediaFile(src io.Reader, ext string) (string, error) {
	if err := os.MkdirAll(s.opts.MediaDir, 0o755); err != nil {
		return "", err
	}

	name := uuid.NewString()
	if ext != "" {
		name += "." + ext
	}
	path := filepath.Join(s.opts.MediaDir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	return path, f.Close()
}

func (s *Server) removeMediaFile(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn().Err(err).Str("path", path).Msg("removing media file")
	}
}

// deleteDraftItem handles DELETE /api/jobs/{id}/report/drafts/{itemID}.
func (s *Server) deleteDraftItem(w http.ResponseWriter, r *http.Request) {
	job, tj, ok := s.reportAccess(w, r)
	if !ok {
		return
	}

	item, err := s.reports.DeleteDraftItem(r.Context(), job.ID, tj.ID, chi.URLParam(r, "itemID"))
	if err != nil {
		reportError(w, s.logger, err)
		return
	}
	if m, ok := item.(model.MediaItem); ok && m.LocalRef != "" {
		s.removeMediaFile(m.LocalRef)
	}
	s.draftChanged(job.ID, item.ItemID())
	jsonResponse(w, http.StatusOK, map[string]string{"message": "draft item deleted"})
}

// submitReport handles POST /api/jobs/{id}/report/submit.
func (s *Server) submitReport(w http.ResponseWriter, r *http.Request) {
	job, tj, ok := s.reportAccess(w, r)
	if !ok {
		return
	}

	res, err := s.reports.Submit(r.Context(), job.ID, tj.ID, getClaims(r.Context()).UserID)
	if err != nil {
		reportError(w, s.logger, err)
		return
	}

	s.logger.Info().Int64("job_id", job.ID).Str("user", getClaims(r.Context()).Username).
		Int("tasks", res.Tasks).Int("follow_ups", res.FollowUps).Int("media", res.Media).
		Msg("service report submitted")
	jsonResponse(w, http.StatusOK, res)
}
