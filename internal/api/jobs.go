package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/erazemk/terenec/internal/geo"
	"github.com/erazemk/terenec/internal/model"
	"github.com/erazemk/terenec/internal/richtext"
	"github.com/erazemk/terenec/internal/store"
)

type createJobRequest struct {
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	SiteID       int64      `json:"site_id"`
	ScheduledAt  *time.Time `json:"scheduled_at"`
	TechnicianID int64      `json:"technician_id"`
}

type jobResponse struct {
	*model.Job
	DescriptionText string                `json:"description_text,omitempty"`
	Technicians     []model.TechnicianJob `json:"technicians,omitempty"`
}

type assignRequest struct {
	TechnicianID int64 `json:"technician_id"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type arrivalResponse struct {
	Distance float64 `json:"distance_meters"`
	Radius   float64 `json:"radius_meters"`
	Arrived  bool    `json:"arrived"`
}

func newJobResponse(j *model.Job) jobResponse {
	return jobResponse{Job: j, DescriptionText: richtext.PlainText(j.Description)}
}

// jobAccess loads the job named in the URL and checks the caller may see
// it. Technicians only see jobs they are assigned to, and tj is their
// assignment; for other roles tj is nil.
func (s *Server) jobAccess(w http.ResponseWriter, r *http.Request) (*model.Job, *model.TechnicianJob, bool) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid job id")
		return nil, nil, false
	}

	job, err := store.GetJob(r.Context(), s.db, id)
	if err != nil {
		s.logger.Error().Err(err).Msg("getting job")
		jsonError(w, http.StatusInternalServerError, "failed to get job")
		return nil, nil, false
	}
	if job == nil {
		jsonError(w, http.StatusNotFound, "job not found")
		return nil, nil, false
	}

	claims := getClaims(r.Context())
	if model.RoleAtLeast(claims.Role, model.RoleDispatcher) {
		return job, nil, true
	}

	tj, err := store.GetTechnicianJobFor(r.Context(), s.db, job.ID, claims.UserID)
	if err != nil {
		s.logger.Error().Err(err).Msg("getting assignment")
		jsonError(w, http.StatusInternalServerError, "failed to get job")
		return nil, nil, false
	}
	if tj == nil {
		jsonError(w, http.StatusNotFound, "job not found")
		return nil, nil, false
	}
	return job, tj, true
}

// listJobs handles GET /api/jobs. Technicians get their assigned jobs.
func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r.Context())
	var technicianID int64
	if !model.RoleAtLeast(claims.Role, model.RoleDispatcher) {
		technicianID = claims.UserID
	}

	jobs, err := store.ListJobs(r.Context(), s.db, technicianID)
	if err != nil {
		s.logger.Error().Err(err).Msg("listing jobs")
		jsonError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	out := make([]jobResponse, 0, len(jobs))
	for i := range jobs {
		out = append(out, newJobResponse(&jobs[i]))
	}
	jsonResponse(w, http.StatusOK, out)
}

// createJob handles POST /api/jobs.
func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Title) == "" || req.SiteID <= 0 {
		jsonError(w, http.StatusBadRequest, "title and site_id required")
		return
	}

	site, err := store.GetSite(r.Context(), s.db, req.SiteID)
	if err != nil || site == nil || site.DeletedAt != nil {
		jsonError(w, http.StatusBadRequest, "site not found")
		return
	}
	if req.TechnicianID > 0 && !s.isTechnician(r, req.TechnicianID) {
		jsonError(w, http.StatusBadRequest, "technician not found")
		return
	}

	job, err := store.CreateJob(r.Context(), s.db, req.Title, req.Description, req.SiteID, req.ScheduledAt)
	if err != nil {
		s.logger.Error().Err(err).Msg("creating job")
		jsonError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	resp := newJobResponse(job)
	if req.TechnicianID > 0 {
		tj, err := s.backend.AssignTechnician(r.Context(), job.ID, req.TechnicianID)
		if err != nil {
			s.logger.Error().Err(err).Int64("job_id", job.ID).Msg("assigning technician")
			jsonError(w, http.StatusInternalServerError, "job created but assignment failed")
			return
		}
		resp.Technicians = []model.TechnicianJob{*tj}
	}

	s.logger.Info().Str("user", getClaims(r.Context()).Username).Int64("job_id", job.ID).Msg("job created")
	jsonResponse(w, http.StatusCreated, resp)
}

func (s *Server) isTechnician(r *http.Request, userID int64) bool {
	u, err := store.GetUser(r.Context(), s.db, userID)
	return err == nil && u != nil && u.DeletedAt == nil && u.Role == model.RoleTechnician
}

// getJob handles GET /api/jobs/{id}.
func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	job, tj, ok := s.jobAccess(w, r)
	if !ok {
		return
	}

	resp := newJobResponse(job)
	if tj != nil {
		resp.Technicians = []model.TechnicianJob{*tj}
	} else {
		techs, err := store.ListJobTechnicians(r.Context(), s.db, job.ID)
		if err != nil {
			s.logger.Error().Err(err).Msg("listing job technicians")
			jsonError(w, http.StatusInternalServerError, "failed to get job")
			return
		}
		resp.Technicians = techs
	}
	jsonResponse(w, http.StatusOK, resp)
}

// startJob handles POST /api/jobs/{id}/start.
func (s *Server) startJob(w http.ResponseWriter, r *http.Request) {
	job, _, ok := s.jobAccess(w, r)
	if !ok {
		return
	}
	if job.Status == model.JobStatusCompleted || job.Status == model.JobStatusCancelled {
		jsonError(w, http.StatusConflict, "job is "+job.Status)
		return
	}

	started, err := s.backend.StartJob(r.Context(), job.ID)
	if err != nil {
		s.logger.Error().Err(err).Int64("job_id", job.ID).Msg("starting job")
		jsonError(w, http.StatusInternalServerError, "failed to start job")
		return
	}
	jsonResponse(w, http.StatusOK, newJobResponse(started))
}

// updateJobStatus handles PUT /api/jobs/{id}/status.
func (s *Server) updateJobStatus(w http.ResponseWriter, r *http.Request) {
	job, _, ok := s.jobAccess(w, r)
	if !ok {
		return
	}

	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	switch req.Status {
	case model.JobStatusScheduled, model.JobStatusInProgress, model.JobStatusCompleted, model.JobStatusCancelled:
	default:
		jsonError(w, http.StatusBadRequest, "invalid status")
		return
	}

	if err := s.backend.UpdateJobStatus(r.Context(), job.ID, req.Status); err != nil {
		s.logger.Error().Err(err).Int64("job_id", job.ID).Msg("updating job status")
		jsonError(w, http.StatusInternalServerError, "failed to update job")
		return
	}

	updated, err := store.GetJob(r.Context(), s.db, job.ID)
	if err != nil || updated == nil {
		jsonError(w, http.StatusInternalServerError, "failed to get job")
		return
	}
	jsonResponse(w, http.StatusOK, newJobResponse(updated))
}

// assignTechnician handles POST /api/jobs/{id}/assign.
func (s *Server) assignTechnician(w http.ResponseWriter, r *http.Request) {
	job, _, ok := s.jobAccess(w, r)
	if !ok {
		return
	}

	var req assignRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !s.isTechnician(r, req.TechnicianID) {
		jsonError(w, http.StatusBadRequest, "technician not found")
		return
	}

	tj, err := s.backend.AssignTechnician(r.Context(), job.ID, req.TechnicianID)
	if err != nil {
		s.logger.Error().Err(err).Int64("job_id", job.ID).Msg("assigning technician")
		jsonError(w, http.StatusInternalServerError, "failed to assign technician")
		return
	}
	jsonResponse(w, http.StatusOK, tj)
}

// arrival handles POST /api/jobs/{id}/arrival with the device position.
func (s *Server) arrival(w http.ResponseWriter, r *http.Request) {
	job, _, ok := s.jobAccess(w, r)
	if !ok {
		return
	}

	var pos geo.Point
	if err := decodeJSON(r, &pos); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	site, err := store.GetSite(r.Context(), s.db, job.SiteID)
	if err != nil || site == nil {
		jsonError(w, http.StatusInternalServerError, "failed to get site")
		return
	}

	center := geo.Point{Lat: site.Latitude, Lon: site.Longitude}
	resp := arrivalResponse{
		Distance: geo.Distance(pos, center),
		Radius:   s.opts.GeofenceRadius,
	}
	resp.Arrived = geo.Within(pos, center, resp.Radius)

	if resp.Arrived {
		s.logger.Info().Int64("job_id", job.ID).Str("user", getClaims(r.Context()).Username).
			Float64("distance", resp.Distance).Msg("technician arrived at site")
	}
	jsonResponse(w, http.StatusOK, resp)
}

// jobEvents handles GET /api/jobs/{id}/events as a websocket.
func (s *Server) jobEvents(w http.ResponseWriter, r *http.Request) {
	job, _, ok := s.jobAccess(w, r)
	if !ok {
		return
	}
	s.hub.Stream(r.Context(), w, r, job.ID, s.logger)
}
