package api

import (
	"net/http"
	"strconv"

	"github.com/erazemk/terenec/internal/model"
	"github.com/erazemk/terenec/internal/store"
)

// getMedia handles GET /api/media/{id}. Technicians can only fetch media
// of jobs they are assigned to.
func (s *Server) getMedia(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid media id")
		return
	}

	claims := getClaims(r.Context())
	if !model.RoleAtLeast(claims.Role, model.RoleDispatcher) {
		jobID, err := store.GetMediaJobID(r.Context(), s.db, id)
		if err != nil {
			s.logger.Error().Err(err).Msg("getting media job")
			jsonError(w, http.StatusInternalServerError, "failed to get media")
			return
		}
		tj, err := store.GetTechnicianJobFor(r.Context(), s.db, jobID, claims.UserID)
		if err != nil || tj == nil {
			jsonError(w, http.StatusNotFound, "media not found")
			return
		}
	}

	data, mime, err := store.GetMediaData(r.Context(), s.db, id)
	if err != nil {
		s.logger.Error().Err(err).Msg("getting media data")
		jsonError(w, http.StatusInternalServerError, "failed to get media")
		return
	}
	if data == nil {
		jsonError(w, http.StatusNotFound, "media not found")
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, max-age=86400")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
