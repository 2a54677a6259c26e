package api

import (
	"net/http"
	"strings"

	"github.com/erazemk/terenec/internal/model"
	"github.com/erazemk/terenec/internal/store"
)

type siteRequest struct {
	Name      string  `json:"name"`
	Address   string  `json:"address"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (req siteRequest) valid() bool {
	return strings.TrimSpace(req.Name) != "" &&
		req.Latitude >= -90 && req.Latitude <= 90 &&
		req.Longitude >= -180 && req.Longitude <= 180
}

func (s *Server) listSites(w http.ResponseWriter, r *http.Request) {
	sites, err := store.ListSites(r.Context(), s.db)
	if err != nil {
		s.logger.Error().Err(err).Msg("listing sites")
		jsonError(w, http.StatusInternalServerError, "failed to list sites")
		return
	}
	if sites == nil {
		sites = []model.Site{}
	}
	jsonResponse(w, http.StatusOK, sites)
}

func (s *Server) createSite(w http.ResponseWriter, r *http.Request) {
	var req siteRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.valid() {
		jsonError(w, http.StatusBadRequest, "name and valid coordinates required")
		return
	}

	site, err := store.CreateSite(r.Context(), s.db, req.Name, req.Address, req.Latitude, req.Longitude)
	if err != nil {
		s.logger.Error().Err(err).Msg("creating site")
		jsonError(w, http.StatusInternalServerError, "failed to create site")
		return
	}
	jsonResponse(w, http.StatusCreated, site)
}

func (s *Server) getSite(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid site id")
		return
	}

	site, err := store.GetSite(r.Context(), s.db, id)
	if err != nil {
		s.logger.Error().Err(err).Msg("getting site")
		jsonError(w, http.StatusInternalServerError, "failed to get site")
		return
	}
	if site == nil || site.DeletedAt != nil {
		jsonError(w, http.StatusNotFound, "site not found")
		return
	}
	jsonResponse(w, http.StatusOK, site)
}

func (s *Server) updateSite(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid site id")
		return
	}

	var req siteRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.valid() {
		jsonError(w, http.StatusBadRequest, "name and valid coordinates required")
		return
	}

	if err := store.UpdateSite(r.Context(), s.db, id, req.Name, req.Address, req.Latitude, req.Longitude); err != nil {
		s.logger.Error().Err(err).Msg("updating site")
		jsonError(w, http.StatusInternalServerError, "failed to update site")
		return
	}

	site, err := store.GetSite(r.Context(), s.db, id)
	if err != nil || site == nil || site.DeletedAt != nil {
		jsonError(w, http.StatusNotFound, "site not found")
		return
	}
	jsonResponse(w, http.StatusOK, site)
}

func (s *Server) deleteSite(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid site id")
		return
	}

	if err := store.DeleteSite(r.Context(), s.db, id); err != nil {
		jsonError(w, http.StatusConflict, err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"message": "site deleted"})
}
