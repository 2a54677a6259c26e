package api

import (
	"net/http"

	"github.com/erazemk/terenec/internal/auth"
	"github.com/erazemk/terenec/internal/db"
	"github.com/erazemk/terenec/internal/model"
	"github.com/erazemk/terenec/internal/store"
)

type createUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type createUserResponse struct {
	*model.User
	// Password is only set when the server generated it.
	Password string `json:"password,omitempty"`
}

type updateUserRequest struct {
	Role string `json:"role"`
}

type resetPasswordRequest struct {
	Password string `json:"password"`
}

// listUsers handles GET /api/users. The role query parameter filters.
func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := store.ListUsers(r.Context(), s.db, r.URL.Query().Get("role"))
	if err != nil {
		s.logger.Error().Err(err).Msg("listing users")
		jsonError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	if users == nil {
		users = []model.User{}
	}
	jsonResponse(w, http.StatusOK, users)
}

// createUser handles POST /api/users. An empty password is generated.
func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Role == "" {
		jsonError(w, http.StatusBadRequest, "username and role required")
		return
	}
	if !model.ValidRole(req.Role) {
		jsonError(w, http.StatusBadRequest, "invalid role")
		return
	}

	var generated string
	if req.Password == "" {
		p, err := auth.GeneratePassword(16)
		if err != nil {
			jsonError(w, http.StatusInternalServerError, "failed to generate password")
			return
		}
		req.Password, generated = p, p
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := store.CreateUser(r.Context(), s.db, req.Username, hash, req.Role)
	if err != nil {
		if db.IsConstraintError(err) {
			jsonError(w, http.StatusConflict, "username already exists")
			return
		}
		s.logger.Error().Err(err).Msg("creating user")
		jsonError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	s.logger.Info().Str("user", getClaims(r.Context()).Username).
		Str("new_user", user.Username).Str("role", user.Role).Msg("user created")
	jsonResponse(w, http.StatusCreated, createUserResponse{User: user, Password: generated})
}

// getUser handles GET /api/users/{id}.
func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	user, err := store.GetUser(r.Context(), s.db, id)
	if err != nil {
		s.logger.Error().Err(err).Msg("getting user")
		jsonError(w, http.StatusInternalServerError, "failed to get user")
		return
	}
	if user == nil {
		jsonError(w, http.StatusNotFound, "user not found")
		return
	}
	jsonResponse(w, http.StatusOK, user)
}

// updateUser handles PUT /api/users/{id}.
func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !model.ValidRole(req.Role) {
		jsonError(w, http.StatusBadRequest, "invalid role")
		return
	}

	if err := store.UpdateUser(r.Context(), s.db, id, req.Role); err != nil {
		s.logger.Error().Err(err).Msg("updating user")
		jsonError(w, http.StatusInternalServerError, "failed to update user")
		return
	}

	user, err := store.GetUser(r.Context(), s.db, id)
	if err != nil || user == nil {
		jsonError(w, http.StatusNotFound, "user not found")
		return
	}

	s.logger.Info().Str("user", getClaims(r.Context()).Username).
		Str("target_user", user.Username).Str("new_role", req.Role).Msg("user role updated")
	jsonResponse(w, http.StatusOK, user)
}

// resetPassword handles PUT /api/users/{id}/password.
func (s *Server) resetPassword(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	target, err := store.GetUser(r.Context(), s.db, id)
	if err != nil || target == nil || target.DeletedAt != nil {
		jsonError(w, http.StatusNotFound, "user not found")
		return
	}
	if err := store.UpdateUserPassword(r.Context(), s.db, id, hash); err != nil {
		s.logger.Error().Err(err).Msg("resetting password")
		jsonError(w, http.StatusInternalServerError, "failed to reset password")
		return
	}

	s.logger.Info().Str("user", getClaims(r.Context()).Username).
		Str("target_user", target.Username).Msg("user password reset")
	jsonResponse(w, http.StatusOK, map[string]string{"message": "password reset"})
}

// deleteUser handles DELETE /api/users/{id}.
func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	claims := getClaims(r.Context())
	if claims.UserID == id {
		jsonError(w, http.StatusBadRequest, "cannot delete yourself")
		return
	}

	target, err := store.GetUser(r.Context(), s.db, id)
	if err != nil || target == nil || target.DeletedAt != nil {
		jsonError(w, http.StatusNotFound, "user not found")
		return
	}
	if err := store.DeleteUser(r.Context(), s.db, id); err != nil {
		s.logger.Error().Err(err).Msg("deleting user")
		jsonError(w, http.StatusInternalServerError, "failed to delete user")
		return
	}

	s.logger.Info().Str("user", claims.Username).Str("deleted_user", target.Username).Msg("user deleted")
	jsonResponse(w, http.StatusOK, map[string]string{"message": "user deleted"})
}
