package api

import (
	"net/http"

	"github.com/erazemk/terenec/internal/auth"
	"github.com/erazemk/terenec/internal/model"
	"github.com/erazemk/terenec/internal/store"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// login handles POST /api/auth/login.
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		jsonError(w, http.StatusBadRequest, "username and password required")
		return
	}

	user, err := store.GetUserByUsername(r.Context(), s.db, req.Username)
	if err != nil {
		s.logger.Error().Err(err).Msg("looking up user")
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		s.logger.Warn().Str("username", req.Username).Str("remote", r.RemoteAddr).Msg("login failed")
		jsonError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, _, err := s.issuer.Issue(user)
	if err != nil {
		s.logger.Error().Err(err).Msg("issuing token")
		jsonError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	s.logger.Info().Str("user", user.Username).Str("role", user.Role).Msg("user logged in")
	jsonResponse(w, http.StatusOK, loginResponse{Token: token, User: user})
}

// logout handles POST /api/auth/logout by revoking the presented token.
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r.Context())
	if err := store.RevokeToken(r.Context(), s.db, claims.ID, claims.ExpiresAt.Time); err != nil {
		s.logger.Error().Err(err).Msg("revoking token")
		jsonError(w, http.StatusInternalServerError, "failed to log out")
		return
	}
	s.logger.Info().Str("user", claims.Username).Msg("user logged out")
	jsonResponse(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// changePassword handles PUT /api/auth/password.
func (s *Server) changePassword(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r.Context())

	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		jsonError(w, http.StatusBadRequest, "current and new password required")
		return
	}

	user, err := store.GetUser(r.Context(), s.db, claims.UserID)
	if err != nil || user == nil {
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.CurrentPassword) {
		jsonError(w, http.StatusUnauthorized, "current password is incorrect")
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := store.UpdateUserPassword(r.Context(), s.db, claims.UserID, hash); err != nil {
		s.logger.Error().Err(err).Msg("updating password")
		jsonError(w, http.StatusInternalServerError, "failed to update password")
		return
	}

	s.logger.Info().Str("user", claims.Username).Msg("user changed own password")
	jsonResponse(w, http.StatusOK, map[string]string{"message": "password updated"})
}
