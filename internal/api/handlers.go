package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/baegaepro/pillow-client/pkg/crypto"
)

// envelope is the response wrapper every client call decodes
type envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// ========== Auth handlers ==========

// HandleSignup registers an account
func (s *RESTServer) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required,min=8"`
		Name     string `json:"name" validate:"required,max=50"`
	}

	if !s.decode(w, r, &req) {
		return
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	user, err := s.registry.CreateUser(req.Email, req.Name, hash)
	if errors.Is(err, ErrDuplicateKey) {
		s.respondError(w, http.StatusConflict, "이미 가입된 이메일입니다")
		return
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Info().Str("email", user.Email).Msg("Account created")
	s.respondMessage(w, http.StatusCreated, "회원가입이 완료되었습니다", user)
}

// HandleLogin handles user login
func (s *RESTServer) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	if !s.decode(w, r, &req) {
		return
	}

	user, err := s.registry.UserByEmail(req.Email)
	if err != nil || !s.auth.VerifyPassword(req.Password, user.PasswordHash) {
		s.respondError(w, http.StatusUnauthorized, "이메일 또는 비밀번호가 올바르지 않습니다")
		return
	}

	if !user.IsActive {
		s.respondError(w, http.StatusForbidden, "account is disabled")
		return
	}

	pair, err := s.auth.GenerateTokenPair(user)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to generate tokens")
		return
	}

	s.respondJSON(w, http.StatusOK, pair)
}

// HandleRefresh handles token refresh
func (s *RESTServer) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token" validate:"required"`
	}

	if !s.decode(w, r, &req) {
		return
	}

	claims, err := s.auth.ValidateRefreshToken(req.RefreshToken)
	if err != nil || s.registry.Revoked(claims.ID) {
		s.respondError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	user, err := s.registry.User(userID)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	// rotate: the presented refresh token is spent
	s.registry.Revoke(claims.ID, claims.ExpiresAt.Time)

	pair, err := s.auth.GenerateTokenPair(user)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to generate tokens")
		return
	}

	s.respondJSON(w, http.StatusOK, pair)
}

// HandleLogout revokes the refresh token sent along, if any
func (s *RESTServer) HandleLogout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	if req.RefreshToken != "" {
		if claims, err := s.auth.ValidateRefreshToken(req.RefreshToken); err == nil {
			s.registry.Revoke(claims.ID, claims.ExpiresAt.Time)
		}
	}

	s.respondMessage(w, http.StatusOK, "로그아웃되었습니다", nil)
}

// HandleHealth health check
func (s *RESTServer) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now(),
	})
}

// decode reads and validates a JSON body, answering 400 on failure
func (s *RESTServer) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := s.validator.Validate(dst); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// respondJSON responds with a successful envelope around payload
func (s *RESTServer) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	s.write(w, status, envelope{Success: true, Data: payload})
}

// respondMessage responds with a successful envelope carrying a message
func (s *RESTServer) respondMessage(w http.ResponseWriter, status int, message string, payload interface{}) {
	s.write(w, status, envelope{Success: true, Message: message, Data: payload})
}

// respondError responds with error
func (s *RESTServer) respondError(w http.ResponseWriter, status int, message string) {
	s.write(w, status, envelope{Success: false, Error: message})
}

func (s *RESTServer) write(w http.ResponseWriter, status int, env envelope) {
	response, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}
