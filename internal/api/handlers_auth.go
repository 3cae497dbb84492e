package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/emailmind/emailmind/internal/auth"
	"github.com/emailmind/emailmind/internal/domain"
	"github.com/emailmind/emailmind/internal/pkg/httputil"
	"github.com/emailmind/emailmind/internal/repository/postgres"
)

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *domain.User `json:"user"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		httputil.BadRequest(w, "a valid email is required")
		return
	}
	if len(req.Password) < 8 {
		httputil.BadRequest(w, "password must be at least 8 characters")
		return
	}

	if existing, err := s.users.GetByEmail(r.Context(), req.Email); err == nil && existing != nil {
		httputil.Error(w, http.StatusConflict, "an account with this email already exists")
		return
	} else if err != nil && !errors.Is(err, postgres.ErrNotFound) {
		httputil.InternalError(w, err)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	user := &domain.User{
		Email:          req.Email,
		HashedPassword: hash,
		FullName:       req.FullName,
		Tier:           domain.TierFreeTrial,
		IsActive:       true,
	}
	if err := s.users.Create(r.Context(), user); err != nil {
		httputil.InternalError(w, err)
		return
	}

	token, expires, err := s.auth.IssueToken(user.ID)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.Created(w, tokenResponse{Token: token, ExpiresAt: expires, User: user})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	user, err := s.users.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			httputil.Unauthorized(w, "invalid email or password")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	if !auth.CheckPassword(user.HashedPassword, req.Password) {
		httputil.Unauthorized(w, "invalid email or password")
		return
	}
	if !user.IsActive {
		httputil.Error(w, http.StatusForbidden, "account is disabled")
		return
	}

	token, expires, err := s.auth.IssueToken(user.ID)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, tokenResponse{Token: token, ExpiresAt: expires, User: user})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, auth.UserFrom(r.Context()))
}
