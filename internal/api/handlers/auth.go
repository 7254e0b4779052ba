package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/BreederHQ/server/internal/api/middleware"
	"github.com/BreederHQ/server/internal/api/problem"
	"github.com/BreederHQ/server/internal/domain/tenants"
)

// AccountService is the slice of tenants.Service the auth endpoints use.
type AccountService interface {
	Register(ctx context.Context, input tenants.RegisterInput) (*tenants.Session, error)
	Login(ctx context.Context, email, password string) (*tenants.Session, error)
	Refresh(ctx context.Context, plain string) (*tenants.Session, error)
	Logout(ctx context.Context, plain string) error
	Me(ctx context.Context, userID string) (*tenants.Profile, error)
}

// CookieSettings controls the browser session cookies.
type CookieSettings struct {
	Name   string
	Secure bool
}

func (c CookieSettings) refreshName() string {
	return c.Name + "_refresh"
}

type AuthHandler struct {
	Service AccountService
	Cookie  CookieSettings
	Env     string
}

func NewAuthHandler(service AccountService, cookie CookieSettings, env string) *AuthHandler {
	return &AuthHandler{Service: service, Cookie: cookie, Env: env}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var input tenants.RegisterInput
	if !decodeJSON(w, r, &input, h.Env) {
		return
	}
	session, err := h.Service.Register(r.Context(), input)
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	h.setSession(w, session)
	writeJSON(w, http.StatusCreated, session)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req, h.Env) {
		return
	}
	session, err := h.Service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeAuthError(w, r, err)
		return
	}
	h.setSession(w, session)
	writeJSON(w, http.StatusOK, session)
}

// Refresh rotates the refresh token. Browsers send it in the refresh cookie,
// other clients in the body.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	plain := h.refreshToken(r)
	if plain == "" {
		problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Refresh token required", problem.ErrUnauthorized, h.Env)
		return
	}
	session, err := h.Service.Refresh(r.Context(), plain)
	if err != nil {
		h.clearSession(w)
		h.writeAuthError(w, r, err)
		return
	}
	h.setSession(w, session)
	writeJSON(w, http.StatusOK, session)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if plain := h.refreshToken(r); plain != "" {
		if err := h.Service.Logout(r.Context(), plain); err != nil {
			writeDomainError(w, r, err, h.Env)
			return
		}
	}
	h.clearSession(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	profile, err := h.Service.Me(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		writeDomainError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *AuthHandler) refreshToken(r *http.Request) string {
	if cookie, err := r.Cookie(h.Cookie.refreshName()); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if r.Body == nil || r.ContentLength == 0 {
		return ""
	}
	var req refreshRequest
	if err := decodeBody(r, &req); err != nil {
		return ""
	}
	return strings.TrimSpace(req.RefreshToken)
}

func (h *AuthHandler) writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, tenants.ErrInvalidCredentials) || errors.Is(err, tenants.ErrInvalidRefresh) || errors.Is(err, tenants.ErrRefreshReuse) {
		problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Unauthorized", err, h.Env, problem.WithDetail(err.Error()))
		return
	}
	writeDomainError(w, r, err, h.Env)
}

func (h *AuthHandler) setSession(w http.ResponseWriter, session *tenants.Session) {
	if h.Cookie.Name == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.Cookie.Name,
		Value:    session.AccessToken,
		Path:     "/",
		Expires:  session.AccessExpiresAt,
		HttpOnly: true,
		Secure:   h.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     h.Cookie.refreshName(),
		Value:    session.RefreshToken,
		Path:     "/api/v1/auth",
		Expires:  session.RefreshExpiresAt,
		HttpOnly: true,
		Secure:   h.Cookie.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandler) clearSession(w http.ResponseWriter) {
	if h.Cookie.Name == "" {
		return
	}
	for name, path := range map[string]string{h.Cookie.Name: "/", h.Cookie.refreshName(): "/api/v1/auth"} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     path,
			Expires:  time.Unix(0, 0),
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   h.Cookie.Secure,
		})
	}
}
