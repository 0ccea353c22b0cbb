package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/vitrinehq/vitrine/internal/model"
	"github.com/vitrinehq/vitrine/internal/server/middleware"
	"github.com/vitrinehq/vitrine/internal/service"
)

// SessionHandler serves registration, login, logout, refresh and the
// caller's own account.
type SessionHandler struct {
	accounts *service.AccountService
	cookies  CookieConfig
	logger   *slog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(accounts *service.AccountService, cookies CookieConfig, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{accounts: accounts, cookies: cookies, logger: logger}
}

// sessionResponse is returned by login and refresh. The tokens themselves
// travel only in cookies.
type sessionResponse struct {
	Admin            *model.Admin `json:"admin"`
	AccessExpiresAt  time.Time    `json:"access_expires_at"`
	RefreshExpiresAt time.Time    `json:"refresh_expires_at"`
}

func newSessionResponse(s *service.Session) sessionResponse {
	return sessionResponse{
		Admin:            s.Admin,
		AccessExpiresAt:  s.Tokens.AccessExpiresAt,
		RefreshExpiresAt: s.Tokens.RefreshExpiresAt,
	}
}

// Register creates the first SUPERADMIN. Only succeeds while no account
// exists.
// POST /api/v1/auth/register
func (h *SessionHandler) Register(w http.ResponseWriter, r *http.Request) {
	var in service.BootstrapInput
	if err := readJSON(w, r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	admin, err := h.accounts.Bootstrap(r.Context(), in, middleware.OriginFrom(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, admin)
}

// Login verifies credentials and sets both session cookies.
// POST /api/v1/auth/login
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var in service.LoginInput
	if err := readJSON(w, r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	sess, err := h.accounts.Login(r.Context(), in, middleware.OriginFrom(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.cookies.setSession(w, sess.Tokens)
	writeJSON(w, http.StatusOK, newSessionResponse(sess))
}

// Logout clears both session cookies. Tokens are stateless, so nothing is
// invalidated on the server.
// POST /api/v1/auth/logout
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.cookies.clearSession(w)
	writeJSON(w, http.StatusOK, successResponse{Success: true, Message: "Logged out"})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh rotates the refresh credential into a new pair of cookies. The
// refresh cookie is preferred; a JSON body with refresh_token is accepted
// for non-browser clients. A failed refresh clears both cookies.
// POST /api/v1/auth/refresh
func (h *SessionHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	token := ""
	if c, err := r.Cookie(middleware.RefreshCookie); err == nil {
		token = c.Value
	}
	if token == "" && r.ContentLength > 0 {
		var req refreshRequest
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		token = req.RefreshToken
	}

	sess, err := h.accounts.Refresh(r.Context(), token)
	if err != nil {
		h.cookies.clearSession(w)
		writeError(w, r, h.logger, err)
		return
	}
	h.cookies.setSession(w, sess.Tokens)
	writeJSON(w, http.StatusOK, newSessionResponse(sess))
}

type meResponse struct {
	Principal *service.Principal `json:"principal"`
	Admin     *model.Admin       `json:"admin"`
}

// Me returns the authenticated principal and its account.
// GET /api/v1/auth/me
func (h *SessionHandler) Me(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFrom(r.Context())
	admin, err := h.accounts.Me(r.Context(), p)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, meResponse{Principal: p, Admin: admin})
}

// ChangePassword replaces the caller's password after checking the current
// one.
// PUT /api/v1/auth/password
func (h *SessionHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var in service.ChangePasswordInput
	if err := readJSON(w, r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	p := middleware.PrincipalFrom(r.Context())
	if err := h.accounts.ChangePassword(r.Context(), p, in, middleware.OriginFrom(r)); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true, Message: "Password changed"})
}
