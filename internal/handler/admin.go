package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vitrinehq/vitrine/internal/model"
	"github.com/vitrinehq/vitrine/internal/server/middleware"
	"github.com/vitrinehq/vitrine/internal/service"
)

// AdminHandler manages back office accounts. Every route requires a
// SUPERADMIN principal.
type AdminHandler struct {
	accounts *service.AccountService
	logger   *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(accounts *service.AccountService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{accounts: accounts, logger: logger}
}

// List returns all admin accounts.
// GET /api/v1/admins
func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	admins, err := h.accounts.ListAdmins(r.Context(), middleware.PrincipalFrom(r.Context()))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, model.ListResponse{
		Resource: admins,
		Meta:     &model.ResponseMeta{Count: len(admins)},
	})
}

// Create adds a new ADMIN account.
// POST /api/v1/admins
func (h *AdminHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.CreateAdminInput
	if err := readJSON(w, r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	admin, err := h.accounts.CreateAdmin(r.Context(), middleware.PrincipalFrom(r.Context()), in, middleware.OriginFrom(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, admin)
}

// Get returns one admin account.
// GET /api/v1/admins/{adminId}
func (h *AdminHandler) Get(w http.ResponseWriter, r *http.Request) {
	admin, err := h.accounts.GetAdmin(r.Context(), middleware.PrincipalFrom(r.Context()), chi.URLParam(r, "adminId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, admin)
}

// Update applies a partial update to an admin account.
// PATCH /api/v1/admins/{adminId}
func (h *AdminHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in service.UpdateAdminInput
	if err := readJSON(w, r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	admin, err := h.accounts.UpdateAdmin(r.Context(), middleware.PrincipalFrom(r.Context()),
		chi.URLParam(r, "adminId"), in, middleware.OriginFrom(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, admin)
}

// Delete removes an admin account.
// DELETE /api/v1/admins/{adminId}
func (h *AdminHandler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.accounts.DeleteAdmin(r.Context(), middleware.PrincipalFrom(r.Context()),
		chi.URLParam(r, "adminId"), middleware.OriginFrom(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true, Message: "Admin deleted"})
}

// ResetPassword sets another admin's password without the old-password
// check.
// PUT /api/v1/admins/{adminId}/password
func (h *AdminHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var in service.ResetPasswordInput
	if err := readJSON(w, r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	err := h.accounts.ResetPassword(r.Context(), middleware.PrincipalFrom(r.Context()),
		chi.URLParam(r, "adminId"), in, middleware.OriginFrom(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true, Message: "Password reset"})
}
