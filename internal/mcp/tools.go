package mcp

import (
	"context"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/vitrinehq/vitrine/internal/config"
	"github.com/vitrinehq/vitrine/internal/model"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// registerTools registers all operator tools on the given server.
func (s *MCPServer) registerTools(srv *server.MCPServer) {
	srv.AddTool(
		mcp.NewTool("vitrine_list_admins",
			mcp.WithDescription(
				"List back office accounts with their role, active flag and last login. "+
					"Password hashes are never returned.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("role",
				mcp.Description("Only return accounts holding this role"),
				mcp.Enum(string(model.RoleAdmin), string(model.RoleSuperAdmin)),
			),
			mcp.WithBoolean("active_only",
				mcp.Description("Only return active accounts"),
			),
		),
		s.handleListAdmins,
	)

	srv.AddTool(
		mcp.NewTool("vitrine_lockout_status",
			mcp.WithDescription(
				"Report whether login is currently locked for an email address, how many "+
					"recent failures count toward the lockout and when it lifts.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("email",
				mcp.Required(),
				mcp.Description("Email address to inspect"),
			),
		),
		s.handleLockoutStatus,
	)

	srv.AddTool(
		mcp.NewTool("vitrine_recent_audit",
			mcp.WithDescription(
				"Return the most recent audit entries, newest first. Entries describe "+
					"account creation, updates, deletion and password changes.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of entries (default 50, max 500)"),
			),
			mcp.WithString("action",
				mcp.Description("Only return entries with this action (e.g. ADMIN_DELETE)"),
			),
		),
		s.handleRecentAudit,
	)
}

type adminInfo struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	Role        model.Role `json:"role"`
	IsActive    bool       `json:"is_active"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// handleListAdmins returns accounts, optionally filtered.
func (s *MCPServer) handleListAdmins(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	role := model.Role(strings.ToUpper(optionalString(request, "role")))
	if role != "" && !role.Valid() {
		return toolError("Unknown role %q", role)
	}
	activeOnly := request.GetBool("active_only", false)

	admins, err := s.store.ListAdmins(ctx)
	if err != nil {
		return toolError("Failed to list admins: %v", err)
	}

	items := make([]adminInfo, 0, len(admins))
	for _, a := range admins {
		if role != "" && a.Role != role {
			continue
		}
		if activeOnly && !a.IsActive {
			continue
		}
		items = append(items, adminInfo{
			ID:          a.ID,
			Email:       a.Email,
			Name:        a.Name,
			Role:        a.Role,
			IsActive:    a.IsActive,
			LastLoginAt: a.LastLoginAt,
		})
	}

	return successJSON(map[string]interface{}{
		"admins": items,
		"count":  len(items),
	})
}

// handleLockoutStatus reports the ledger's view of one email.
func (s *MCPServer) handleLockoutStatus(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	email, err := requireString(request, "email")
	if err != nil {
		return toolError("%v", err)
	}

	status, err := s.ledger.Status(ctx, config.NormalizeEmail(email))
	if err != nil {
		return toolError("Failed to read lockout status: %v", err)
	}
	return successJSON(status)
}

// handleRecentAudit returns the newest audit entries.
func (s *MCPServer) handleRecentAudit(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	limit := clamp(optionalInt(request, "limit", defaultAuditLimit), 1, maxAuditLimit)
	action := model.AuditAction(strings.ToUpper(optionalString(request, "action")))

	// Filtering happens after the read, so fetch the cap when filtering.
	fetch := limit
	if action != "" {
		fetch = maxAuditLimit
	}
	entries, err := s.store.ListAuditEntries(ctx, fetch)
	if err != nil {
		return toolError("Failed to list audit entries: %v", err)
	}

	out := make([]model.AuditEntry, 0, limit)
	for _, e := range entries {
		if action != "" && e.Action != action {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}

	return successJSON(map[string]interface{}{
		"entries": out,
		"count":   len(out),
	})
}
