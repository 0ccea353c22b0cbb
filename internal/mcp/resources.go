package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/vitrinehq/vitrine/internal/config"
)

const (
	adminsURI         = "vitrine://admins"
	lockoutURIPrefix  = "vitrine://lockout/"
	lockoutURIPattern = lockoutURIPrefix + "{email}"
)

// registerResources adds MCP resource definitions to the server. Resources
// provide read-only data that clients can load into their context.
func (s *MCPServer) registerResources(srv *server.MCPServer) {
	srv.AddResource(
		mcp.NewResource(
			adminsURI,
			"Back Office Accounts",
			mcp.WithResourceDescription("All back office accounts with role and active flag."),
			mcp.WithMIMEType("application/json"),
		),
		s.handleAdminsResource,
	)

	srv.AddResourceTemplate(
		mcp.NewResourceTemplate(
			lockoutURIPattern,
			"Login Lockout Status",
			mcp.WithTemplateDescription("Lockout state of one email address."),
			mcp.WithTemplateMIMEType("application/json"),
		),
		s.handleLockoutResource,
	)
}

// handleAdminsResource returns the account list.
func (s *MCPServer) handleAdminsResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {

	admins, err := s.store.ListAdmins(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list admins: %w", err)
	}
	return jsonResource(adminsURI, admins)
}

// handleLockoutResource returns the lockout status named by the URI.
func (s *MCPServer) handleLockoutResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {

	uri := request.Params.URI
	email := strings.TrimPrefix(uri, lockoutURIPrefix)
	if email == "" || email == uri {
		return nil, fmt.Errorf("invalid lockout URI %q: expected %s", uri, lockoutURIPattern)
	}

	status, err := s.ledger.Status(ctx, config.NormalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("failed to read lockout status: %w", err)
	}
	return jsonResource(uri, status)
}

func jsonResource(uri string, v interface{}) ([]mcp.ResourceContents, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}
