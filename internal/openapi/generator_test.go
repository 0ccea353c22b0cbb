package openapi

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestGenerateInfo(t *testing.T) {
	doc := Generate("http://localhost:8080")

	if doc.OpenAPI != "3.1.0" {
		t.Errorf("OpenAPI = %q, want 3.1.0", doc.OpenAPI)
	}
	if doc.Info == nil || doc.Info.Version != Version {
		t.Fatalf("Info = %+v", doc.Info)
	}
	if len(doc.Servers) != 1 || doc.Servers[0].URL != "http://localhost:8080" {
		t.Errorf("Servers = %+v", doc.Servers)
	}
	for _, name := range []string{"cookieAuth", "bearerAuth"} {
		if _, ok := doc.Components.SecuritySchemes[name]; !ok {
			t.Errorf("missing security scheme %q", name)
		}
	}
}

func TestGeneratePaths(t *testing.T) {
	doc := Generate("")

	tests := []struct {
		path    string
		methods []string
	}{
		{"/api/v1/auth/register", []string{"POST"}},
		{"/api/v1/auth/login", []string{"POST"}},
		{"/api/v1/auth/logout", []string{"POST"}},
		{"/api/v1/auth/refresh", []string{"POST"}},
		{"/api/v1/auth/me", []string{"GET"}},
		{"/api/v1/auth/password", []string{"PUT"}},
		{"/api/v1/admins", []string{"GET", "POST"}},
		{"/api/v1/admins/{adminId}", []string{"GET", "PATCH", "DELETE"}},
		{"/api/v1/admins/{adminId}/password", []string{"PUT"}},
		{"/healthz", []string{"GET"}},
		{"/readyz", []string{"GET"}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			item := doc.Paths.Value(tt.path)
			if item == nil {
				t.Fatalf("path %s missing", tt.path)
			}
			for _, m := range tt.methods {
				if item.GetOperation(m) == nil {
					t.Errorf("%s %s missing", m, tt.path)
				}
			}
		})
	}
}

func TestGeneratePublicOperations(t *testing.T) {
	doc := Generate("")

	for _, path := range []string{"/api/v1/auth/login", "/api/v1/auth/logout", "/api/v1/auth/refresh"} {
		op := doc.Paths.Value(path).Post
		if op.Security == nil || len(*op.Security) != 0 {
			t.Errorf("%s should not require a credential, got %+v", path, op.Security)
		}
	}
	list := doc.Paths.Value("/api/v1/admins").Get
	if list.Security != nil {
		t.Errorf("list admins should inherit document security")
	}
}

func TestGenerateErrorResponses(t *testing.T) {
	doc := Generate("")

	op := doc.Paths.Value("/api/v1/auth/login").Post
	for _, status := range []string{"200", "400", "401", "403", "429", "500"} {
		if op.Responses.Value(status) == nil {
			t.Errorf("login missing %s response", status)
		}
	}
	if op.Responses.Value("409") != nil {
		t.Errorf("login should not document 409")
	}
}

func TestGenerateMarshalsJSON(t *testing.T) {
	doc := Generate("http://localhost:8080")

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	body := string(data)
	for _, want := range []string{
		`"operationId":"login"`,
		`"#/components/schemas/Admin"`,
		`"SUPERADMIN"`,
		`"vitrine_access"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("document missing %s", want)
		}
	}
	if strings.Contains(body, "password_hash") {
		t.Error("document must not expose password_hash")
	}
}
