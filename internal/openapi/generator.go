package openapi

import (
	"github.com/getkin/kin-openapi/openapi3"
)

// Version is the version string advertised in the generated document.
const Version = "1.0.0"

const (
	tagAuth   = "auth"
	tagAdmins = "admins"
	tagHealth = "health"
)

// Generate builds the OpenAPI 3.1 description of the admin API served under
// baseURL.
func Generate(baseURL string) *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "Vitrine Back Office API",
			Description: "Session and administrator management for the Vitrine back office.",
			Version:     Version,
		},
		Servers: openapi3.Servers{
			{URL: baseURL},
		},
		Tags: openapi3.Tags{
			{Name: tagAuth, Description: "Sessions and the caller's own account"},
			{Name: tagAdmins, Description: "Administrator management (SUPERADMIN only)"},
			{Name: tagHealth, Description: "Probes"},
		},
	}

	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{}
	components.SecuritySchemes = openapi3.SecuritySchemes{}
	doc.Components = &components

	doc.Components.SecuritySchemes["cookieAuth"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type: "apiKey",
			In:   "cookie",
			Name: "vitrine_access",
		},
	}
	doc.Components.SecuritySchemes["bearerAuth"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
		},
	}
	doc.Security = openapi3.SecurityRequirements{
		{"cookieAuth": {}},
		{"bearerAuth": {}},
	}

	addSchemas(doc.Components.Schemas)

	doc.Paths = openapi3.NewPaths()
	addAuthPaths(doc)
	addAdminPaths(doc)
	addHealthPaths(doc)

	return doc
}

// ─── Schemas ────────────────────────────────────────────────────────────────

func addSchemas(s openapi3.Schemas) {
	s["ErrorResponse"] = &openapi3.SchemaRef{
		Value: objectSchema(openapi3.Schemas{
			"error": {
				Value: objectSchema(openapi3.Schemas{
					"code":    {Value: openapi3.NewInt32Schema()},
					"message": {Value: openapi3.NewStringSchema()},
					"context": {
						Value: objectSchema(openapi3.Schemas{
							"reason": {Value: describe(openapi3.NewStringSchema(), "Stable machine-readable error code.")},
							"fields": {Value: openapi3.NewObjectSchema().WithAdditionalProperties(openapi3.NewStringSchema())},
						}),
					},
				}, "code", "message"),
			},
		}, "error"),
	}

	s["Role"] = &openapi3.SchemaRef{
		Value: openapi3.NewStringSchema().WithEnum("ADMIN", "SUPERADMIN"),
	}

	s["Admin"] = &openapi3.SchemaRef{
		Value: objectSchema(openapi3.Schemas{
			"id":            {Value: openapi3.NewStringSchema().WithFormat("uuid")},
			"name":          {Value: openapi3.NewStringSchema()},
			"email":         {Value: openapi3.NewStringSchema().WithFormat("email")},
			"role":          ref("Role"),
			"is_active":     {Value: openapi3.NewBoolSchema()},
			"last_login_at": {Value: openapi3.NewDateTimeSchema().WithNullable()},
			"created_at":    {Value: openapi3.NewDateTimeSchema()},
			"updated_at":    {Value: openapi3.NewDateTimeSchema()},
		}, "id", "name", "email", "role", "is_active", "created_at", "updated_at"),
	}

	s["AdminList"] = &openapi3.SchemaRef{
		Value: objectSchema(openapi3.Schemas{
			"resource": {Value: &openapi3.Schema{Type: &openapi3.Types{"array"}, Items: ref("Admin")}},
			"meta": {
				Value: objectSchema(openapi3.Schemas{
					"count": {Value: openapi3.NewIntegerSchema()},
				}),
			},
		}, "resource"),
	}

	s["Session"] = &openapi3.SchemaRef{
		Value: objectSchema(openapi3.Schemas{
			"admin":              ref("Admin"),
			"access_expires_at":  {Value: openapi3.NewDateTimeSchema()},
			"refresh_expires_at": {Value: openapi3.NewDateTimeSchema()},
		}, "admin", "access_expires_at", "refresh_expires_at"),
	}

	s["Principal"] = &openapi3.SchemaRef{
		Value: objectSchema(openapi3.Schemas{
			"subject_id": {Value: openapi3.NewStringSchema()},
			"role":       ref("Role"),
		}, "subject_id", "role"),
	}

	s["Me"] = &openapi3.SchemaRef{
		Value: objectSchema(openapi3.Schemas{
			"principal": ref("Principal"),
			"admin":     ref("Admin"),
		}, "principal", "admin"),
	}

	s["Success"] = &openapi3.SchemaRef{
		Value: objectSchema(openapi3.Schemas{
			"success": {Value: openapi3.NewBoolSchema()},
			"message": {Value: openapi3.NewStringSchema()},
		}, "success"),
	}

	s["Status"] = &openapi3.SchemaRef{
		Value: objectSchema(openapi3.Schemas{
			"status": {Value: openapi3.NewStringSchema()},
		}, "status"),
	}

	s["RegisterRequest"] = &openapi3.SchemaRef{
		Value: objectSchema(openapi3.Schemas{
			"name":     nameSchema(),
			"email":    emailSchema(),
			"password": passwordSchema(),
		}, "name", "email", "password"),
	}
	s["LoginRequest"] = &openapi3.SchemaRef{
		Value: objectSchema(openapi3.Schemas{
			"email":    emailSchema(),
			"password": {Value: openapi3.NewStringSchema()},
		}, "email", "password"),
	}
	s["RefreshRequest"] = &openapi3.SchemaRef{
		Value: objectSchema(openapi3.Schemas{
			"refresh_token": {Value: openapi3.NewStringSchema()},
		}),
	}
	s["ChangePasswordRequest"] = &openapi3.SchemaRef{
		Value: objectSchema(openapi3.Schemas{
			"current_password": {Value: openapi3.NewStringSchema()},
			"new_password":     passwordSchema(),
		}, "current_password", "new_password"),
	}
	s["ResetPasswordRequest"] = &openapi3.SchemaRef{
		Value: objectSchema(openapi3.Schemas{
			"password": passwordSchema(),
		}, "password"),
	}
	s["CreateAdminRequest"] = &openapi3.SchemaRef{
		Value: objectSchema(openapi3.Schemas{
			"name":      nameSchema(),
			"email":     emailSchema(),
			"password":  passwordSchema(),
			"role":      {Value: describe(openapi3.NewStringSchema().WithEnum("ADMIN"), "SUPERADMIN accounts cannot be created.")},
			"is_active": {Value: openapi3.NewBoolSchema().WithDefault(true)},
		}, "name", "email", "password"),
	}
	s["UpdateAdminRequest"] = &openapi3.SchemaRef{
		Value: objectSchema(openapi3.Schemas{
			"name":      nameSchema(),
			"email":     emailSchema(),
			"role":      ref("Role"),
			"is_active": {Value: openapi3.NewBoolSchema()},
		}),
	}
}

func objectSchema(props openapi3.Schemas, required ...string) *openapi3.Schema {
	s := &openapi3.Schema{
		Type:       &openapi3.Types{"object"},
		Properties: props,
	}
	if len(required) > 0 {
		s.Required = required
	}
	return s
}

func describe(s *openapi3.Schema, description string) *openapi3.Schema {
	s.Description = description
	return s
}

func ref(name string) *openapi3.SchemaRef {
	return openapi3.NewSchemaRef("#/components/schemas/"+name, nil)
}

func nameSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: openapi3.NewStringSchema().WithMinLength(1).WithMaxLength(100)}
}

func emailSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: openapi3.NewStringSchema().WithFormat("email").WithMaxLength(255)}
}

func passwordSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: openapi3.NewStringSchema().WithMinLength(6).WithMaxLength(72)}
}

// ─── Paths ──────────────────────────────────────────────────────────────────

func addAuthPaths(doc *openapi3.T) {
	doc.Paths.Set("/api/v1/auth/register", &openapi3.PathItem{
		Post: public(operation(tagAuth, "register", "Create the first SUPERADMIN account",
			"RegisterRequest", "201", "Created", "Admin", "400", "403", "429")),
	})
	doc.Paths.Set("/api/v1/auth/login", &openapi3.PathItem{
		Post: public(operation(tagAuth, "login", "Start a session; sets the access and refresh cookies",
			"LoginRequest", "200", "Logged in", "Session", "400", "401", "403", "429")),
	})
	doc.Paths.Set("/api/v1/auth/logout", &openapi3.PathItem{
		Post: public(operation(tagAuth, "logout", "Clear the session cookies",
			"", "200", "Logged out", "Success")),
	})
	doc.Paths.Set("/api/v1/auth/refresh", &openapi3.PathItem{
		Post: public(operation(tagAuth, "refresh", "Rotate the refresh credential into a new pair",
			"RefreshRequest", "200", "Rotated", "Session", "400", "403")),
	})
	doc.Paths.Set("/api/v1/auth/me", &openapi3.PathItem{
		Get: operation(tagAuth, "me", "Describe the authenticated principal",
			"", "200", "Current principal", "Me", "401", "403", "404"),
	})
	doc.Paths.Set("/api/v1/auth/password", &openapi3.PathItem{
		Put: operation(tagAuth, "changePassword", "Change the caller's own password",
			"ChangePasswordRequest", "200", "Changed", "Success", "400", "401", "403"),
	})
}

func addAdminPaths(doc *openapi3.T) {
	idParam := &openapi3.ParameterRef{
		Value: openapi3.NewPathParameter("adminId").
			WithDescription("Admin account id.").
			WithSchema(openapi3.NewStringSchema()),
	}

	doc.Paths.Set("/api/v1/admins", &openapi3.PathItem{
		Get: operation(tagAdmins, "listAdmins", "List admin accounts",
			"", "200", "Admin accounts", "AdminList", "401", "403"),
		Post: operation(tagAdmins, "createAdmin", "Create an ADMIN account",
			"CreateAdminRequest", "201", "Created", "Admin", "400", "401", "403", "409"),
	})

	item := &openapi3.PathItem{
		Get: operation(tagAdmins, "getAdmin", "Fetch one admin account",
			"", "200", "Admin account", "Admin", "401", "403", "404"),
		Patch: operation(tagAdmins, "updateAdmin", "Update an admin account",
			"UpdateAdminRequest", "200", "Updated", "Admin", "400", "401", "403", "404", "409"),
		Delete: operation(tagAdmins, "deleteAdmin", "Delete an admin account",
			"", "200", "Deleted", "Success", "401", "403", "404"),
	}
	item.Parameters = openapi3.Parameters{idParam}
	doc.Paths.Set("/api/v1/admins/{adminId}", item)

	reset := &openapi3.PathItem{
		Put: operation(tagAdmins, "resetAdminPassword", "Set another account's password",
			"ResetPasswordRequest", "200", "Reset", "Success", "400", "401", "403", "404"),
	}
	reset.Parameters = openapi3.Parameters{idParam}
	doc.Paths.Set("/api/v1/admins/{adminId}/password", reset)
}

func addHealthPaths(doc *openapi3.T) {
	doc.Paths.Set("/healthz", &openapi3.PathItem{
		Get: public(operation(tagHealth, "live", "Liveness probe", "", "200", "Serving", "Status")),
	})
	doc.Paths.Set("/readyz", &openapi3.PathItem{
		Get: public(operation(tagHealth, "ready", "Readiness probe; pings the store", "", "200", "Ready", "Status", "503")),
	})
}

// operation builds an operation with an optional JSON request body, one
// success response and the listed error responses.
func operation(tag, id, summary, requestSchema, status, description, responseSchema string, errorStatuses ...string) *openapi3.Operation {
	op := &openapi3.Operation{
		Tags:        []string{tag},
		Summary:     summary,
		OperationID: id,
		Responses:   newResponses(status, description, ref(responseSchema), errorStatuses...),
	}
	if requestSchema != "" {
		op.RequestBody = &openapi3.RequestBodyRef{
			Value: openapi3.NewRequestBody().
				WithRequired(true).
				WithJSONSchemaRef(ref(requestSchema)),
		}
	}
	return op
}

// public marks op as requiring no credential.
func public(op *openapi3.Operation) *openapi3.Operation {
	op.Security = &openapi3.SecurityRequirements{}
	return op
}

// ─── Response Helpers ───────────────────────────────────────────────────────

var errorDescriptions = map[string]string{
	"400": "Validation failed",
	"401": "Missing or wrong credential",
	"403": "Forbidden",
	"404": "Not found",
	"409": "Conflict",
	"429": "Too many attempts",
	"503": "Unavailable",
}

// newResponses builds a Responses map with a success response, the given
// error responses and a 500.
func newResponses(statusCode, description string, schema *openapi3.SchemaRef, errorStatuses ...string) *openapi3.Responses {
	responses := openapi3.NewResponses()

	successDesc := description
	responses.Set(statusCode, &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &successDesc,
			Content:     openapi3.NewContentWithJSONSchemaRef(schema),
		},
	})

	errorRef := ref("ErrorResponse")
	for _, status := range append(errorStatuses, "500") {
		desc, ok := errorDescriptions[status]
		if !ok {
			desc = "Internal server error"
		}
		if status == "503" {
			responses.Set(status, &openapi3.ResponseRef{
				Value: &openapi3.Response{Description: &desc, Content: openapi3.NewContentWithJSONSchemaRef(ref("Status"))},
			})
			continue
		}
		responses.Set(status, &openapi3.ResponseRef{
			Value: &openapi3.Response{
				Description: &desc,
				Content:     openapi3.NewContentWithJSONSchemaRef(errorRef),
			},
		})
	}
	return responses
}
