package handler

import (
	"net/http"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/vitrinehq/vitrine/internal/openapi"
)

// OpenAPIHandler serves the OpenAPI description of the admin API. The
// document is generated once, on first request.
type OpenAPIHandler struct {
	baseURL string
	once    sync.Once
	doc     *openapi3.T
}

// NewOpenAPIHandler creates a new OpenAPIHandler.
func NewOpenAPIHandler(baseURL string) *OpenAPIHandler {
	return &OpenAPIHandler{baseURL: baseURL}
}

// ServeSpec returns the OpenAPI document.
// GET /openapi.json
func (h *OpenAPIHandler) ServeSpec(w http.ResponseWriter, r *http.Request) {
	h.once.Do(func() {
		h.doc = openapi.Generate(h.baseURL)
	})
	writeJSON(w, http.StatusOK, h.doc)
}
