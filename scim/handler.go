package scim

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

const (
	SchemaUser = "urn:ietf:params:scim:schemas:core:2.0:User"
	SchemaGroup = "urn:ietf:params:scim:schemas:core:2.0:Group"
)

// Handler holds the pieces shared by every SCIM HTTP endpoint: writing SCIM
// error/success envelopes and parsing list query parameters.
type Handler struct {
	baseURL string
}

// NewHandler creates a new SCIM handler rooted at baseURL, used to build
// resource Location headers.
func NewHandler(baseURL string) *Handler {
	return &Handler{baseURL: baseURL}
}

// WriteError writes a SCIM error response.
func (h *Handler) WriteError(w http.ResponseWriter, status int, detail string, scimType string) {
	w.Header().Set("Content-Type", "application/scim+json")
	w.WriteHeader(status)

	body := ErrorBody{
		Schemas:  []string{SchemaError},
		Status:   strconv.Itoa(status),
		Detail:   detail,
		ScimType: scimType,
	}
	json.NewEncoder(w).Encode(body)
}

// WriteJSON writes a successful JSON response.
func (h *Handler) WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/scim+json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// ParseQueryParams extracts SCIM list query parameters from the request.
// Returns an error if both attributes and excludedAttributes are specified
// (RFC 7644 §3.9 mutual exclusivity).
func (h *Handler) ParseQueryParams(r *http.Request) (QueryParams, error) {
	params := QueryParams{
		StartIndex: 1,
		Count:      100,
		SortOrder:  "ascending",
	}

	if filter := r.URL.Query().Get("filter"); filter != "" {
		params.Filter = filter
	}

	hasAttributes := false
	if attrs := r.URL.Query().Get("attributes"); attrs != "" {
		params.Attributes = splitAndTrim(attrs)
		hasAttributes = true
	}

	hasExcluded := false
	if excludedAttr := r.URL.Query().Get("excludedAttributes"); excludedAttr != "" {
		params.ExcludedAttr = splitAndTrim(excludedAttr)
		hasExcluded = true
	}

	if hasAttributes && hasExcluded {
		return params, fmt.Errorf("attributes and excludedAttributes are mutually exclusive")
	}

	if startIndex := r.URL.Query().Get("startIndex"); startIndex != "" {
		if idx, err := strconv.Atoi(startIndex); err == nil && idx > 0 {
			params.StartIndex = idx
		}
	}

	if count := r.URL.Query().Get("count"); count != "" {
		if c, err := strconv.Atoi(count); err == nil && c > 0 {
			params.Count = c
		}
	}

	if sortBy := r.URL.Query().Get("sortBy"); sortBy != "" {
		params.SortBy = sortBy
	}

	if sortOrder := r.URL.Query().Get("sortOrder"); sortOrder != "" {
		params.SortOrder = strings.ToLower(sortOrder)
	}

	return params, nil
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// GetResourceLocation returns the Location URL for a resource of the given
// type and ID.
func (h *Handler) GetResourceLocation(resourceType, id string) string {
	return fmt.Sprintf("%s/%s/%s", h.baseURL, resourceType, id)
}

// ExtractResourceID extracts the resource ID, if any, from a path of the
// form /Users/{id} or /Groups/{id}.
func ExtractResourceID(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}
