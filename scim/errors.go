package scim

import (
	"fmt"
	"net/http"
)

// SCIM scimType values (RFC 7644 §3.12) used by the error kinds this proxy
// actually raises. Kinds tied to resource schema validation (mutability,
// sensitive, uniqueness) are not here: that validation belongs to the
// upstream provider, not the proxy.
const (
	ScimTypeInvalidFilter = "invalidFilter"
	ScimTypeInvalidPath   = "invalidPath"
	ScimTypeInvalidSyntax = "invalidSyntax"
	ScimTypeInvalidValue  = "invalidValue"
	ScimTypeTooMany       = "tooMany"
)

// SCIMError is a SCIM-flavored error carrying the HTTP status and scimType
// to surface to the client, per the taxonomy in the error handling design:
// InvalidFilter, FilterEvaluation, Upstream, InvalidPatch, ResourceNotFound,
// TooManyRequests.
type SCIMError struct {
	Status   int
	Detail   string
	ScimType string
}

func (e *SCIMError) Error() string {
	return e.Detail
}

// NewSCIMError builds a SCIMError with an explicit status and scimType.
func NewSCIMError(status int, detail, scimType string) *SCIMError {
	return &SCIMError{Status: status, Detail: detail, ScimType: scimType}
}

// Error constructors, one per taxonomy kind.
var (
	// ErrInvalidFilter covers a malformed filter string or a tree that
	// exceeds the configured complexity bound.
	ErrInvalidFilter = func(detail string) *SCIMError {
		return NewSCIMError(http.StatusBadRequest, detail, ScimTypeInvalidFilter)
	}

	// ErrFilterEvaluation signals a systemic evaluator failure. Per-resource
	// evaluation never reaches this path: the evaluator is total, and a
	// document shape it cannot evaluate is a non-match (see evaluator.go).
	ErrFilterEvaluation = func(detail string) *SCIMError {
		return NewSCIMError(http.StatusInternalServerError, detail, "filterEvaluation")
	}

	// ErrUpstream wraps a transport failure or non-2xx from upstream. Callers
	// pass through the upstream's own status where it is meaningful (404 is
	// preserved); otherwise status defaults to a 502-class value.
	ErrUpstream = func(status int, detail string) *SCIMError {
		if status < 400 {
			status = http.StatusBadGateway
		}
		return NewSCIMError(status, detail, "")
	}

	// ErrInvalidPatch covers a PATCH operation the adapter cannot rewrite
	// into something the upstream accepts.
	ErrInvalidPatch = func(detail string) *SCIMError {
		return NewSCIMError(http.StatusBadRequest, detail, ScimTypeInvalidPath)
	}

	// ErrInvalidValue covers a malformed PATCH operation value.
	ErrInvalidValue = func(detail string) *SCIMError {
		return NewSCIMError(http.StatusBadRequest, detail, ScimTypeInvalidValue)
	}

	// ErrInvalidSyntax covers a structurally malformed request body.
	ErrInvalidSyntax = func(detail string) *SCIMError {
		return NewSCIMError(http.StatusBadRequest, detail, ScimTypeInvalidSyntax)
	}

	ErrNotFound = func(resourceType, id string) *SCIMError {
		return NewSCIMError(http.StatusNotFound, fmt.Sprintf("%s %s not found", resourceType, id), "")
	}

	// ErrTooMany is forwarded from an upstream 429.
	ErrTooMany = func(detail string) *SCIMError {
		return NewSCIMError(http.StatusTooManyRequests, detail, ScimTypeTooMany)
	}

	ErrMethodNotAllowed = func(method string) *SCIMError {
		return NewSCIMError(http.StatusMethodNotAllowed, fmt.Sprintf("method %s not allowed", method), "")
	}

	ErrInternalServer = func(detail string) *SCIMError {
		return NewSCIMError(http.StatusInternalServerError, detail, "")
	}
)

// WriteSCIMError writes a SCIM error response for err.
func (h *Handler) WriteSCIMError(w http.ResponseWriter, err *SCIMError) {
	h.WriteError(w, err.Status, err.Detail, err.ScimType)
}
