package scim

import (
	"fmt"
	"slices"
	"strings"
)

// ValidatePatchOp validates the structural shape of a PATCH request body.
// It does not validate resource schema beyond recognizing the PatchOp
// schema URN — attribute-level schema validation belongs to the upstream
// provider, not the proxy.
func ValidatePatchOp(patch *PatchOp) error {
	if patch == nil {
		return ErrInvalidSyntax("patch operation cannot be nil")
	}

	if !slices.Contains(patch.Schemas, SchemaPatchOp) && !slices.Contains(patch.Schemas, brokenPatchOpSchema) {
		return ErrInvalidValue(fmt.Sprintf("invalid schema, expected %s", SchemaPatchOp))
	}

	if len(patch.Operations) == 0 {
		return ErrInvalidValue("at least one operation is required")
	}

	for i, op := range patch.Operations {
		if err := validatePatchOperation(op); err != nil {
			return fmt.Errorf("operation %d: %w", i, err)
		}
	}

	return nil
}

func validatePatchOperation(op PatchOperation) error {
	opLower := strings.ToLower(op.Op)
	if opLower != "add" && opLower != "remove" && opLower != "replace" {
		return ErrInvalidValue(fmt.Sprintf("invalid op: %s", op.Op))
	}

	if opLower == "remove" && op.Path == "" {
		return ErrInvalidPatch("path is required for remove operation")
	}

	if (opLower == "add" || opLower == "replace") && op.Value == nil && op.Path == "" {
		return ErrInvalidValue(fmt.Sprintf("value is required for %s operation", op.Op))
	}

	return nil
}

// ValidateQueryParams clamps and validates SCIM list query parameters in
// place.
func ValidateQueryParams(params *QueryParams) error {
	if params.StartIndex < 1 {
		params.StartIndex = 1
	}

	if params.Count < 1 {
		params.Count = 100
	}
	if params.Count > 1000 {
		params.Count = 1000
	}

	if params.SortOrder != "" {
		sortOrder := strings.ToLower(params.SortOrder)
		if sortOrder != "ascending" && sortOrder != "descending" {
			return ErrInvalidValue(fmt.Sprintf("invalid sortOrder: %s", params.SortOrder))
		}
		params.SortOrder = sortOrder
	}

	return nil
}
