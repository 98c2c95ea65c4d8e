package scim

import "testing"

func TestValidatePatchOpNil(t *testing.T) {
	if err := ValidatePatchOp(nil); err == nil {
		t.Error("expected error for nil patch")
	}
}

func TestValidatePatchOpSchema(t *testing.T) {
	tests := []struct {
		name    string
		schemas []string
		wantErr bool
	}{
		{"correct schema", []string{SchemaPatchOp}, false},
		{"known broken schema accepted", []string{brokenPatchOpSchema}, false},
		{"unrelated schema rejected", []string{"urn:ietf:params:scim:schemas:core:2.0:User"}, true},
		{"no schema rejected", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			patch := &PatchOp{
				Schemas:    tt.schemas,
				Operations: []PatchOperation{{Op: "replace", Path: "active", Value: true}},
			}
			err := ValidatePatchOp(patch)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePatchOp() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidatePatchOpRequiresOperations(t *testing.T) {
	patch := &PatchOp{Schemas: []string{SchemaPatchOp}}
	if err := ValidatePatchOp(patch); err == nil {
		t.Error("expected error when Operations is empty")
	}
}

func TestValidatePatchOperationShapes(t *testing.T) {
	tests := []struct {
		name    string
		op      PatchOperation
		wantErr bool
	}{
		{"valid add", PatchOperation{Op: "add", Path: "displayName", Value: "x"}, false},
		{"valid replace uppercase", PatchOperation{Op: "REPLACE", Path: "active", Value: true}, false},
		{"valid remove with path", PatchOperation{Op: "remove", Path: "displayName"}, false},
		{"remove without path", PatchOperation{Op: "remove"}, true},
		{"unknown op", PatchOperation{Op: "patch", Path: "x", Value: 1}, true},
		{"add without value or path", PatchOperation{Op: "add"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validatePatchOperation(tt.op)
			if (err != nil) != tt.wantErr {
				t.Errorf("validatePatchOperation() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateQueryParamsClamps(t *testing.T) {
	params := &QueryParams{StartIndex: -5, Count: 0}
	if err := ValidateQueryParams(params); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.StartIndex != 1 {
		t.Errorf("StartIndex = %d, want 1", params.StartIndex)
	}
	if params.Count != 100 {
		t.Errorf("Count = %d, want 100", params.Count)
	}
}

func TestValidateQueryParamsCountCeiling(t *testing.T) {
	params := &QueryParams{StartIndex: 1, Count: 5000}
	if err := ValidateQueryParams(params); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.Count != 1000 {
		t.Errorf("Count = %d, want clamped to 1000", params.Count)
	}
}

func TestValidateQueryParamsSortOrder(t *testing.T) {
	params := &QueryParams{StartIndex: 1, Count: 10, SortOrder: "DESCENDING"}
	if err := ValidateQueryParams(params); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.SortOrder != "descending" {
		t.Errorf("SortOrder = %q, want lowercased descending", params.SortOrder)
	}

	params2 := &QueryParams{StartIndex: 1, Count: 10, SortOrder: "sideways"}
	if err := ValidateQueryParams(params2); err == nil {
		t.Error("expected error for invalid sortOrder")
	}
}
