package scim

import (
	"context"
	"reflect"
	"testing"
)

func TestAdaptPatchCorrectsSchemaTypo(t *testing.T) {
	body := PatchOp{Schemas: []string{brokenPatchOpSchema}}
	out, _ := AdaptPatch(context.Background(), body, nil)
	if len(out.Schemas) != 1 || out.Schemas[0] != SchemaPatchOp {
		t.Errorf("schema not corrected: %+v", out.Schemas)
	}
}

func TestAdaptPatchCorrectsSchemaTypoAsSubstring(t *testing.T) {
	body := PatchOp{Schemas: []string{"urn:ietf:params:scim:api:" + brokenPatchOpFragment + ":extra"}}
	out, _ := AdaptPatch(context.Background(), body, nil)
	want := "urn:ietf:params:scim:api:" + fixedPatchOpFragment + ":extra"
	if len(out.Schemas) != 1 || out.Schemas[0] != want {
		t.Errorf("schema fragment not corrected: %+v, want %q", out.Schemas, want)
	}
}

func TestAdaptPatchSchemaCorrectionIdempotent(t *testing.T) {
	body := PatchOp{Schemas: []string{SchemaPatchOp}}
	out, _ := AdaptPatch(context.Background(), body, nil)
	if !reflect.DeepEqual(out.Schemas, []string{SchemaPatchOp}) {
		t.Errorf("correction should be a no-op on an already-correct schema: %+v", out.Schemas)
	}
}

func TestAdaptPatchNormalizesOpAndBoolString(t *testing.T) {
	body := PatchOp{
		Operations: []PatchOperation{
			{Op: "REPLACE", Path: "active", Value: "true"},
		},
	}
	out, outcomes := AdaptPatch(context.Background(), body, nil)
	if outcomes != nil {
		t.Fatalf("expected no rewrite outcomes for a non-filtered op, got %+v", outcomes)
	}
	if len(out.Operations) != 1 {
		t.Fatalf("expected 1 passthrough operation, got %d", len(out.Operations))
	}
	got := out.Operations[0]
	if got.Op != "replace" {
		t.Errorf("op not lowercased: %q", got.Op)
	}
	if got.Value != true {
		t.Errorf("string \"true\" not coerced to bool: %#v", got.Value)
	}
}

func TestAdaptPatchPassthroughUnfilteredAdd(t *testing.T) {
	body := PatchOp{
		Operations: []PatchOperation{
			{Op: "add", Path: "displayName", Value: "Barbara"},
		},
	}
	out, outcomes := AdaptPatch(context.Background(), body, nil)
	if outcomes != nil {
		t.Fatalf("non-bracketed add should never trigger the rewrite path, got %+v", outcomes)
	}
	if len(out.Operations) != 1 || out.Operations[0].Path != "displayName" {
		t.Errorf("unexpected passthrough operations: %+v", out.Operations)
	}
}

func TestAdaptPatchRewritesFilteredAddExistingElement(t *testing.T) {
	current := Resource{
		"id": "1",
		"members": []any{
			map[string]any{"value": "u1", "display": "Alice"},
			map[string]any{"value": "u2", "display": "Bob"},
		},
	}
	fetch := func(ctx context.Context) (Resource, error) { return current, nil }

	body := PatchOp{
		Operations: []PatchOperation{
			{Op: "add", Path: `members[value eq "u1"].display`, Value: "Alice Jensen"},
		},
	}
	out, outcomes := AdaptPatch(context.Background(), body, fetch)

	if len(outcomes) != 1 || !outcomes[0].Applied {
		t.Fatalf("expected one applied rewrite outcome, got %+v", outcomes)
	}
	if len(out.Operations) != 1 {
		t.Fatalf("expected exactly one replace operation, got %d", len(out.Operations))
	}
	replace := out.Operations[0]
	if replace.Op != "replace" || replace.Path != "members" {
		t.Fatalf("expected replace on members, got %+v", replace)
	}
	members, ok := replace.Value.([]any)
	if !ok || len(members) != 2 {
		t.Fatalf("expected the rewritten members slice unchanged in length, got %#v", replace.Value)
	}
	first := members[0].(map[string]any)
	if first["display"] != "Alice Jensen" {
		t.Errorf("existing element sub-attribute not applied: %+v", first)
	}
}

func TestAdaptPatchRewritesFilteredAddNewElement(t *testing.T) {
	current := Resource{"id": "1", "members": []any{}}
	fetch := func(ctx context.Context) (Resource, error) { return current, nil }

	body := PatchOp{
		Operations: []PatchOperation{
			{Op: "add", Path: `members[value eq "u9"].display`, Value: "New Member"},
		},
	}
	out, outcomes := AdaptPatch(context.Background(), body, fetch)

	if len(outcomes) != 1 || !outcomes[0].Applied {
		t.Fatalf("expected applied outcome, got %+v", outcomes)
	}
	members := out.Operations[0].Value.([]any)
	if len(members) != 1 {
		t.Fatalf("expected one newly-appended element, got %d", len(members))
	}
	elem := members[0].(map[string]any)
	if elem["value"] != "u9" || elem["display"] != "New Member" {
		t.Errorf("new element built incorrectly: %+v", elem)
	}
}

func TestAdaptPatchDropsGroupOnFetchFailure(t *testing.T) {
	fetch := func(ctx context.Context) (Resource, error) {
		return nil, errTestFetch
	}
	body := PatchOp{
		Operations: []PatchOperation{
			{Op: "add", Path: `members[value eq "u1"].display`, Value: "X"},
		},
	}
	out, outcomes := AdaptPatch(context.Background(), body, fetch)
	if len(outcomes) != 1 || outcomes[0].Applied {
		t.Fatalf("expected a dropped outcome on fetch failure, got %+v", outcomes)
	}
	if len(out.Operations) != 0 {
		t.Errorf("expected no operations emitted for a dropped group, got %+v", out.Operations)
	}
}

func TestAdaptPatchFetchCalledAtMostOnce(t *testing.T) {
	calls := 0
	current := Resource{"id": "1", "members": []any{}}
	fetch := func(ctx context.Context) (Resource, error) {
		calls++
		return current, nil
	}
	body := PatchOp{
		Operations: []PatchOperation{
			{Op: "add", Path: `members[value eq "u1"].display`, Value: "A"},
			{Op: "add", Path: `members[value eq "u2"].display`, Value: "B"},
		},
	}
	_, _ = AdaptPatch(context.Background(), body, fetch)
	if calls != 1 {
		t.Errorf("expected fetch called exactly once for a single basePath group, got %d", calls)
	}
}

func TestAdaptPatchUnparseablePredicateDropsGroup(t *testing.T) {
	current := Resource{"id": "1", "members": []any{}}
	fetch := func(ctx context.Context) (Resource, error) { return current, nil }
	body := PatchOp{
		Operations: []PatchOperation{
			{Op: "add", Path: `members[value pr].display`, Value: "X"},
		},
	}
	out, outcomes := AdaptPatch(context.Background(), body, fetch)
	if len(outcomes) != 1 || outcomes[0].Applied {
		t.Fatalf("expected dropped outcome for a non-eq-literal predicate, got %+v", outcomes)
	}
	if len(out.Operations) != 0 {
		t.Errorf("expected no operations for a dropped group, got %+v", out.Operations)
	}
}

type fetchError struct{ msg string }

func (e *fetchError) Error() string { return e.msg }

var errTestFetch = &fetchError{msg: "fetch failed"}
