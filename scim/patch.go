package scim

import (
	"context"
	"strconv"
	"strings"
)

// ResourceFetcher fetches the current state of the resource a PATCH request
// targets, for the read-modify-write rewrite of filtered add operations.
type ResourceFetcher func(ctx context.Context) (Resource, error)

// RewriteOutcome reports, per filtered-add group, whether the rewrite
// produced a replace operation or had to be dropped — feeds the
// scim_proxy.patch.filtered_rewrite counter.
type RewriteOutcome struct {
	BasePath string
	Applied  bool
}

// AdaptPatch rewrites a client PATCH body into one the upstream accepts,
// applying the three transformations of §4.6: schema correction, operation
// normalization, and read-modify-write rewriting of filtered add operations.
// fetch is called at most once, lazily, the first time a filtered-add group
// needs the current resource.
func AdaptPatch(ctx context.Context, body PatchOp, fetch ResourceFetcher) (PatchOp, []RewriteOutcome) {
	out := PatchOp{Schemas: correctSchemas(body.Schemas)}

	var passthrough []PatchOperation
	var filteredOrder []string
	filteredGroups := map[string][]PatchOperation{}

	for _, op := range body.Operations {
		norm := normalizeOperation(op)
		if strings.EqualFold(norm.Op, "add") && strings.Contains(norm.Path, "[") {
			basePath, _, _, ok := splitFilteredPath(norm.Path)
			if !ok {
				basePath = norm.Path // unparseable path still keys its own (dropped) group
			}
			if _, seen := filteredGroups[basePath]; !seen {
				filteredOrder = append(filteredOrder, basePath)
			}
			filteredGroups[basePath] = append(filteredGroups[basePath], norm)
			continue
		}
		passthrough = append(passthrough, norm)
	}

	out.Operations = append(out.Operations, passthrough...)

	if len(filteredOrder) == 0 {
		return out, nil
	}

	var current Resource
	var fetchErr error
	fetched := false
	fetchOnce := func() (Resource, error) {
		if !fetched {
			current, fetchErr = fetch(ctx)
			fetched = true
		}
		return current, fetchErr
	}

	var outcomes []RewriteOutcome
	for _, basePath := range filteredOrder {
		rewritten, ok := rewriteFilteredGroup(basePath, filteredGroups[basePath], fetchOnce)
		outcomes = append(outcomes, RewriteOutcome{BasePath: basePath, Applied: ok})
		if ok {
			out.Operations = append(out.Operations, rewritten)
		}
	}

	return out, outcomes
}

// correctSchemas fixes the known upstream typo in the PatchOp schema URN
// (a stray space before "2.0") wherever it appears as a substring of a
// schema URN, not just on an exact match. Other schema URNs pass through
// unchanged. Applying this twice is a no-op, since the broken substring is
// gone after the first pass.
func correctSchemas(schemas []string) []string {
	corrected := make([]string, len(schemas))
	for i, s := range schemas {
		corrected[i] = strings.Replace(s, brokenPatchOpFragment, fixedPatchOpFragment, -1)
	}
	return corrected
}

// normalizeOperation lower-cases op and coerces a string "true"/"false"
// value to its boolean equivalent; everything else passes through.
func normalizeOperation(op PatchOperation) PatchOperation {
	norm := PatchOperation{
		Op:    strings.ToLower(op.Op),
		Path:  op.Path,
		Value: op.Value,
	}
	if s, ok := op.Value.(string); ok {
		switch strings.ToLower(s) {
		case "true":
			norm.Value = true
		case "false":
			norm.Value = false
		}
	}
	return norm
}

// splitFilteredPath splits a path like `members[value eq "x"].display` into
// its base path ("members"), predicate text (`value eq "x"`), and optional
// sub-attribute ("display"). ok is false if the path has no "[...]".
func splitFilteredPath(path string) (basePath, predicate, subAttr string, ok bool) {
	open := strings.Index(path, "[")
	if open < 0 {
		return "", "", "", false
	}
	closeIdx := strings.Index(path[open:], "]")
	if closeIdx < 0 {
		return "", "", "", false
	}
	closeIdx += open

	basePath = path[:open]
	predicate = path[open+1 : closeIdx]

	rest := path[closeIdx+1:]
	subAttr = strings.TrimPrefix(rest, ".")
	return basePath, predicate, subAttr, true
}

// fieldEqLiteral is the one predicate shape this adapter's rewrite supports:
// `<field> eq <literal>`. Richer predicates are out of rewrite scope per
// §4.6 and cause the whole group to be dropped.
func fieldEqLiteral(predicate string) (field, literal string, ok bool) {
	fields := strings.Fields(predicate)
	if len(fields) < 3 || !strings.EqualFold(fields[1], "eq") {
		return "", "", false
	}
	field = fields[0]
	literal = strings.Join(fields[2:], " ")
	if strings.HasPrefix(literal, `"`) {
		// A quoted literal must be one string: `"a" and x eq "b"` is rejected.
		if len(literal) < 2 || !strings.HasSuffix(literal, `"`) || strings.Contains(literal[1:len(literal)-1], `"`) {
			return "", "", false
		}
		literal = literal[1 : len(literal)-1]
	} else if len(fields) > 3 {
		return "", "", false
	}
	return field, literal, true
}

// rewriteFilteredGroup performs the read-modify-write rewrite for all
// filtered add operations sharing basePath, per §4.6c. ok is false if the
// current resource cannot be fetched or any op in the group fails to parse —
// the group is then dropped with no operation emitted.
func rewriteFilteredGroup(basePath string, ops []PatchOperation, fetch ResourceFetcher) (PatchOperation, bool) {
	current, err := fetch()
	if err != nil {
		return PatchOperation{}, false
	}

	existing, _ := resolvePath(current, basePath)
	seq, _ := existing.([]any)
	working := make([]any, len(seq))
	copy(working, seq)

	for _, op := range ops {
		_, predicate, subAttr, ok := splitFilteredPath(op.Path)
		if !ok {
			return PatchOperation{}, false
		}
		field, literal, ok := fieldEqLiteral(predicate)
		if !ok {
			return PatchOperation{}, false
		}

		idx := findByFieldLiteral(working, field, literal)
		if idx >= 0 {
			applyToExisting(working[idx], subAttr, op.Value)
			continue
		}

		elem := map[string]any{field: literal}
		applyToNew(elem, subAttr, op.Value)
		working = append(working, elem)
	}

	return PatchOperation{Op: "replace", Path: basePath, Value: working}, true
}

func findByFieldLiteral(elements []any, field, literal string) int {
	for i, e := range elements {
		m, ok := e.(map[string]any)
		if !ok {
			continue
		}
		v, ok := resolveKey(m, field)
		if !ok {
			continue
		}
		if valueEqualsLiteral(v, literal) {
			return i
		}
	}
	return -1
}

func valueEqualsLiteral(v any, literal string) bool {
	switch val := v.(type) {
	case string:
		return strings.EqualFold(val, literal)
	case bool:
		return strconv.FormatBool(val) == strings.ToLower(literal)
	default:
		if n, ok := toFloat64(v); ok {
			lit, err := strconv.ParseFloat(literal, 64)
			return err == nil && n == lit
		}
		return false
	}
}

// applyToExisting applies an op's value onto an already-matched element per
// step 3d: set the sub-attribute if given, else merge a mapping value, else
// leave the element as-is.
func applyToExisting(elem any, subAttr string, value any) {
	m, ok := elem.(map[string]any)
	if !ok {
		return
	}
	if subAttr != "" {
		m[subAttr] = value
		return
	}
	if asMap, ok := value.(map[string]any); ok {
		for k, v := range asMap {
			m[k] = v
		}
	}
}

// applyToNew applies an op's value onto a freshly constructed element per
// step 3e: set the sub-attribute if given, else merge a mapping value, else
// fall back to a literal "value" key.
func applyToNew(elem map[string]any, subAttr string, value any) {
	if subAttr != "" {
		elem[subAttr] = value
		return
	}
	if asMap, ok := value.(map[string]any); ok {
		for k, v := range asMap {
			elem[k] = v
		}
		return
	}
	elem["value"] = value
}
