package scim

import (
	"sort"
	"strings"
)

// coreAttributes are always preserved by Project, regardless of the include
// or exclude set: output keys are (include ∪ {id, schemas}) ∩ keys(doc).
// meta is not in this set and is dropped like any other attribute when an
// include list is given without naming it.
var coreAttributes = map[string]bool{
	"id":      true,
	"schemas": true,
}

// Project applies attribute inclusion/exclusion to a single resource at the
// top level only; sub-attribute projection (e.g. "name.familyName") is not
// performed, per §4.5. Projection never mutates doc: with no include or
// exclude list it returns doc itself, otherwise a new map.
func Project(doc Resource, include, exclude []string) Resource {
	if len(include) == 0 && len(exclude) == 0 {
		return doc
	}

	includeSet := toLowerSet(include)
	excludeSet := toLowerSet(exclude)

	out := make(Resource, len(doc))
	for key, value := range doc {
		lowerKey := strings.ToLower(key)

		if coreAttributes[lowerKey] {
			out[key] = value
			continue
		}
		if len(includeSet) > 0 {
			if includeSet[lowerKey] {
				out[key] = value
			}
			continue
		}
		if excludeSet[lowerKey] {
			continue
		}
		out[key] = value
	}
	return out
}

// ProjectAll applies Project to a slice of resources.
func ProjectAll(docs []Resource, include, exclude []string) []Resource {
	if len(include) == 0 && len(exclude) == 0 {
		return docs
	}
	out := make([]Resource, len(docs))
	for i, doc := range docs {
		out[i] = Project(doc, include, exclude)
	}
	return out
}

func toLowerSet(items []string) map[string]bool {
	if len(items) == 0 {
		return nil
	}
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[strings.ToLower(item)] = true
	}
	return set
}

// SortResources stably sorts resources by the value at sortBy (a dotted
// attribute path), ascending unless sortOrder is "descending". This
// implements the sort-support upgrade path (§9 design notes): sorting is
// scoped to the working set already materialized by the backfill
// controller, the same truth boundary as filtering.
func SortResources(resources []Resource, sortBy, sortOrder string) []Resource {
	if sortBy == "" || len(resources) == 0 {
		return resources
	}

	sorted := make([]Resource, len(resources))
	copy(sorted, resources)

	ascending := strings.ToLower(sortOrder) != "descending"

	type resourceValue struct {
		resource Resource
		value    any
	}
	pairs := make([]resourceValue, len(sorted))
	for i := range sorted {
		val, _ := resolvePath(sorted[i], sortBy)
		pairs[i] = resourceValue{resource: sorted[i], value: val}
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		cmp := compareForSort(pairs[i].value, pairs[j].value)
		if ascending {
			return cmp < 0
		}
		return cmp > 0
	})

	for i := range pairs {
		sorted[i] = pairs[i].resource
	}
	return sorted
}

// compareForSort returns -1 if a < b, 0 if equal, 1 if a > b. nil sorts
// first. Values of mismatched or unsortable type compare equal.
func compareForSort(a, b any) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}

	if aStr, ok := a.(string); ok {
		if bStr, ok := b.(string); ok {
			switch {
			case aStr < bStr:
				return -1
			case aStr > bStr:
				return 1
			default:
				return 0
			}
		}
	}

	if aNum, ok := toFloat64(a); ok {
		if bNum, ok := toFloat64(b); ok {
			switch {
			case aNum < bNum:
				return -1
			case aNum > bNum:
				return 1
			default:
				return 0
			}
		}
	}

	if aBool, ok := a.(bool); ok {
		if bBool, ok := b.(bool); ok {
			switch {
			case !aBool && bBool:
				return -1
			case aBool && !bBool:
				return 1
			default:
				return 0
			}
		}
	}

	return 0
}

// ApplyPagination slices resources per SCIM's 1-based startIndex/count
// semantics, returning the page, the (clamped) startIndex, and the page
// length.
func ApplyPagination(resources []Resource, startIndex, count int) ([]Resource, int, int) {
	total := len(resources)

	if startIndex < 1 {
		startIndex = 1
	}

	start := startIndex - 1
	if start >= total {
		return []Resource{}, startIndex, 0
	}

	end := start + count
	if end > total {
		end = total
	}

	paged := resources[start:end]
	return paged, startIndex, len(paged)
}

// FilterResources applies a parsed filter tree to resources, returning only
// matches. A nil tree matches everything.
func FilterResources(resources []Resource, filter *Node) []Resource {
	if filter == nil {
		return resources
	}
	filtered := make([]Resource, 0, len(resources))
	for _, r := range resources {
		if Matches(filter, r) {
			filtered = append(filtered, r)
		}
	}
	return filtered
}
