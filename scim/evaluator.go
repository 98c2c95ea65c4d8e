package scim

import (
	"strings"
)

// Matches applies an expression tree to a resource document, returning
// whether it matches. Matches never panics on an unexpected document shape:
// any missing key or non-mapping intermediate resolves to absent, which
// every operator except pr treats as non-matching. A nil tree (no filter)
// matches everything.
func Matches(n *Node, doc Resource) bool {
	if n == nil {
		return true
	}
	switch n.Kind {
	case NodeAttr:
		return matchAttr(n, doc)
	case NodeLogical:
		return matchLogical(n, doc)
	case NodeGroup:
		return Matches(n.Inner, doc)
	case NodeComplex:
		return matchComplex(n, doc)
	default:
		return false
	}
}

func matchLogical(n *Node, doc Resource) bool {
	switch n.LogicalOp {
	case "and":
		return Matches(n.Left, doc) && Matches(n.Right, doc)
	case "or":
		return Matches(n.Left, doc) || Matches(n.Right, doc)
	case "not":
		return !Matches(n.Left, doc)
	default:
		return false
	}
}

func matchAttr(n *Node, doc Resource) bool {
	value, ok := resolvePath(doc, n.Path)

	if n.Op == "pr" {
		return ok && value != nil
	}
	if !ok || value == nil {
		return false
	}

	switch n.Op {
	case "eq":
		return compareEqual(value, n.Value)
	case "ne":
		return !compareEqual(value, n.Value)
	case "co":
		return stringOp(value, n.Value, strings.Contains)
	case "sw":
		return stringOp(value, n.Value, strings.HasPrefix)
	case "ew":
		return stringOp(value, n.Value, strings.HasSuffix)
	case "gt":
		return compareNumeric(value, n.Value, func(a, b float64) bool { return a > b })
	case "ge":
		return compareNumeric(value, n.Value, func(a, b float64) bool { return a >= b })
	case "lt":
		return compareNumeric(value, n.Value, func(a, b float64) bool { return a < b })
	case "le":
		return compareNumeric(value, n.Value, func(a, b float64) bool { return a <= b })
	default:
		return false
	}
}

// matchComplex resolves path to a sequence and re-enters the evaluator
// against each element as its own document, with predicate. On the first
// matching element, if subAttr is set the result is whether that
// sub-attribute is present on the element; otherwise the element itself
// matching is sufficient.
func matchComplex(n *Node, doc Resource) bool {
	value, ok := resolvePath(doc, n.Path)
	if !ok {
		return false
	}
	seq, ok := value.([]any)
	if !ok {
		return false
	}

	for _, elem := range seq {
		elemDoc, ok := elem.(map[string]any)
		if !ok {
			continue
		}
		if !Matches(n.Predicate, elemDoc) {
			continue
		}
		if n.SubAttr == "" {
			return true
		}
		sub, ok := resolveKey(elemDoc, n.SubAttr)
		return ok && sub != nil
	}
	return false
}

// resolvePath splits path on "." and walks nested mappings case-insensitively.
// It returns (value, true) on success, (nil, false) if any segment is absent
// or an intermediate value is not a mapping.
func resolvePath(doc Resource, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var current any = map[string]any(doc)

	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		val, ok := resolveKey(m, part)
		if !ok {
			return nil, false
		}
		current = val
	}
	return current, true
}

func resolveKey(m map[string]any, key string) (any, bool) {
	if val, ok := m[key]; ok {
		return val, true
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

func stringOp(a, b any, op func(s, substr string) bool) bool {
	aStr, aOK := a.(string)
	bStr, bOK := b.(string)
	if !aOK || !bOK {
		return false
	}
	return op(strings.ToLower(aStr), strings.ToLower(bStr))
}

// compareEqual implements eq per §4.3: strings case-insensitively, other
// scalars by value, everything else by deep equality.
func compareEqual(a, b any) bool {
	aStr, aIsStr := a.(string)
	bStr, bIsStr := b.(string)
	if aIsStr && bIsStr {
		return strings.EqualFold(aStr, bStr)
	}

	aNum, aIsNum := toFloat64(a)
	bNum, bIsNum := toFloat64(b)
	if aIsNum && bIsNum {
		return aNum == bNum
	}

	aBool, aIsBool := a.(bool)
	bBool, bIsBool := b.(bool)
	if aIsBool && bIsBool {
		return aBool == bBool
	}

	return deepEqual(a, b)
}

func deepEqual(a, b any) bool {
	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			bvv, ok := bv[k]
			if !ok || !deepEqual(v, bvv) {
				return false
			}
		}
		return true
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !deepEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

func compareNumeric(a, b any, op func(x, y float64) bool) bool {
	aNum, aOK := toFloat64(a)
	bNum, bOK := toFloat64(b)
	if !aOK || !bOK {
		return false
	}
	return op(aNum, bNum)
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
