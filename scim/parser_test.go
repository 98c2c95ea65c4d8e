package scim

import "testing"

func TestParseFilterEmpty(t *testing.T) {
	tree, err := ParseFilter("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tree != nil {
		t.Fatalf("expected nil tree for empty filter, got %+v", tree)
	}
	if !Matches(tree, Resource{"anything": "goes"}) {
		t.Error("nil tree should match every document")
	}
}

func TestParseFilterShapes(t *testing.T) {
	tests := []struct {
		name    string
		filter  string
		wantErr bool
	}{
		{"simple eq", `userName eq "bjensen"`, false},
		{"present", `emails pr`, false},
		{"and", `userName eq "bjensen" and active eq true`, false},
		{"or", `userName eq "bjensen" or userName eq "jsmith"`, false},
		{"not binds tighter than and", `not emails pr and active eq true`, false},
		{"grouped not", `not (emails pr and active eq true)`, false},
		{"complex attribute", `emails[type eq "work" and value co "@example.com"]`, false},
		{"complex with sub-attribute", `emails[type eq "work"].value`, false},
		{"nested groups", `(userName eq "bjensen" or userName eq "jsmith") and active eq true`, false},
		{"missing operator", `userName "bjensen"`, true},
		{"unknown operator", `userName zz "bjensen"`, true},
		{"unbalanced paren", `(userName eq "bjensen"`, true},
		{"trailing tokens", `userName eq "bjensen" )`, true},
		{"empty complex predicate", `emails[]`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFilter(tt.filter)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFilter(%q) error = %v, wantErr %v", tt.filter, err, tt.wantErr)
			}
		})
	}
}

func TestParsePrecedenceAndOverOr(t *testing.T) {
	tree, err := ParseFilter(`a eq "1" or b eq "2" and c eq "3"`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tree.Kind != NodeLogical || tree.LogicalOp != "or" {
		t.Fatalf("expected top-level or, got %+v", tree)
	}
	right := tree.Right
	if right.Kind != NodeLogical || right.LogicalOp != "and" {
		t.Fatalf("expected 'and' to bind tighter than 'or' on the right side, got %+v", right)
	}
}

func TestParseNotBindsToPrimaryOnly(t *testing.T) {
	tree, err := ParseFilter(`not active eq true and userName pr`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tree.Kind != NodeLogical || tree.LogicalOp != "and" {
		t.Fatalf("expected top-level and (not binds only to the primary), got %+v", tree)
	}
	left := tree.Left
	if left.Kind != NodeLogical || left.LogicalOp != "not" {
		t.Fatalf("expected left side to be 'not', got %+v", left)
	}
}

func TestNodeCount(t *testing.T) {
	tests := []struct {
		name   string
		filter string
		want   int
	}{
		{"single attr", `userName pr`, 1},
		{"and of two", `a eq "1" and b eq "2"`, 3},
		{"group wraps one", `(userName pr)`, 2},
		{"complex with predicate", `emails[type eq "work"]`, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree, err := ParseFilter(tt.filter)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := NodeCount(tree); got != tt.want {
				t.Errorf("NodeCount(%q) = %d, want %d", tt.filter, got, tt.want)
			}
		})
	}
}
