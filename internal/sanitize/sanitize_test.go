package sanitize

import (
	"strings"
	"testing"
)

func TestIdentifier(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "simple lowercase", input: "myproject", want: "myproject"},
		{name: "mixed case", input: "MyProject", want: "myproject"},
		{name: "repo path", input: "github.com/user", want: "github_com_user"},
		{name: "spaces and punctuation", input: "My Project!", want: "my_project"},
		{name: "empty", input: "", want: "default"},
		{name: "only invalid chars", input: "!!!", want: "default"},
		{name: "collapses underscores", input: "a--_--b", want: "a_b"},
		{name: "trims underscores", input: "_abc_", want: "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Identifier(tt.input); got != tt.want {
				t.Errorf("Identifier(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestIdentifierTruncation(t *testing.T) {
	long := strings.Repeat("a", 100)
	got := Identifier(long)

	if len(got) > MaxIdentifierLength {
		t.Errorf("Identifier length %d exceeds max %d", len(got), MaxIdentifierLength)
	}
	// Distinct long inputs must stay distinct after truncation.
	other := Identifier(strings.Repeat("a", 99) + "b")
	if got == other {
		t.Error("truncation collapsed distinct identifiers")
	}
}

func TestCollectionName(t *testing.T) {
	got := CollectionName("github.com/acme/webshop", "knowledge")
	want := "github_com_acme_webshop_knowledge"
	if got != want {
		t.Errorf("CollectionName() = %q, want %q", got, want)
	}

	long := CollectionName(strings.Repeat("x", 80), "reference")
	if len(long) > MaxIdentifierLength {
		t.Errorf("CollectionName length %d exceeds max %d", len(long), MaxIdentifierLength)
	}
}

func TestCollectionNameKindsDiffer(t *testing.T) {
	knowledge := CollectionName("webshop", "knowledge")
	reference := CollectionName("webshop", "reference")
	if knowledge == reference {
		t.Error("knowledge and reference collections must be distinct")
	}
}
