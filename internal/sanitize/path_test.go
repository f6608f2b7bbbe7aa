package sanitize

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateRelativePathAccepts(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{name: "simple file", path: "docs/big.md", want: "docs/big.md"},
		{name: "nested", path: "a/b/c.md", want: "a/b/c.md"},
		{name: "redundant separators", path: "a//b/./c.md", want: "a/b/c.md"},
		{name: "dotfile", path: ".knowledged/rules.md", want: ".knowledged/rules.md"},
		{name: "percent without encoding", path: "a%20b.md", want: "a%20b.md"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateRelativePath(tt.path)
			if err != nil {
				t.Fatalf("ValidateRelativePath(%q) unexpected error: %v", tt.path, err)
			}
			if got != tt.want {
				t.Errorf("ValidateRelativePath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestValidateRelativePathRejectsTraversal(t *testing.T) {
	// Traversal corpus: literal, encoded once, encoded twice, overlong UTF-8,
	// null bytes, backslash variants. All must be rejected, every time.
	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{name: "literal traversal", path: "../../etc/passwd", wantErr: ErrPathTraversal},
		{name: "traversal in middle", path: "docs/../../etc/passwd", wantErr: ErrPathTraversal},
		{name: "trailing traversal", path: "docs/..", wantErr: ErrPathTraversal},
		{name: "url encoded", path: "%2e%2e%2fetc%2fpasswd", wantErr: ErrPathTraversal},
		{name: "url encoded upper", path: "%2E%2E/etc/passwd", wantErr: ErrPathTraversal},
		{name: "double encoded", path: "%252e%252e%252fetc", wantErr: ErrPathTraversal},
		{name: "mixed encoding", path: "..%2f..%2fetc/passwd", wantErr: ErrPathTraversal},
		{name: "overlong utf8 encoded", path: "..%c0%af..%c0%afetc", wantErr: ErrInvalidEncoding},
		{name: "overlong utf8 raw", path: "docs\xc0\xae\xc0\xae/x", wantErr: ErrInvalidEncoding},
		{name: "null byte", path: "docs/a.md\x00.png", wantErr: ErrNullByte},
		{name: "encoded null byte", path: "docs/a.md%00.png", wantErr: ErrNullByte},
		{name: "backslash traversal", path: "..\\..\\windows", wantErr: ErrPathTraversal},
		{name: "absolute path", path: "/etc/passwd", wantErr: ErrAbsolutePath},
		{name: "windows drive", path: "c:\\windows", wantErr: ErrAbsolutePath},
		{name: "empty", path: "", wantErr: ErrEmptyPath},
		{name: "bare dot", path: ".", wantErr: ErrPathTraversal},
		{name: "too long", path: strings.Repeat("a/", 600) + "x.md", wantErr: ErrPathTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateRelativePath(tt.path)
			if err == nil {
				t.Fatalf("ValidateRelativePath(%q) expected error, got nil", tt.path)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateRelativePath(%q) error = %v, want %v", tt.path, err, tt.wantErr)
			}
		})
	}
}

func TestResolveUnderRoot(t *testing.T) {
	root := t.TempDir()

	resolved, err := ResolveUnderRoot(root, "docs/big.md")
	if err != nil {
		t.Fatalf("ResolveUnderRoot() unexpected error: %v", err)
	}
	if !strings.HasPrefix(resolved, root) {
		t.Errorf("resolved path %q not under root %q", resolved, root)
	}

	if _, err := ResolveUnderRoot(root, "../outside.md"); !errors.Is(err, ErrPathTraversal) {
		t.Errorf("expected ErrPathTraversal, got %v", err)
	}

	if _, err := ResolveUnderRoot("relative/root", "a.md"); err == nil {
		t.Error("expected error for relative root")
	}
}
