package sanitize

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Path validation errors.
var (
	// ErrPathTraversal indicates a path contains directory traversal sequences.
	ErrPathTraversal = errors.New("path contains directory traversal")

	// ErrAbsolutePath indicates an absolute path was provided where relative was expected.
	ErrAbsolutePath = errors.New("absolute path not allowed")

	// ErrNullByte indicates a path contains an embedded null byte.
	ErrNullByte = errors.New("path contains null byte")

	// ErrInvalidEncoding indicates a path contains invalid or overlong UTF-8.
	ErrInvalidEncoding = errors.New("path contains invalid encoding")

	// ErrEmptyPath indicates an empty path was provided.
	ErrEmptyPath = errors.New("path cannot be empty")

	// ErrPathTooLong indicates a path exceeds the maximum allowed length.
	ErrPathTooLong = errors.New("path too long")
)

// MaxPathLength bounds externally supplied paths.
const MaxPathLength = 1024

// overlongSequences are byte sequences that decode to '.' or '/' via overlong
// UTF-8 encodings. Well-formed UTF-8 never uses them; their only purpose in a
// path is to smuggle traversal past naive string checks.
var overlongSequences = []string{
	"\xc0\xae", // overlong '.'
	"\xc0\xaf", // overlong '/'
	"\xe0\x80\xae",
	"\xe0\x80\xaf",
	"\xc1\x9c", // overlong '\'
}

// ValidateRelativePath checks an externally supplied document path.
//
// The path must be relative, free of traversal in any encoding the boundary
// might see (literal "..", single- and double-URL-encoded, overlong UTF-8,
// null bytes), and after cleaning must stay strictly below the root.
//
// Returns the cleaned, slash-separated relative path or an error.
func ValidateRelativePath(path string) (string, error) {
	if path == "" {
		return "", ErrEmptyPath
	}
	if len(path) > MaxPathLength {
		return "", fmt.Errorf("%w: %d bytes (max %d)", ErrPathTooLong, len(path), MaxPathLength)
	}
	if strings.ContainsRune(path, 0) {
		return "", ErrNullByte
	}
	if !utf8.ValidString(path) {
		return "", fmt.Errorf("%w: not valid UTF-8", ErrInvalidEncoding)
	}
	for _, seq := range overlongSequences {
		if strings.Contains(path, seq) {
			return "", fmt.Errorf("%w: overlong UTF-8 sequence", ErrInvalidEncoding)
		}
	}

	// Decode up to two layers of URL encoding and re-check each layer.
	// "..%252f.." survives one decode as "..%2f.." and only shows its
	// traversal intent after the second.
	if err := checkDecodedLayers(path); err != nil {
		return "", err
	}

	if filepath.IsAbs(path) || strings.HasPrefix(path, "/") || strings.HasPrefix(path, "\\") {
		return "", ErrAbsolutePath
	}
	// Windows-style drive prefix also counts as absolute.
	if len(path) >= 2 && path[1] == ':' {
		return "", ErrAbsolutePath
	}

	cleaned := filepath.ToSlash(filepath.Clean(path))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: escapes root after cleaning", ErrPathTraversal)
	}
	return cleaned, nil
}

// checkDecodedLayers rejects traversal visible at any URL-decoding depth.
func checkDecodedLayers(path string) error {
	current := path
	for layer := 0; layer < 3; layer++ {
		if containsTraversal(current) {
			return fmt.Errorf("%w: detected at decode layer %d", ErrPathTraversal, layer)
		}
		if strings.ContainsRune(current, 0) {
			return ErrNullByte
		}
		for _, seq := range overlongSequences {
			if strings.Contains(current, seq) {
				return fmt.Errorf("%w: overlong UTF-8 sequence at decode layer %d", ErrInvalidEncoding, layer)
			}
		}
		if !strings.Contains(current, "%") {
			break
		}
		decoded, err := url.PathUnescape(current)
		if err != nil || decoded == current {
			break
		}
		current = decoded
	}
	return nil
}

// containsTraversal checks for ".." as a path segment in either separator style.
func containsTraversal(s string) bool {
	normalized := strings.ReplaceAll(s, "\\", "/")
	for _, seg := range strings.Split(normalized, "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

// ResolveUnderRoot joins a validated relative path onto root and confirms the
// result stays within root. The root must be absolute.
func ResolveUnderRoot(root, relPath string) (string, error) {
	if !filepath.IsAbs(root) {
		return "", fmt.Errorf("root must be absolute, got %q", root)
	}

	cleaned, err := ValidateRelativePath(relPath)
	if err != nil {
		return "", err
	}

	resolved := filepath.Join(root, filepath.FromSlash(cleaned))

	rel, err := filepath.Rel(root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: resolved path escapes root", ErrPathTraversal)
	}
	return resolved, nil
}
