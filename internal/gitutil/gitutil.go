// Package gitutil reads working-copy state from the .git directory without
// shelling out. Activation uses it to resolve the branch component of the
// tenant key when the caller does not supply one.
package gitutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrNotGitRepo indicates the directory is not a git repository.
	ErrNotGitRepo = errors.New("not a git repository")

	// ErrHeadNotFound indicates the HEAD file is missing.
	ErrHeadNotFound = errors.New("HEAD file not found")
)

// DetachedBranch is reported when HEAD does not point at a branch.
const DetachedBranch = "detached"

// DetectBranch resolves the current branch of the working copy at root by
// reading .git/HEAD. Linked worktrees (where .git is a file containing a
// gitdir pointer) are followed.
//
// Returns DetachedBranch when HEAD holds a bare commit hash or is empty.
func DetectBranch(root string) (string, error) {
	gitDir := filepath.Join(root, ".git")
	info, err := os.Stat(gitDir)
	if os.IsNotExist(err) {
		return "", fmt.Errorf("%w: %s", ErrNotGitRepo, root)
	}
	if err != nil {
		return "", fmt.Errorf("stat .git: %w", err)
	}

	// Linked worktree: .git is a file "gitdir: /path/to/real/gitdir".
	if !info.IsDir() {
		content, err := os.ReadFile(gitDir)
		if err != nil {
			return "", fmt.Errorf("reading .git file: %w", err)
		}
		pointer := strings.TrimSpace(string(content))
		pointer = strings.TrimPrefix(pointer, "gitdir:")
		pointer = strings.TrimSpace(pointer)
		if pointer == "" {
			return "", fmt.Errorf("%w: empty gitdir pointer", ErrNotGitRepo)
		}
		if !filepath.IsAbs(pointer) {
			pointer = filepath.Join(root, pointer)
		}
		gitDir = pointer
	}

	headFile := filepath.Join(gitDir, "HEAD")
	content, err := os.ReadFile(headFile)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrHeadNotFound, headFile)
		}
		return "", fmt.Errorf("reading HEAD file: %w", err)
	}

	head := strings.TrimSpace(string(content))
	if head == "" {
		return DetachedBranch, nil
	}
	if branch, ok := strings.CutPrefix(head, "ref: refs/heads/"); ok {
		return branch, nil
	}
	return DetachedBranch, nil
}
