// Package tenant defines the (project, branch, workspace) isolation key and
// the context plumbing that carries it through every store operation.
//
// The tenant context is never inferred and never held in global state: callers
// attach it to a context.Context with ContextWith, and every data-touching
// component extracts it with FromContext. Missing tenant context is an error
// (fail closed), never an empty result.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// Tenant isolation errors - fail closed security model.
var (
	// ErrMissingTenant is returned when tenant context is absent.
	ErrMissingTenant = errors.New("tenant context missing")

	// ErrInvalidTenant is returned when a tenant field is malformed or empty.
	ErrInvalidTenant = errors.New("invalid tenant context")
)

// identifierPattern matches valid tenant identifiers: lowercase alphanumeric
// with underscores and hyphens, 1-64 chars. Matches collection name constraints.
var identifierPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// Context is the mandatory isolation key for all document and chunk rows.
//
// All three fields are required; a partial tenant key must never reach storage.
// Context values are immutable once constructed.
type Context struct {
	// Project is the project identifier (e.g., sanitized repository name).
	Project string

	// Branch is the git branch this working copy tracks.
	Branch string

	// WorkspaceHash distinguishes working copies of the same project/branch.
	WorkspaceHash string
}

// Validate checks that all fields are present and well-formed.
func (t Context) Validate() error {
	if t.Project == "" || t.Branch == "" || t.WorkspaceHash == "" {
		return fmt.Errorf("%w: project, branch and workspace_hash are all required", ErrInvalidTenant)
	}
	for name, v := range map[string]string{
		"project":        t.Project,
		"branch":         t.Branch,
		"workspace_hash": t.WorkspaceHash,
	} {
		if !identifierPattern.MatchString(v) {
			return fmt.Errorf("%w: %s must match %s", ErrInvalidTenant, name, identifierPattern.String())
		}
	}
	return nil
}

// Metadata returns the tenant key as a metadata map for document storage.
func (t Context) Metadata() map[string]any {
	return map[string]any{
		"project":        t.Project,
		"branch":         t.Branch,
		"workspace_hash": t.WorkspaceHash,
	}
}

// Filter returns the filter conditions matching exactly this tenant's scope.
func (t Context) Filter() map[string]any {
	return t.Metadata()
}

// Scope is a partial tenant key used for scope deletes. Project is required;
// empty Branch or WorkspaceHash widens the scope to all matching rows.
type Scope struct {
	Project       string
	Branch        string
	WorkspaceHash string
}

// Validate checks the scope: project is mandatory, narrower fields may only be
// set when the wider ones are.
func (s Scope) Validate() error {
	if s.Project == "" {
		return fmt.Errorf("%w: scope requires at least a project", ErrInvalidTenant)
	}
	if s.WorkspaceHash != "" && s.Branch == "" {
		return fmt.Errorf("%w: workspace_hash without branch", ErrInvalidTenant)
	}
	for name, v := range map[string]string{
		"project":        s.Project,
		"branch":         s.Branch,
		"workspace_hash": s.WorkspaceHash,
	} {
		if v != "" && !identifierPattern.MatchString(v) {
			return fmt.Errorf("%w: %s must match %s", ErrInvalidTenant, name, identifierPattern.String())
		}
	}
	return nil
}

// Filter returns filter conditions for the set fields only.
func (s Scope) Filter() map[string]any {
	f := map[string]any{"project": s.Project}
	if s.Branch != "" {
		f["branch"] = s.Branch
	}
	if s.WorkspaceHash != "" {
		f["workspace_hash"] = s.WorkspaceHash
	}
	return f
}

// Matches reports whether a full tenant context falls inside this scope.
func (s Scope) Matches(t Context) bool {
	if s.Project != t.Project {
		return false
	}
	if s.Branch != "" && s.Branch != t.Branch {
		return false
	}
	if s.WorkspaceHash != "" && s.WorkspaceHash != t.WorkspaceHash {
		return false
	}
	return true
}

// ctxKey is the context key for tenant Context.
type ctxKey struct{}

// ContextWith attaches a tenant Context to ctx.
func ContextWith(ctx context.Context, t Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, t)
}

// FromContext extracts the tenant Context from ctx.
// Returns ErrMissingTenant if absent - fail closed.
func FromContext(ctx context.Context) (Context, error) {
	val := ctx.Value(ctxKey{})
	if val == nil {
		return Context{}, ErrMissingTenant
	}
	t, ok := val.(Context)
	if !ok {
		return Context{}, ErrMissingTenant
	}
	return t, nil
}

// Has reports whether a tenant Context is present on ctx.
func Has(ctx context.Context) bool {
	_, err := FromContext(ctx)
	return err == nil
}
