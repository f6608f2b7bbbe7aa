package vectorstore

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/knowledged/internal/tenant"
)

// IsolationMode controls how tenant isolation is enforced.
type IsolationMode string

const (
	// IsolationPayload filters by tenant metadata fields on every query.
	// This is the default and the only mode suitable for shared stores.
	IsolationPayload IsolationMode = "payload"

	// IsolationNone disables tenant filtering. Only valid for
	// single-tenant test setups.
	IsolationNone IsolationMode = "none"
)

// Validate checks that the isolation mode is recognized.
func (m IsolationMode) Validate() error {
	switch m {
	case IsolationPayload, IsolationNone:
		return nil
	default:
		return fmt.Errorf("%w: unknown isolation mode %q", ErrInvalidConfig, m)
	}
}

// isolation applies tenant scoping to filters and metadata. Fail-closed:
// when the mode requires a tenant and ctx has none, every method errors.
type isolation struct {
	mode IsolationMode
}

func newIsolation(mode IsolationMode) (*isolation, error) {
	if err := mode.Validate(); err != nil {
		return nil, err
	}
	return &isolation{mode: mode}, nil
}

// tenantFilter extracts the tenant from ctx and merges its predicate into
// filter. The tenant keys always win; caller-supplied values for
// project/branch/workspace_hash are overwritten, never trusted.
func (i *isolation) tenantFilter(ctx context.Context, filter map[string]any) (map[string]any, error) {
	if i.mode == IsolationNone {
		return filter, nil
	}
	tc, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: operation requires tenant context", err)
	}
	if err := tc.Validate(); err != nil {
		return nil, err
	}
	return mergeFilters(filter, tc.Filter()), nil
}

// scopeFilter merges a partial tenant scope into filter. Used by scope-wide
// deletes where only project (and optionally branch) is bound. Falls back to
// the full tenant context on ctx when sc is zero.
func (i *isolation) scopeFilter(ctx context.Context, sc tenant.Scope, filter map[string]any) (map[string]any, error) {
	if i.mode == IsolationNone {
		return filter, nil
	}
	if sc.Project == "" {
		return i.tenantFilter(ctx, filter)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return mergeFilters(filter, sc.Filter()), nil
}

// tenantMetadata stamps tenant fields onto record metadata before storage.
func (i *isolation) tenantMetadata(ctx context.Context, meta map[string]any) (map[string]any, error) {
	if i.mode == IsolationNone {
		return meta, nil
	}
	tc, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: upsert requires tenant context", err)
	}
	if err := tc.Validate(); err != nil {
		return nil, err
	}
	return mergeFilters(meta, tc.Metadata()), nil
}

// belongsTo reports whether record metadata matches the tenant on ctx.
// Used to post-check point lookups by ID, which bypass filtered queries.
func (i *isolation) belongsTo(ctx context.Context, meta map[string]any) bool {
	if i.mode == IsolationNone {
		return true
	}
	tc, err := tenant.FromContext(ctx)
	if err != nil {
		return false
	}
	for k, want := range tc.Filter() {
		got, ok := meta[k]
		if !ok {
			return false
		}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}
