package boundary

import (
	"context"
	"sync"

	"github.com/fyrsmithlabs/knowledged/internal/tenant"
)

// Session is per-connection activation state: NO_TENANT until an explicit
// activation, then ACTIVE with a tenant context. Activating again fully
// replaces the previous tenant; nothing from the old scope survives into the
// new one.
//
// The session exists only at the boundary. Every downstream component takes
// the tenant from context.Context, never from shared state.
type Session struct {
	mu     sync.RWMutex
	active bool
	tenant tenant.Context
}

// NewSession creates a session in the NO_TENANT state.
func NewSession() *Session {
	return &Session{}
}

// Activate transitions to ACTIVE with the given tenant, replacing any
// previous activation.
func (s *Session) Activate(tc tenant.Context) error {
	if err := tc.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.active = true
	s.tenant = tc
	s.mu.Unlock()
	return nil
}

// Deactivate returns the session to NO_TENANT.
func (s *Session) Deactivate() {
	s.mu.Lock()
	s.active = false
	s.tenant = tenant.Context{}
	s.mu.Unlock()
}

// Tenant returns the active tenant, or false in the NO_TENANT state.
func (s *Session) Tenant() (tenant.Context, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tenant, s.active
}

// Context attaches the active tenant to ctx, or fails closed with
// ErrMissingTenant when no tenant is active.
func (s *Session) Context(ctx context.Context) (context.Context, error) {
	tc, ok := s.Tenant()
	if !ok {
		return nil, tenant.ErrMissingTenant
	}
	return tenant.ContextWith(ctx, tc), nil
}
