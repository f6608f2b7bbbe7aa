package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fyrsmithlabs/knowledged/internal/config"
	"github.com/fyrsmithlabs/knowledged/internal/tenant"
)

func TestNew(t *testing.T) {
	logger, err := New(config.LoggingConfig{Level: "debug", Format: "json"})
	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.NoError(t, Sync(logger))
}

func TestNewConsole(t *testing.T) {
	logger, err := New(config.LoggingConfig{Level: "info", Format: "console"})
	require.NoError(t, err)
	require.NotNil(t, logger)
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(config.LoggingConfig{Level: "verbose", Format: "json"})
	require.Error(t, err)
}

func TestContextFieldsEmpty(t *testing.T) {
	assert.Empty(t, ContextFields(context.Background()))
}

func TestContextFieldsTenant(t *testing.T) {
	ctx := tenant.ContextWith(context.Background(), tenant.Context{
		Project:       "webshop",
		Branch:        "main",
		WorkspaceHash: "ws1",
	})

	fields := ContextFields(ctx)
	require.Len(t, fields, 3)

	core, logs := observer.New(zap.DebugLevel)
	zap.New(core).Info("op done", fields...)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0].ContextMap()
	assert.Equal(t, "webshop", entry["tenant.project"])
	assert.Equal(t, "main", entry["tenant.branch"])
	assert.Equal(t, "ws1", entry["tenant.workspace"])
}

func TestWithContext(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	base := zap.New(core)

	ctx := tenant.ContextWith(context.Background(), tenant.Context{
		Project:       "webshop",
		Branch:        "main",
		WorkspaceHash: "ws1",
	})

	WithContext(ctx, base).Info("scoped")
	require.Equal(t, 1, logs.Len())
	assert.Contains(t, logs.All()[0].ContextMap(), "tenant.project")

	// Without correlation data the same logger is returned.
	assert.Same(t, base, WithContext(context.Background(), base))
}
