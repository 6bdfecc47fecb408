package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NotEclipsed/jira-dashboard/config"
)

func TestOpen_SQLite(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{
		StoreDriver: DriverSQLite,
		SQLitePath:  filepath.Join(t.TempDir(), "data", "users.db"),
	}

	repo, closeStore, err := Open(ctx, cfg)
	require.NoError(t, err)
	defer closeStore()

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, _, err := Open(context.Background(), &config.Config{StoreDriver: "mysql"})
	assert.Error(t, err)
}
