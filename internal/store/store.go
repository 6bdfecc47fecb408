// Package store opens the configured credential store.
package store

import (
	"context"
	"fmt"

	"github.com/NotEclipsed/jira-dashboard/config"
	"github.com/NotEclipsed/jira-dashboard/db"
	"github.com/NotEclipsed/jira-dashboard/internal/auth/domain"
	pgrepo "github.com/NotEclipsed/jira-dashboard/internal/auth/repository/postgres"
	sqliterepo "github.com/NotEclipsed/jira-dashboard/internal/auth/repository/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Open connects the store selected by STORE_DRIVER and applies pending
// migrations. The returned func releases the connection.
func Open(ctx context.Context, cfg *config.Config) (domain.UserRepository, func(), error) {
	switch cfg.StoreDriver {
	case DriverPostgres:
		pool, err := db.NewPostgresPool(ctx, cfg.DBURL)
		if err != nil {
			return nil, nil, err
		}
		if err := db.MigratePostgres(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return pgrepo.NewPostgresRepository(pool), pool.Close, nil

	case DriverSQLite:
		conn, err := db.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		if err := db.MigrateSQLite(ctx, conn); err != nil {
			conn.Close()
			return nil, nil, err
		}
		return sqliterepo.NewSQLiteRepository(conn), func() { _ = conn.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
}
