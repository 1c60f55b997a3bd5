package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/deepukochumon/ecg-analyzer/internal/config"
	domain "github.com/deepukochumon/ecg-analyzer/internal/domain/history"
	"github.com/deepukochumon/ecg-analyzer/internal/infra/db/mysql"
	"github.com/deepukochumon/ecg-analyzer/internal/infra/db/postgres"
	"github.com/deepukochumon/ecg-analyzer/internal/infra/db/sqlite"
)

// Open connects to the configured history database, creates the schema and
// returns the matching repository.
func Open(ctx context.Context, cfg *config.Config) (*sql.DB, domain.Repository, error) {
	var (
		conn *sql.DB
		err  error
	)
	switch cfg.Database.Driver {
	case config.DriverMySQL:
		if conn, err = mysql.Connect(ctx, cfg.MySQLDSN()); err != nil {
			return nil, nil, fmt.Errorf("mysql connect: %w", err)
		}
		err = mysql.Migrate(ctx, conn)
	case config.DriverPostgres:
		if conn, err = postgres.Connect(ctx, cfg.PostgresDSN()); err != nil {
			return nil, nil, fmt.Errorf("postgres connect: %w", err)
		}
		err = postgres.Migrate(ctx, conn)
	case config.DriverSQLite:
		if conn, err = sqlite.Open(ctx, cfg.Database.Path); err != nil {
			return nil, nil, err
		}
		err = sqlite.Migrate(ctx, conn)
	default:
		return nil, nil, fmt.Errorf("unsupported driver: %s", cfg.Database.Driver)
	}
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("migrate %s: %w", cfg.Database.Driver, err)
	}
	return conn, NewRepository(cfg.Database.Driver, conn), nil
}

// NewRepository picks the history repository for driver.
func NewRepository(driver string, conn *sql.DB) domain.Repository {
	switch driver {
	case config.DriverMySQL:
		return mysql.NewHistoryRepository(conn)
	case config.DriverPostgres:
		return postgres.NewHistoryRepository(conn)
	default:
		return sqlite.NewHistoryRepository(conn)
	}
}
