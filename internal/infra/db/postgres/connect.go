package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate creates the history table when missing.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{`
CREATE TABLE IF NOT EXISTS ecg_analyses (
  id           VARCHAR(36)  PRIMARY KEY,
  user_id      VARCHAR(128) NOT NULL,
  session_id   VARCHAR(36)  NOT NULL,
  model        SMALLINT     NOT NULL,
  report       TEXT         NOT NULL,
  document_url VARCHAR(512) NOT NULL,
  created_at   TIMESTAMPTZ  NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_ecg_analyses_user_created ON ecg_analyses (user_id, created_at DESC);`,
	}
	for _, q := range stmts {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func stringOrDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func dashToEmpty(s string) string {
	if s == "-" {
		return ""
	}
	return s
}
