package mysql

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	// test ping
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
	const q = `
CREATE TABLE IF NOT EXISTS ecg_analyses (
  id           VARCHAR(36)  NOT NULL PRIMARY KEY,
  user_id      VARCHAR(128) NOT NULL,
  session_id   VARCHAR(36)  NOT NULL,
  model        TINYINT      NOT NULL,
  report       MEDIUMTEXT   NOT NULL,
  document_url VARCHAR(512) NOT NULL,
  created_at   DATETIME(6)  NOT NULL,
  INDEX idx_ecg_analyses_user_created (user_id, created_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;
`
	_, err := db.ExecContext(ctx, q)
	return err
}
