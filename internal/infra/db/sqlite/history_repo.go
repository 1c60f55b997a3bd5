package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	domain "github.com/deepukochumon/ecg-analyzer/internal/domain/history"
)

type HistoryRepository struct {
	db *sql.DB
}

func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Save inserts or updates an analysis record. Times are stored in UTC so
// created_at sorts lexically.
func (r *HistoryRepository) Save(ctx context.Context, a *domain.Analysis) error {
	const q = `
INSERT INTO ecg_analyses
  (id, user_id, session_id, model, report, document_url, created_at)
VALUES (?,?,?,?,?,?,?)
ON CONFLICT (id) DO UPDATE SET
  report=excluded.report,
  document_url=excluded.document_url;
`
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, q,
		string(a.ID), a.UserID, a.SessionID, a.Model, a.Report, a.DocumentURL, createdAt.UTC())
	return err
}

// Paginate returns a page of the user's analyses ordered by created_at desc
func (r *HistoryRepository) Paginate(ctx context.Context, userID string, page, pageSize int) ([]*domain.Analysis, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	const q = `
SELECT id, user_id, session_id, model, report, document_url, created_at
FROM ecg_analyses
WHERE user_id=?
ORDER BY created_at DESC, id DESC
LIMIT ? OFFSET ?;
`
	rows, err := r.db.QueryContext(ctx, q, userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Analysis
	for rows.Next() {
		var a domain.Analysis
		if err := rows.Scan(&a.ID, &a.UserID, &a.SessionID, &a.Model, &a.Report, &a.DocumentURL, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// Latest returns the newest analysis of the user, or nil when there is none
func (r *HistoryRepository) Latest(ctx context.Context, userID string) (*domain.Analysis, error) {
	const q = `
SELECT id, user_id, session_id, model, report, document_url, created_at
FROM ecg_analyses
WHERE user_id=?
ORDER BY created_at DESC, id DESC
LIMIT 1;`
	var a domain.Analysis
	err := r.db.QueryRowContext(ctx, q, userID).
		Scan(&a.ID, &a.UserID, &a.SessionID, &a.Model, &a.Report, &a.DocumentURL, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
