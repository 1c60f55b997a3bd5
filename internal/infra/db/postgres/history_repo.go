package postgres

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

// Save inserts or updates an analysis record
func (r *HistoryRepository) Save(ctx context.Context, a *domain.Analysis) error {
	const q = `
INSERT INTO ecg_analyses
  (id, user_id, session_id, model, report, document_url, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO UPDATE SET
  report=EXCLUDED.report,
  document_url=EXCLUDED.document_url;
`
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, q,
		a.ID, a.UserID, stringOrDash(a.SessionID), a.Model, a.Report, stringOrDash(a.DocumentURL), createdAt)
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
	offset := (page - 1) * pageSize

	const q = `
SELECT id, user_id, session_id, model, report, document_url, created_at
FROM ecg_analyses
WHERE user_id=$1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3;
`
	rows, err := r.db.QueryContext(ctx, q, userID, pageSize, offset)
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
		a.SessionID = dashToEmpty(a.SessionID)
		a.DocumentURL = dashToEmpty(a.DocumentURL)
		out = append(out, &a)
	}
	return out, rows.Err()
}

// Latest returns the newest analysis of the user, or nil when there is none
func (r *HistoryRepository) Latest(ctx context.Context, userID string) (*domain.Analysis, error) {
	const q = `
SELECT id, user_id, session_id, model, report, document_url, created_at
FROM ecg_analyses
WHERE user_id=$1
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
	a.SessionID = dashToEmpty(a.SessionID)
	a.DocumentURL = dashToEmpty(a.DocumentURL)
	return &a, nil
}
