package history

import "context"

// Repository port for persisting and querying a user's analyses
type Repository interface {
	Save(ctx context.Context, a *Analysis) error
	Paginate(ctx context.Context, userID string, page, pageSize int) ([]*Analysis, error)
	Latest(ctx context.Context, userID string) (*Analysis, error)
}

// ArtifactStore port (interface untuk penyimpanan dokumen laporan)
type ArtifactStore interface {
	UploadBytes(ctx context.Context, key string, data []byte, contentType string) (string, error)
}
