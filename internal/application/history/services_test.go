package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepukochumon/ecg-analyzer/internal/application"
	"github.com/deepukochumon/ecg-analyzer/internal/domain/ecg"
	domain "github.com/deepukochumon/ecg-analyzer/internal/domain/history"
)

type memRepo struct {
	mu        sync.Mutex
	saved     []*domain.Analysis
	err       error
	latestErr error
}

func (r *memRepo) Save(ctx context.Context, a *domain.Analysis) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.saved = append(r.saved, a)
	return nil
}

func (r *memRepo) Paginate(ctx context.Context, userID string, page, pageSize int) ([]*domain.Analysis, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Analysis
	for _, a := range r.saved {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memRepo) Latest(ctx context.Context, userID string) (*domain.Analysis, error) {
	if r.latestErr != nil {
		return nil, r.latestErr
	}
	list, _ := r.Paginate(ctx, userID, 1, 1)
	if len(list) == 0 {
		return nil, nil
	}
	return list[len(list)-1], nil
}

type memArtifacts struct {
	keys []string
	err  error
}

func (m *memArtifacts) UploadBytes(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.keys = append(m.keys, key)
	return "http://minio/reports/" + key, nil
}

type memNotifier struct {
	mu   sync.Mutex
	sent []ecg.Notification
}

func (n *memNotifier) Notify(ctx context.Context, msg ecg.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

var fixedNow = time.Date(2026, 2, 20, 9, 30, 0, 0, time.UTC)

func newBridge(repo *memRepo) (*Bridge, *memNotifier) {
	n := &memNotifier{}
	return &Bridge{
		Repo:     repo,
		Notifier: n,
		Clock:    application.FixedClock{T: fixedNow},
		Log:      zerolog.Nop(),
	}, n
}

func TestPersistSavesReport(t *testing.T) {
	repo := &memRepo{}
	b, _ := newBridge(repo)

	a, err := b.Persist(context.Background(), Entry{UserID: "u-1", SessionID: "s-1", Variant: ecg.V2, Report: "**Summary**"})
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, 2, a.Model)
	assert.Equal(t, fixedNow, a.CreatedAt)
	require.Len(t, repo.saved, 1)
	assert.Equal(t, "**Summary**", repo.saved[0].Report)
}

func TestPersistRequiresUser(t *testing.T) {
	repo := &memRepo{}
	b, _ := newBridge(repo)

	_, err := b.Persist(context.Background(), Entry{Report: "x"})
	assert.ErrorIs(t, err, ErrNoUser)
	assert.Empty(t, repo.saved)
}

func TestPersistArchivesDocument(t *testing.T) {
	repo := &memRepo{}
	b, _ := newBridge(repo)
	store := &memArtifacts{}
	b.Artifacts = store

	a, err := b.Persist(context.Background(), Entry{UserID: "u-1", Report: "r", Document: []byte("docx")})
	require.NoError(t, err)
	require.Len(t, store.keys, 1)
	assert.Contains(t, store.keys[0], "u-1/")
	assert.Contains(t, store.keys[0], ecg.DocumentFileName)
	assert.Equal(t, "http://minio/reports/"+store.keys[0], a.DocumentURL)

	store.err = errors.New("bucket gone")
	a, err = b.Persist(context.Background(), Entry{UserID: "u-1", Report: "r", Document: []byte("docx")})
	require.NoError(t, err, "archive failure must not block the save")
	assert.Empty(t, a.DocumentURL)
}

func TestGoNotifiesOutcome(t *testing.T) {
	repo := &memRepo{}
	b, n := newBridge(repo)

	b.Go(Entry{UserID: "u-1", SessionID: "s-1", Report: "ok"})
	b.Wait()
	require.Len(t, n.sent, 1)
	assert.Equal(t, ecg.LevelSuccess, n.sent[0].Level)
	assert.Equal(t, "Analysis saved to history", n.sent[0].Message)

	repo.err = errors.New("db down")
	b.Go(Entry{UserID: "u-1", SessionID: "s-1", Report: "lost"})
	b.Wait()
	require.Len(t, n.sent, 2)
	assert.Equal(t, ecg.LevelWarning, n.sent[1].Level)
	assert.Equal(t, "s-1", n.sent[1].SessionID)
}

func TestList(t *testing.T) {
	repo := &memRepo{}
	b, _ := newBridge(repo)
	_, _ = b.Persist(context.Background(), Entry{UserID: "a", Report: "1"})
	_, _ = b.Persist(context.Background(), Entry{UserID: "b", Report: "2"})

	list, err := b.List(context.Background(), "a", 1, 20)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = b.List(context.Background(), " ", 1, 20)
	assert.ErrorIs(t, err, ErrNoUser)
}

func TestLatest(t *testing.T) {
	repo := &memRepo{}
	b, _ := newBridge(repo)

	_, err := b.Latest(context.Background(), "a")
	assert.ErrorIs(t, err, ErrNoAnalyses)

	_, _ = b.Persist(context.Background(), Entry{UserID: "a", Report: "first"})
	_, _ = b.Persist(context.Background(), Entry{UserID: "a", Report: "second"})

	got, err := b.Latest(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "second", got.Report)

	_, err = b.Latest(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoUser)

	repo.latestErr = errors.New("db down")
	_, err = b.Latest(context.Background(), "a")
	assert.ErrorContains(t, err, "db down")
}
