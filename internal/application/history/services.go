package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/deepukochumon/ecg-analyzer/internal/application"
	"github.com/deepukochumon/ecg-analyzer/internal/domain/ecg"
	domain "github.com/deepukochumon/ecg-analyzer/internal/domain/history"
)

const defaultSaveTimeout = 15 * time.Second

var (
	// ErrNoUser is returned when there is no identified user to save for.
	ErrNoUser = errors.New("no user to persist analysis for")
	// ErrNoAnalyses is returned by Latest for a user with an empty history.
	ErrNoAnalyses = errors.New("no analyses saved yet")
)

// Entry is a completed analysis handed over for storage.
type Entry struct {
	UserID    string
	SessionID string
	Variant   ecg.ModelVariant
	Report    string
	Document  []byte
}

// Bridge forwards completed reports to the user's history. Saves are best
// effort: failures are logged and notified, never returned to the pipeline
// that produced the report.
type Bridge struct {
	Repo      domain.Repository
	Artifacts domain.ArtifactStore
	Notifier  ecg.Notifier
	Clock     application.Clock
	Log       zerolog.Logger
	Timeout   time.Duration

	wg sync.WaitGroup
}

// Persist saves the report for e.UserID. When an artifact store is set the
// document is archived first; an archive failure does not block the save.
func (b *Bridge) Persist(ctx context.Context, e Entry) (*domain.Analysis, error) {
	if strings.TrimSpace(e.UserID) == "" {
		return nil, ErrNoUser
	}

	now := b.now()
	a := &domain.Analysis{
		ID:        domain.AnalysisID(uuid.New().String()),
		UserID:    e.UserID,
		SessionID: e.SessionID,
		Model:     e.Variant.Selector(),
		Report:    e.Report,
		CreatedAt: now,
	}

	if b.Artifacts != nil && len(e.Document) > 0 {
		key := fmt.Sprintf("%s/%s/%s", e.UserID, a.ID, ecg.DocumentFileName)
		url, err := b.Artifacts.UploadBytes(ctx, key, e.Document, ecg.DocumentMediaType)
		if err != nil {
			b.Log.Warn().Err(err).Str("user_id", e.UserID).Str("key", key).Msg("archive report document")
		} else {
			a.DocumentURL = url
		}
	}

	if err := b.Repo.Save(ctx, a); err != nil {
		return nil, fmt.Errorf("save analysis to history: %w", err)
	}
	return a, nil
}

// Go runs Persist in the background with its own timeout. The outcome is
// reported through the logger and the notifier only.
func (b *Bridge) Go(e Entry) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		timeout := b.Timeout
		if timeout <= 0 {
			timeout = defaultSaveTimeout
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		log := b.Log.With().Str("session_id", e.SessionID).Str("user_id", e.UserID).Logger()
		a, err := b.Persist(ctx, e)
		if err != nil {
			log.Error().Err(err).Msg("history persistence failed")
			b.notify(ctx, e.SessionID, ecg.LevelWarning, "Analysis completed but could not be saved to history")
			return
		}
		log.Info().Str("analysis_id", string(a.ID)).Msg("analysis saved to history")
		b.notify(ctx, e.SessionID, ecg.LevelSuccess, "Analysis saved to history")
	}()
}

// Wait blocks until background saves started by Go have finished.
func (b *Bridge) Wait() {
	b.wg.Wait()
}

// List returns a page of the user's history, newest first.
func (b *Bridge) List(ctx context.Context, userID string, page, pageSize int) ([]*domain.Analysis, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrNoUser
	}
	return b.Repo.Paginate(ctx, userID, page, pageSize)
}

// Latest returns the user's most recent analysis.
func (b *Bridge) Latest(ctx context.Context, userID string) (*domain.Analysis, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrNoUser
	}
	a, err := b.Repo.Latest(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load latest analysis: %w", err)
	}
	if a == nil {
		return nil, ErrNoAnalyses
	}
	return a, nil
}

func (b *Bridge) notify(ctx context.Context, sessionID string, level ecg.Level, msg string) {
	if b.Notifier == nil {
		return
	}
	n := ecg.Notification{SessionID: sessionID, Level: level, Message: msg, At: b.now()}
	if err := b.Notifier.Notify(ctx, n); err != nil {
		b.Log.Warn().Err(err).Msg("notify user")
	}
}

func (b *Bridge) now() time.Time {
	if b.Clock == nil {
		return time.Now()
	}
	return b.Clock.Now()
}
