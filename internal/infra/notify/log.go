package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/deepukochumon/ecg-analyzer/internal/domain/ecg"
)

// Log writes notifications to the structured logger.
type Log struct {
	Logger zerolog.Logger
}

func (l Log) Notify(ctx context.Context, n ecg.Notification) error {
	ev := l.Logger.Info()
	switch n.Level {
	case ecg.LevelWarning:
		ev = l.Logger.Warn()
	case ecg.LevelError:
		ev = l.Logger.Error()
	}
	ev.Str("session_id", n.SessionID).Str("notify_level", string(n.Level)).Msg(n.Message)
	return nil
}

// Fanout delivers to every sink and returns the first error.
type Fanout []ecg.Notifier

func (f Fanout) Notify(ctx context.Context, n ecg.Notification) error {
	var first error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.Notify(ctx, n); err != nil && first == nil {
			first = err
		}
	}
	return first
}
