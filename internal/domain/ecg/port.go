package ecg

import (
	"context"
	"time"
)

// Transport port (interface untuk remote analysis service). Send returns
// the raw success body; non-success statuses come back as RequestFailed.
type Transport interface {
	Send(ctx context.Context, req AnalysisRequest) ([]byte, error)
}

// Decoder port: wire payload to typed artifacts.
type Decoder interface {
	Decode(payload []byte) (AnalysisResponse, error)
}

// PreviewStore port: allocates and releases preview handles.
type PreviewStore interface {
	Create(file CandidateFile) (string, error)
	Revoke(uri string) error
}

// Level of a user notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is a message for the user of a session.
type Notification struct {
	SessionID string    `json:"session_id"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}

// Notifier port (notification sink).
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
