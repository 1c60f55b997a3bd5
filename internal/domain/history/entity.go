package history

import "time"

// AnalysisID identifier type
type AnalysisID string

// Analysis is a completed ECG report saved to a user's history
type Analysis struct {
	ID          AnalysisID `json:"id"`
	UserID      string     `json:"user_id"`
	SessionID   string     `json:"session_id,omitempty"`
	Model       int        `json:"model"`
	Report      string     `json:"report"`
	DocumentURL string     `json:"document_url,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
