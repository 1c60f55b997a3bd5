package httpserver

import (
	"time"

	"github.com/deepukochumon/ecg-analyzer/internal/application/analysis"
	"github.com/deepukochumon/ecg-analyzer/internal/application/intake"
	"github.com/deepukochumon/ecg-analyzer/internal/domain/ecg"
	domain "github.com/deepukochumon/ecg-analyzer/internal/domain/history"
)

type errorView struct {
	Error    string `json:"error"`
	Kind     string `json:"kind,omitempty"`
	Category string `json:"category,omitempty"`
}

type fileView struct {
	ID         ecg.FileID `json:"id"`
	Name       string     `json:"name"`
	SizeBytes  int64      `json:"size_bytes"`
	Size       string     `json:"size"`
	MimeType   string     `json:"mime_type"`
	PreviewURI string     `json:"preview_uri,omitempty"`
}

func newFileView(f ecg.CandidateFile) fileView {
	return fileView{
		ID:         f.ID,
		Name:       f.Name,
		SizeBytes:  f.SizeBytes,
		Size:       intake.Describe(f),
		MimeType:   f.MimeType,
		PreviewURI: f.PreviewURI,
	}
}

type rejectionView struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type uploadView struct {
	Accepted []fileView      `json:"accepted"`
	Rejected []rejectionView `json:"rejected"`
}

type failureView struct {
	Kind     string `json:"kind"`
	Category string `json:"category"`
	Detail   string `json:"detail,omitempty"`
	Message  string `json:"message"`
}

type stateView struct {
	Phase   ecg.Phase    `json:"phase"`
	Busy    bool         `json:"busy"`
	Failure *failureView `json:"failure,omitempty"`
}

type sessionView struct {
	ID                   string     `json:"id"`
	Anonymous            bool       `json:"anonymous"`
	State                stateView  `json:"state"`
	Model                string     `json:"model,omitempty"`
	Files                []fileView `json:"files"`
	HasReport            bool       `json:"has_report"`
	HasDocument          bool       `json:"has_document"`
	PendingNotifications int        `json:"pending_notifications"`
}

func (r *Router) sessionView(s *analysis.Session) sessionView {
	st := s.State()
	v := sessionView{
		ID:        s.ID(),
		Anonymous: s.UserID() == "",
		State:     stateView{Phase: st.Current(), Busy: st.Busy()},
		Files:     []fileView{},
	}
	if st.Failure != nil {
		v.State.Failure = &failureView{
			Kind:     string(st.Failure.Kind),
			Category: string(st.Failure.Kind.Category()),
			Detail:   st.Failure.Detail,
			Message:  ecg.UserMessage(st.Failure),
		}
	}
	if variant := s.Variant(); variant.Valid() {
		v.Model = variant.String()
	}
	for _, f := range s.Files() {
		v.Files = append(v.Files, newFileView(f))
	}
	if resp, ok := s.Response(); ok {
		v.HasReport = true
		v.HasDocument = resp.HasDocument()
	}
	if r.opts.Inbox != nil {
		v.PendingNotifications = r.opts.Inbox.Pending(s.ID())
	}
	return v
}

type reportView struct {
	SessionID   string              `json:"session_id"`
	Model       string              `json:"model"`
	Report      string              `json:"report"`
	Segments    []ecg.ReportSegment `json:"segments"`
	HasDocument bool                `json:"has_document"`
}

type historyItemView struct {
	ID          domain.AnalysisID `json:"id"`
	SessionID   string            `json:"session_id,omitempty"`
	Model       int               `json:"model"`
	Report      string            `json:"report"`
	DocumentURL string            `json:"document_url,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

func newHistoryItemView(a *domain.Analysis) historyItemView {
	return historyItemView{
		ID:          a.ID,
		SessionID:   a.SessionID,
		Model:       a.Model,
		Report:      a.Report,
		DocumentURL: a.DocumentURL,
		CreatedAt:   a.CreatedAt,
	}
}

type historyView struct {
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
	Items    []historyItemView `json:"items"`
}
