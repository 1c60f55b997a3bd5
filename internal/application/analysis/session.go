package analysis

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/deepukochumon/ecg-analyzer/internal/application"
	"github.com/deepukochumon/ecg-analyzer/internal/application/history"
	"github.com/deepukochumon/ecg-analyzer/internal/application/intake"
	"github.com/deepukochumon/ecg-analyzer/internal/application/preview"
	"github.com/deepukochumon/ecg-analyzer/internal/application/report"
	"github.com/deepukochumon/ecg-analyzer/internal/domain/ecg"
)

var (
	ErrSessionClosed   = errors.New("analysis session closed")
	ErrSessionNotFound = errors.New("analysis session not found")
	ErrFileNotFound    = errors.New("file not found in session")
	ErrSuperseded      = errors.New("analysis superseded by a newer request")
)

// Deps are the collaborators shared by every session.
type Deps struct {
	Validator intake.Validator
	Previews  ecg.PreviewStore
	Transport ecg.Transport
	Decoder   ecg.Decoder
	History   *history.Bridge
	Notifier  ecg.Notifier
	Clock     application.Clock
	Log       zerolog.Logger
}

// run is the cancellation handle of one dispatch.
type run struct {
	gen    uint64
	ctx    context.Context
	cancel context.CancelFunc
}

// Session is one orchestration session: it owns the active files, the
// analysis state and the held response. Safe for concurrent use; only
// Dispatch blocks, and it does so outside the lock.
type Session struct {
	id       string
	userID   string
	deps     Deps
	previews *preview.Manager
	log      zerolog.Logger

	mu         sync.Mutex
	files      []ecg.CandidateFile
	state      ecg.AnalysisState
	response   *ecg.AnalysisResponse
	variant    ecg.ModelVariant
	current    *run
	gen        uint64
	closed     bool
	lastActive time.Time
}

func NewSession(id, userID string, deps Deps) *Session {
	if deps.Clock == nil {
		deps.Clock = application.SystemClock{}
	}
	if deps.Decoder == nil {
		deps.Decoder = noDecoder{}
	}
	s := &Session{
		id:     id,
		userID: userID,
		deps:   deps,
		log:    deps.Log.With().Str("session_id", id).Logger(),
	}
	s.previews = preview.NewManager(deps.Previews, s.log)
	s.lastActive = deps.Clock.Now()
	return s
}

func (s *Session) ID() string     { return s.id }
func (s *Session) UserID() string { return s.userID }

// AddFile validates an upload and, when accepted, attaches its preview and
// adds it to the active set. Rejections are notified and returned.
func (s *Session) AddFile(ctx context.Context, name, mimeType string, data []byte) (ecg.CandidateFile, error) {
	if s.isClosed() {
		return ecg.CandidateFile{}, ErrSessionClosed
	}
	f := intake.NewCandidate(name, mimeType, data)
	if err := s.deps.Validator.Validate(f); err != nil {
		s.log.Info().Str("file", f.Name).Int64("size", f.SizeBytes).Err(err).Msg("file rejected")
		s.notify(ctx, ecg.LevelError, ecg.UserMessage(err))
		return ecg.CandidateFile{}, err
	}

	f, err := s.previews.Attach(f)
	if err != nil {
		return ecg.CandidateFile{}, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.previews.Revoke(f)
		return ecg.CandidateFile{}, ErrSessionClosed
	}
	s.files = append(s.files, f)
	s.touch()
	s.mu.Unlock()

	s.log.Debug().Str("file_id", string(f.ID)).Str("file", f.Name).Str("mime", f.MimeType).Msg("file accepted")
	return f, nil
}

// RemoveFile drops a file from the active set and releases its preview.
func (s *Session) RemoveFile(id ecg.FileID) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	idx := -1
	for i, f := range s.files {
		if f.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return ErrFileNotFound
	}
	f := s.files[idx]
	s.files = append(s.files[:idx:idx], s.files[idx+1:]...)
	s.touch()
	s.mu.Unlock()

	s.previews.Revoke(f)
	return nil
}

// Clear removes every file, releasing their previews.
func (s *Session) Clear() int {
	s.mu.Lock()
	files := s.files
	s.files = nil
	s.touch()
	s.mu.Unlock()

	for _, f := range files {
		s.previews.Revoke(f)
	}
	return len(files)
}

// Files returns a snapshot of the active set.
func (s *Session) Files() []ecg.CandidateFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ecg.CandidateFile, len(s.files))
	copy(out, s.files)
	return out
}

func (s *Session) State() ecg.AnalysisState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Variant returns the model variant of the latest dispatch.
func (s *Session) Variant() ecg.ModelVariant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.variant
}

// Response returns the held result; ok only in the Ready state.
func (s *Session) Response() (ecg.AnalysisResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.response == nil || s.state.Current() != ecg.PhaseReady {
		return ecg.AnalysisResponse{}, false
	}
	return *s.response, true
}

// Document returns the decoded document bytes for download.
func (s *Session) Document() ([]byte, bool) {
	resp, ok := s.Response()
	if !ok || !resp.HasDocument() {
		return nil, false
	}
	return resp.DocumentBytes, true
}

// Segments formats the held report on every call.
func (s *Session) Segments() []ecg.ReportSegment {
	resp, ok := s.Response()
	if !ok {
		return nil
	}
	return report.Format(resp.ReportText)
}

// IdleSince returns the time of the last mutation.
func (s *Session) IdleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Dispatch analyzes the first active file with the given variant. A newer
// Dispatch cancels this one; the superseded call returns ErrSuperseded and
// leaves the session state to the newer run.
func (s *Session) Dispatch(ctx context.Context, variant ecg.ModelVariant) (ecg.AnalysisResponse, error) {
	r, files, err := s.begin(ctx, variant)
	if err != nil {
		return ecg.AnalysisResponse{}, err
	}
	defer r.cancel()

	if len(files) == 0 {
		return s.fail(r, ecg.NewError(ecg.KindNoFileSelected, "", nil))
	}

	if err := s.advance(r, ecg.PhaseDispatching); err != nil {
		return ecg.AnalysisResponse{}, err
	}
	req := ecg.AnalysisRequest{Variant: variant, File: files[0]}

	if err := s.advance(r, ecg.PhaseAwaitingResponse); err != nil {
		return ecg.AnalysisResponse{}, err
	}
	s.log.Info().Str("file", req.File.Name).Int("model", variant.Selector()).Msg("analysis request sent")
	body, err := s.deps.Transport.Send(r.ctx, req)
	if err != nil {
		if s.superseded(r) {
			return ecg.AnalysisResponse{}, ErrSuperseded
		}
		return s.fail(r, networkFailure(err))
	}

	if err := s.advance(r, ecg.PhaseDecoding); err != nil {
		return ecg.AnalysisResponse{}, err
	}
	resp, err := s.deps.Decoder.Decode(body)
	if err != nil {
		e, ok := ecg.AsError(err)
		if !ok {
			e = ecg.NewError(ecg.KindMalformedPayload, "", err)
		}
		return s.fail(r, e)
	}

	if err := s.commit(r, resp); err != nil {
		return ecg.AnalysisResponse{}, err
	}
	s.log.Info().Int("report_bytes", len(resp.ReportText)).Int("document_bytes", len(resp.DocumentBytes)).Msg("analysis ready")
	s.notify(ctx, ecg.LevelSuccess, "Analysis complete")

	if s.userID != "" && s.deps.History != nil {
		s.deps.History.Go(history.Entry{
			UserID:    s.userID,
			SessionID: s.id,
			Variant:   variant,
			Report:    resp.ReportText,
			Document:  resp.DocumentBytes,
		})
	}
	return resp, nil
}

// Close tears the session down: cancels any in-flight run, releases every
// preview and drops files and results.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.current != nil {
		s.current.cancel()
		s.current = nil
	}
	s.gen++
	s.files = nil
	s.response = nil
	s.state = ecg.AnalysisState{}
	s.mu.Unlock()

	released := s.previews.RevokeAll()
	s.log.Debug().Int("previews_released", released).Msg("session closed")
}

func (s *Session) begin(ctx context.Context, variant ecg.ModelVariant) (*run, []ecg.CandidateFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, nil, ErrSessionClosed
	}
	if s.current != nil {
		s.current.cancel()
		s.log.Info().Uint64("generation", s.current.gen).Msg("previous analysis superseded")
	}

	s.gen++
	runCtx, cancel := context.WithCancel(ctx)
	r := &run{gen: s.gen, ctx: runCtx, cancel: cancel}
	s.current = r
	s.variant = variant
	s.response = nil
	s.touch()

	// fresh state machine instance for every dispatch
	next, err := ecg.AnalysisState{}.To(ecg.PhaseValidating)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	s.state = next

	files := make([]ecg.CandidateFile, len(s.files))
	copy(files, s.files)
	return r, files, nil
}

func (s *Session) advance(r *run, phase ecg.Phase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || r.gen != s.gen {
		return ErrSuperseded
	}
	next, err := s.state.To(phase)
	if err != nil {
		return err
	}
	s.state = next
	return nil
}

func (s *Session) commit(r *run, resp ecg.AnalysisResponse) error {
	s.mu.Lock()
	if s.closed || r.gen != s.gen {
		s.mu.Unlock()
		return ErrSuperseded
	}
	if err := r.ctx.Err(); err != nil {
		s.mu.Unlock()
		_, ferr := s.fail(r, networkFailure(err))
		return ferr
	}
	next, err := s.state.To(ecg.PhaseReady)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.state = next
	s.response = &resp
	s.current = nil
	s.touch()
	s.mu.Unlock()
	return nil
}

func (s *Session) fail(r *run, reason *ecg.Error) (ecg.AnalysisResponse, error) {
	s.mu.Lock()
	if s.closed || r.gen != s.gen {
		s.mu.Unlock()
		return ecg.AnalysisResponse{}, ErrSuperseded
	}
	next, err := s.state.Fail(reason)
	if err != nil {
		s.mu.Unlock()
		return ecg.AnalysisResponse{}, err
	}
	s.state = next
	s.response = nil
	s.current = nil
	s.touch()
	s.mu.Unlock()

	s.log.Warn().Str("reason", string(reason.Kind)).Str("category", string(reason.Kind.Category())).Err(reason).Msg("analysis failed")
	s.notify(r.ctx, ecg.LevelError, ecg.UserMessage(reason))
	return ecg.AnalysisResponse{}, reason
}

func (s *Session) superseded(r *run) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed || r.gen != s.gen
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// touch must be called with mu held.
func (s *Session) touch() {
	s.lastActive = s.deps.Clock.Now()
}

func (s *Session) notify(ctx context.Context, level ecg.Level, msg string) {
	if s.deps.Notifier == nil {
		return
	}
	n := ecg.Notification{SessionID: s.id, Level: level, Message: msg, At: s.deps.Clock.Now()}
	if err := s.deps.Notifier.Notify(context.WithoutCancel(ctx), n); err != nil {
		s.log.Warn().Err(err).Msg("notify user")
	}
}

// networkFailure maps transport errors that are not already classified.
func networkFailure(err error) *ecg.Error {
	if e, ok := ecg.AsError(err); ok {
		return e
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ecg.RequestFailed("request canceled", err)
	}
	return ecg.RequestFailed("transport error", err)
}

type noDecoder struct{}

func (noDecoder) Decode([]byte) (ecg.AnalysisResponse, error) {
	return ecg.AnalysisResponse{}, ecg.NewError(ecg.KindMalformedPayload, "no decoder configured", nil)
}
