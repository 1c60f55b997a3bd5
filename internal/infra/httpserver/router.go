package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/deepukochumon/ecg-analyzer/internal/application/analysis"
	"github.com/deepukochumon/ecg-analyzer/internal/application/history"
	"github.com/deepukochumon/ecg-analyzer/internal/application/intake"
	"github.com/deepukochumon/ecg-analyzer/internal/domain/ecg"
	"github.com/deepukochumon/ecg-analyzer/internal/infra/preview"
	"github.com/deepukochumon/ecg-analyzer/internal/middleware"
)

const (
	uploadField    = "image"
	maxUploadParts = 10
)

var errNotReady = errors.New("analysis result not ready")

// PreviewSource serves preview bytes by handle.
type PreviewSource interface {
	Open(handle string) ([]byte, string, error)
}

// Inbox holds per-session notifications until the client drains them.
type Inbox interface {
	Drain(sessionID string) []ecg.Notification
	Pending(sessionID string) int
}

type Options struct {
	Sessions       *analysis.Manager
	History        *history.Bridge
	Previews       PreviewSource
	Inbox          Inbox
	Metrics        *middleware.Metrics
	Limiter        *middleware.RateLimiter
	Checkers       map[string]middleware.HealthChecker
	Draining       func() bool
	Log            zerolog.Logger
	UserHeader     string
	AllowedOrigins []string
	MaxFileBytes   int64
}

type Router struct {
	opts Options
	log  zerolog.Logger
}

func NewRouter(opts Options) http.Handler {
	if opts.Metrics == nil {
		opts.Metrics = middleware.NewMetrics()
	}
	if opts.MaxFileBytes <= 0 {
		opts.MaxFileBytes = intake.MaxFileSize
	}
	if opts.UserHeader == "" {
		opts.UserHeader = middleware.DefaultUserHeader
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	r := &Router{opts: opts, log: opts.Log.With().Str("component", "http").Logger()}

	mux := chi.NewRouter()
	mux.Use(chimw.RequestID)
	mux.Use(chimw.RealIP)
	mux.Use(chimw.Recoverer)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", opts.UserHeader},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	mux.Use(middleware.Identity(opts.UserHeader))
	mux.Use(middleware.RequestLogger(r.log))
	mux.Use(opts.Metrics.Middleware)

	monitor := middleware.Monitor{Checkers: opts.Checkers, Draining: opts.Draining}
	if opts.Sessions != nil {
		monitor.Sessions = opts.Sessions.Len
	}
	mux.Get("/health", monitor.Health)
	mux.Get("/healthz", monitor.Health)
	mux.Get("/readyz", monitor.Ready)
	mux.Get("/livez", middleware.Live)
	mux.Get("/metrics", opts.Metrics.Handler)
	mux.Get(preview.PathPrefix+"{handle}", r.wrap(r.handlePreview))

	mux.Route("/v1", func(rt chi.Router) {
		rt.Post("/sessions", r.wrap(r.handleCreateSession))
		rt.Route("/sessions/{id}", func(st chi.Router) {
			st.Get("/", r.wrap(r.handleGetSession))
			st.Delete("/", r.wrap(r.handleCloseSession))
			st.Post("/files", r.wrap(r.handleUpload))
			st.Delete("/files", r.wrap(r.handleClearFiles))
			st.Delete("/files/{fileID}", r.wrap(r.handleRemoveFile))
			st.With(r.rateLimit).Post("/analyze", r.wrap(r.handleAnalyze))
			st.Get("/report", r.wrap(r.handleReport))
			st.Get("/document", r.wrap(r.handleDocument))
			st.Get("/notifications", r.wrap(r.handleNotifications))
		})
		rt.With(middleware.RequireUser).Get("/history", r.wrap(r.handleHistory))
		rt.With(middleware.RequireUser).Get("/history/latest", r.wrap(r.handleLatest))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// badRequest marks caller input errors.
type badRequest struct{ msg string }

func (e badRequest) Error() string { return e.msg }

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			status, body := r.errorResponse(err)
			if status >= 500 {
				r.log.Error().Err(err).Str("path", req.URL.Path).Msg("request failed")
			}
			writeJSON(w, status, body)
		}
	}
}

func (r *Router) errorResponse(err error) (int, errorView) {
	var br badRequest
	switch {
	case errors.As(err, &br):
		return http.StatusBadRequest, errorView{Error: br.msg}
	case errors.Is(err, analysis.ErrSessionNotFound), errors.Is(err, analysis.ErrSessionClosed),
		errors.Is(err, analysis.ErrFileNotFound), errors.Is(err, preview.ErrNotFound),
		errors.Is(err, history.ErrNoAnalyses):
		return http.StatusNotFound, errorView{Error: err.Error()}
	case errors.Is(err, analysis.ErrSuperseded), errors.Is(err, errNotReady):
		return http.StatusConflict, errorView{Error: err.Error()}
	case errors.Is(err, history.ErrNoUser):
		return http.StatusUnauthorized, errorView{Error: err.Error()}
	}

	e, ok := ecg.AsError(err)
	if !ok {
		return http.StatusInternalServerError, errorView{Error: "internal error"}
	}
	view := errorView{Error: ecg.UserMessage(e), Kind: string(e.Kind), Category: string(e.Kind.Category())}
	switch e.Kind.Category() {
	case ecg.CategoryValidation:
		return http.StatusUnprocessableEntity, view
	case ecg.CategoryDispatch:
		return http.StatusConflict, view
	case ecg.CategoryNetwork, ecg.CategoryDecode:
		return http.StatusBadGateway, view
	default:
		return http.StatusInternalServerError, view
	}
}

// session resolves {id} and hides sessions owned by another user.
func (r *Router) session(req *http.Request) (*analysis.Session, error) {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateSessionID(id); err != nil {
		return nil, badRequest{err.Error()}
	}
	s, err := r.opts.Sessions.Get(id)
	if err != nil {
		return nil, err
	}
	if owner := s.UserID(); owner != "" && owner != middleware.UserFromContext(req.Context()) {
		return nil, analysis.ErrSessionNotFound
	}
	return s, nil
}

// POST /v1/sessions
func (r *Router) handleCreateSession(w http.ResponseWriter, req *http.Request) error {
	s := r.opts.Sessions.Create(middleware.UserFromContext(req.Context()))
	return writeJSON(w, http.StatusCreated, r.sessionView(s))
}

// GET /v1/sessions/{id}
func (r *Router) handleGetSession(w http.ResponseWriter, req *http.Request) error {
	s, err := r.session(req)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, r.sessionView(s))
}

// DELETE /v1/sessions/{id}
func (r *Router) handleCloseSession(w http.ResponseWriter, req *http.Request) error {
	s, err := r.session(req)
	if err != nil {
		return err
	}
	if err := r.opts.Sessions.Close(s.ID()); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// POST /v1/sessions/{id}/files (multipart, field "image", repeatable)
// Each part is read up to the size limit plus one byte, so oversized files
// are still classified as size_exceeded instead of failing the request.
func (r *Router) handleUpload(w http.ResponseWriter, req *http.Request) error {
	s, err := r.session(req)
	if err != nil {
		return err
	}
	limit := r.opts.MaxFileBytes
	req.Body = http.MaxBytesReader(w, req.Body, (limit+1)*maxUploadParts+1<<20)
	mr, err := req.MultipartReader()
	if err != nil {
		return badRequest{"expected multipart/form-data body"}
	}

	out := uploadView{Accepted: []fileView{}, Rejected: []rejectionView{}}
	parts := 0
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return badRequest{fmt.Sprintf("read multipart body: %v", err)}
		}
		if part.FormName() != uploadField || part.FileName() == "" {
			part.Close()
			continue
		}
		if parts++; parts > maxUploadParts {
			part.Close()
			return badRequest{fmt.Sprintf("at most %d files per upload", maxUploadParts)}
		}

		data, err := readPart(part, limit)
		if err != nil {
			return badRequest{fmt.Sprintf("read %s: %v", part.FileName(), err)}
		}
		f, err := s.AddFile(req.Context(), part.FileName(), part.Header.Get("Content-Type"), data)
		if e, ok := ecg.AsError(err); ok {
			r.opts.Metrics.FileRejected()
			out.Rejected = append(out.Rejected, rejectionView{
				Name: part.FileName(), Kind: string(e.Kind), Message: ecg.UserMessage(e),
			})
			continue
		}
		if err != nil {
			return err
		}
		r.opts.Metrics.FileAccepted()
		out.Accepted = append(out.Accepted, newFileView(f))
	}
	if parts == 0 {
		return badRequest{fmt.Sprintf("multipart field %q is required", uploadField)}
	}
	return writeJSON(w, http.StatusOK, out)
}

func readPart(part *multipart.Part, limit int64) ([]byte, error) {
	defer part.Close()
	data, err := io.ReadAll(io.LimitReader(part, limit+1))
	if err != nil {
		return nil, err
	}
	// drain the rest of an oversized part
	_, err = io.Copy(io.Discard, part)
	return data, err
}

// DELETE /v1/sessions/{id}/files
func (r *Router) handleClearFiles(w http.ResponseWriter, req *http.Request) error {
	s, err := r.session(req)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]int{"removed": s.Clear()})
}

// DELETE /v1/sessions/{id}/files/{fileID}
func (r *Router) handleRemoveFile(w http.ResponseWriter, req *http.Request) error {
	s, err := r.session(req)
	if err != nil {
		return err
	}
	fileID := chi.URLParam(req, "fileID")
	if err := middleware.ValidateFileID(fileID); err != nil {
		return badRequest{err.Error()}
	}
	if err := s.RemoveFile(ecg.FileID(fileID)); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// POST /v1/sessions/{id}/analyze?model=v1[&wait=true]
// Runs in the background and answers 202 unless wait=true.
func (r *Router) handleAnalyze(w http.ResponseWriter, req *http.Request) error {
	s, err := r.session(req)
	if err != nil {
		return err
	}
	variant, err := ecg.ParseModelVariant(req.URL.Query().Get("model"))
	if err != nil {
		return badRequest{err.Error()}
	}

	if wait, _ := strconv.ParseBool(req.URL.Query().Get("wait")); wait {
		if err := r.dispatch(req.Context(), s, variant); err != nil {
			return err
		}
		return r.writeReport(w, s)
	}

	// jalan di background, request context berakhir saat handler return
	go func() {
		_ = r.dispatch(context.Background(), s, variant)
	}()

	return writeJSON(w, http.StatusAccepted, map[string]any{
		"status":     "queued",
		"session_id": s.ID(),
		"model":      variant.String(),
		"queuedAt":   time.Now().UTC(),
	})
}

func (r *Router) dispatch(ctx context.Context, s *analysis.Session, variant ecg.ModelVariant) error {
	done := r.opts.Metrics.AnalysisStarted()
	_, err := s.Dispatch(ctx, variant)
	done(err != nil && !errors.Is(err, analysis.ErrSuperseded))
	return err
}

// GET /v1/sessions/{id}/report
func (r *Router) handleReport(w http.ResponseWriter, req *http.Request) error {
	s, err := r.session(req)
	if err != nil {
		return err
	}
	return r.writeReport(w, s)
}

func (r *Router) writeReport(w http.ResponseWriter, s *analysis.Session) error {
	resp, ok := s.Response()
	if !ok {
		return errNotReady
	}
	return writeJSON(w, http.StatusOK, reportView{
		SessionID:   s.ID(),
		Model:       s.Variant().String(),
		Report:      resp.ReportText,
		Segments:    s.Segments(),
		HasDocument: resp.HasDocument(),
	})
}

// GET /v1/sessions/{id}/document
func (r *Router) handleDocument(w http.ResponseWriter, req *http.Request) error {
	s, err := r.session(req)
	if err != nil {
		return err
	}
	doc, ok := s.Document()
	if !ok {
		return errNotReady
	}
	w.Header().Set("Content-Type", ecg.DocumentMediaType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", ecg.DocumentFileName))
	w.Header().Set("Content-Length", strconv.Itoa(len(doc)))
	_, err = w.Write(doc)
	return err
}

// GET /v1/sessions/{id}/notifications
func (r *Router) handleNotifications(w http.ResponseWriter, req *http.Request) error {
	s, err := r.session(req)
	if err != nil {
		return err
	}
	list := []ecg.Notification{}
	if r.opts.Inbox != nil {
		list = append(list, r.opts.Inbox.Drain(s.ID())...)
	}
	return writeJSON(w, http.StatusOK, list)
}

// GET /v1/history?page=&page_size=
func (r *Router) handleHistory(w http.ResponseWriter, req *http.Request) error {
	if r.opts.History == nil {
		return writeJSON(w, http.StatusOK, historyView{Page: 1, PageSize: 0, Items: []historyItemView{}})
	}
	page, _ := strconv.Atoi(req.URL.Query().Get("page"))
	size, _ := strconv.Atoi(req.URL.Query().Get("page_size"))
	page = middleware.ValidatePage(page)
	size = middleware.ValidateLimit(size)

	list, err := r.opts.History.List(req.Context(), middleware.UserFromContext(req.Context()), page, size)
	if err != nil {
		return err
	}
	out := historyView{Page: page, PageSize: size, Items: make([]historyItemView, 0, len(list))}
	for _, a := range list {
		out.Items = append(out.Items, newHistoryItemView(a))
	}
	return writeJSON(w, http.StatusOK, out)
}

// GET /v1/history/latest
func (r *Router) handleLatest(w http.ResponseWriter, req *http.Request) error {
	if r.opts.History == nil {
		return history.ErrNoAnalyses
	}
	a, err := r.opts.History.Latest(req.Context(), middleware.UserFromContext(req.Context()))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, newHistoryItemView(a))
}

// GET /previews/{handle}
func (r *Router) handlePreview(w http.ResponseWriter, req *http.Request) error {
	if r.opts.Previews == nil {
		return preview.ErrNotFound
	}
	data, mimeType, err := r.opts.Previews.Open(chi.URLParam(req, "handle"))
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Cache-Control", "no-store")
	_, err = w.Write(data)
	return err
}

func (r *Router) rateLimit(next http.Handler) http.Handler {
	if r.opts.Limiter == nil {
		return next
	}
	return middleware.RateLimit(r.opts.Limiter)(next)
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}
