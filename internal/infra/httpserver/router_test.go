package httpserver

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepukochumon/ecg-analyzer/internal/application/analysis"
	"github.com/deepukochumon/ecg-analyzer/internal/application/history"
	"github.com/deepukochumon/ecg-analyzer/internal/application/intake"
	domain "github.com/deepukochumon/ecg-analyzer/internal/domain/history"
	"github.com/deepukochumon/ecg-analyzer/internal/infra/analyzer"
	"github.com/deepukochumon/ecg-analyzer/internal/infra/notify"
	"github.com/deepukochumon/ecg-analyzer/internal/infra/preview"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

const sampleReport = "**Findings**\n- Normal or Abnormal: Abnormal\n- ST elevation in V2"

type memRepo struct {
	mu    sync.Mutex
	items []*domain.Analysis
}

func (m *memRepo) Save(ctx context.Context, a *domain.Analysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append([]*domain.Analysis{a}, m.items...)
	return nil
}

func (m *memRepo) Paginate(ctx context.Context, userID string, page, pageSize int) ([]*domain.Analysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Analysis
	for _, a := range m.items {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memRepo) Latest(ctx context.Context, userID string) (*domain.Analysis, error) {
	list, _ := m.Paginate(ctx, userID, 1, 1)
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

type harness struct {
	server   *httptest.Server
	upstream *httptest.Server
	bridge   *history.Bridge
	registry *preview.Registry

	mu     sync.Mutex
	models []string
	status int
}

func newHarness(t *testing.T, maxFileBytes int64) *harness {
	t.Helper()
	h := &harness{status: http.StatusOK}
	h.upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.mu.Lock()
		h.models = append(h.models, r.URL.Query().Get("m"))
		status := h.status
		h.mu.Unlock()
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"report":   sampleReport,
			"document": base64.StdEncoding.EncodeToString([]byte("PK-docx")),
		})
	}))
	t.Cleanup(h.upstream.Close)

	inbox := notify.NewInbox(0)
	h.registry = preview.NewRegistry()
	h.bridge = &history.Bridge{Repo: &memRepo{}, Notifier: inbox, Log: zerolog.Nop()}
	manager := analysis.NewManager(analysis.Deps{
		Validator: intake.Validator{MaxBytes: maxFileBytes},
		Previews:  h.registry,
		Transport: analyzer.NewClient(h.upstream.URL, 5*time.Second),
		Decoder:   analyzer.Decoder{},
		History:   h.bridge,
		Notifier:  inbox,
		Log:       zerolog.Nop(),
	})
	manager.OnCreate = inbox.Open
	manager.OnClose = inbox.Forget

	h.server = httptest.NewServer(NewRouter(Options{
		Sessions:     manager,
		History:      h.bridge,
		Previews:     h.registry,
		Inbox:        inbox,
		Log:          zerolog.Nop(),
		MaxFileBytes: maxFileBytes,
	}))
	t.Cleanup(h.server.Close)
	t.Cleanup(manager.CloseAll)
	return h
}

func (h *harness) seenModels() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.models...)
}

func (h *harness) do(t *testing.T, method, path, user string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, h.server.URL+path, body)
	require.NoError(t, err)
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (h *harness) createSession(t *testing.T, user string) string {
	t.Helper()
	resp := h.do(t, http.MethodPost, "/v1/sessions", user, nil, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[sessionView](t, resp).ID
}

type upload struct {
	name, contentType string
	data              []byte
}

func multipartBody(t *testing.T, files ...upload) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, f.name))
		hdr.Set("Content-Type", f.contentType)
		part, err := mw.CreatePart(hdr)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func (h *harness) upload(t *testing.T, id, user string, files ...upload) uploadView {
	t.Helper()
	body, ct := multipartBody(t, files...)
	resp := h.do(t, http.MethodPost, "/v1/sessions/"+id+"/files", user, body, ct)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decode[uploadView](t, resp)
}

func TestFullAnalysisFlow(t *testing.T) {
	h := newHarness(t, 0)
	id := h.createSession(t, "dr-lee")

	up := h.upload(t, id, "dr-lee",
		upload{"lead-ii.png", "image/png", pngBytes},
		upload{"notes.pdf", "application/pdf", []byte("%PDF-1.4")},
	)
	require.Len(t, up.Accepted, 1)
	require.Len(t, up.Rejected, 1)
	assert.Equal(t, "unsupported_type", up.Rejected[0].Kind)
	assert.Equal(t, "Invalid file type: notes.pdf", up.Rejected[0].Message)
	previewURI := up.Accepted[0].PreviewURI
	require.NotEmpty(t, previewURI)

	resp := h.do(t, http.MethodGet, previewURI, "", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	resp = h.do(t, http.MethodPost, "/v1/sessions/"+id+"/analyze?model=v2&wait=true", "dr-lee", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	report := decode[reportView](t, resp)
	assert.Equal(t, sampleReport, report.Report)
	assert.Equal(t, "v2", report.Model)
	require.Len(t, report.Segments, 3)
	assert.Equal(t, "red", string(report.Segments[1].Color))
	assert.Equal(t, []string{"2"}, h.seenModels())

	resp = h.do(t, http.MethodGet, "/v1/sessions/"+id+"/document", "dr-lee", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `attachment; filename="ECG_Report.docx"`, resp.Header.Get("Content-Disposition"))
	doc, _ := io.ReadAll(resp.Body)
	assert.Equal(t, []byte("PK-docx"), doc)

	h.bridge.Wait()
	resp = h.do(t, http.MethodGet, "/v1/history", "dr-lee", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	hist := decode[historyView](t, resp)
	require.Len(t, hist.Items, 1)
	assert.Equal(t, 2, hist.Items[0].Model)

	resp = h.do(t, http.MethodGet, "/v1/history/latest", "dr-lee", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	latest := decode[historyItemView](t, resp)
	assert.Equal(t, hist.Items[0].ID, latest.ID)
	assert.Equal(t, sampleReport, latest.Report)

	resp = h.do(t, http.MethodGet, "/v1/history/latest", "someone-else", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = h.do(t, http.MethodGet, "/v1/sessions/"+id+"/notifications", "dr-lee", nil, "")
	notes := decode[[]map[string]any](t, resp)
	var messages []string
	for _, n := range notes {
		messages = append(messages, n["message"].(string))
	}
	assert.Contains(t, messages, "Invalid file type: notes.pdf")
	assert.Contains(t, messages, "Analysis complete")
	assert.Contains(t, messages, "Analysis saved to history")

	resp = h.do(t, http.MethodDelete, "/v1/sessions/"+id, "dr-lee", nil, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 0, h.registry.Len())
	resp = h.do(t, http.MethodGet, previewURI, "", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = h.do(t, http.MethodGet, "/v1/sessions/"+id, "dr-lee", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAnalyzeInBackground(t *testing.T) {
	h := newHarness(t, 0)
	id := h.createSession(t, "")
	h.upload(t, id, "", upload{"ecg.jpg", "image/jpeg", []byte("jpeg")})

	resp := h.do(t, http.MethodPost, "/v1/sessions/"+id+"/analyze", "", nil, "")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Eventually(t, func() bool {
		resp := h.do(t, http.MethodGet, "/v1/sessions/"+id, "", nil, "")
		v := decode[sessionView](t, resp)
		return v.State.Phase == "ready" && v.HasDocument
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"1"}, h.seenModels())
}

func TestAnalyzeErrors(t *testing.T) {
	h := newHarness(t, 0)
	id := h.createSession(t, "")

	resp := h.do(t, http.MethodPost, "/v1/sessions/"+id+"/analyze?wait=true", "", nil, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	body := decode[errorView](t, resp)
	assert.Equal(t, "no_file_selected", body.Kind)
	assert.Equal(t, "Please upload an ECG image first", body.Error)
	assert.Empty(t, h.seenModels())

	resp = h.do(t, http.MethodPost, "/v1/sessions/"+id+"/analyze?model=v9", "", nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	h.upload(t, id, "", upload{"ecg.png", "image/png", pngBytes})
	h.mu.Lock()
	h.status = http.StatusInternalServerError
	h.mu.Unlock()

	resp = h.do(t, http.MethodPost, "/v1/sessions/"+id+"/analyze?wait=true", "", nil, "")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	body = decode[errorView](t, resp)
	assert.Equal(t, "Failed to analyze ECG: Internal Server Error", body.Error)
	assert.Equal(t, "network", body.Category)

	resp = h.do(t, http.MethodGet, "/v1/sessions/"+id+"/document", "", nil, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = h.do(t, http.MethodGet, "/v1/sessions/"+id, "", nil, "")
	v := decode[sessionView](t, resp)
	assert.Equal(t, "failed", string(v.State.Phase))
	assert.False(t, v.State.Busy)
	require.NotNil(t, v.State.Failure)
	assert.Equal(t, "Internal Server Error", v.State.Failure.Detail)
}

func TestUploadSizeLimit(t *testing.T) {
	h := newHarness(t, 8)
	id := h.createSession(t, "")

	up := h.upload(t, id, "", upload{"big.png", "image/png", pngBytes})
	assert.Empty(t, up.Accepted)
	require.Len(t, up.Rejected, 1)
	assert.Equal(t, "size_exceeded", up.Rejected[0].Kind)
	assert.Equal(t, "File size exceeds 8 B limit", up.Rejected[0].Message)
}

func TestFileRemoval(t *testing.T) {
	h := newHarness(t, 0)
	id := h.createSession(t, "")
	up := h.upload(t, id, "",
		upload{"a.png", "image/png", pngBytes},
		upload{"b.png", "image/png", pngBytes},
	)
	require.Len(t, up.Accepted, 2)

	resp := h.do(t, http.MethodDelete, "/v1/sessions/"+id+"/files/"+string(up.Accepted[0].ID), "", nil, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = h.do(t, http.MethodDelete, "/v1/sessions/"+id+"/files/"+string(up.Accepted[0].ID), "", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, 1, h.registry.Len())

	resp = h.do(t, http.MethodDelete, "/v1/sessions/"+id+"/files", "", nil, "")
	assert.Equal(t, map[string]int{"removed": 1}, decode[map[string]int](t, resp))
	assert.Equal(t, 0, h.registry.Len())
}

func TestSessionAccess(t *testing.T) {
	h := newHarness(t, 0)
	id := h.createSession(t, "owner")

	resp := h.do(t, http.MethodGet, "/v1/sessions/"+id, "intruder", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = h.do(t, http.MethodGet, "/v1/sessions/"+id, "", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = h.do(t, http.MethodGet, "/v1/sessions/not-a-uuid", "owner", nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = h.do(t, http.MethodGet, "/v1/history", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp = h.do(t, http.MethodGet, "/v1/history/latest", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t, 0)
	h.createSession(t, "")

	resp := h.do(t, http.MethodGet, "/health", "", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, decode[map[string]any](t, resp)["sessions"])

	resp = h.do(t, http.MethodGet, "/readyz", "", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, decode[map[string]any](t, resp)["sessions"])

	resp = h.do(t, http.MethodGet, "/metrics", "", nil, "")
	m := decode[map[string]any](t, resp)
	assert.Contains(t, m, "analyses_total")
}
