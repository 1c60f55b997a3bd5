package analyzer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/deepukochumon/ecg-analyzer/internal/domain/ecg"
)

const (
	defaultTimeout     = 2 * time.Minute
	maxResponseBytes   = 64 << 20
	imageFieldName     = "image"
	transportErrorText = "transport error"
)

// Client talks to the remote analysis service:
// POST {BaseURL}/analyze?m={1|2} with a multipart "image" field.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// Send implements ecg.Transport. A non-2xx status becomes a RequestFailed
// error carrying the status text; the body is returned only on success.
func (c *Client) Send(ctx context.Context, req ecg.AnalysisRequest) ([]byte, error) {
	if !req.Variant.Valid() {
		return nil, fmt.Errorf("invalid model variant: %s", req.Variant)
	}
	body, contentType, err := encodeImage(req.File)
	if err != nil {
		return nil, fmt.Errorf("encode multipart body: %w", err)
	}

	url := fmt.Sprintf("%s/analyze?m=%d", c.BaseURL, req.Variant.Selector())
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("build analysis request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient().Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("send analysis request: %w", ctx.Err())
		}
		return nil, ecg.RequestFailed(transportErrorText, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, ecg.RequestFailed(statusText(resp), nil)
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("read analysis response: %w", ctx.Err())
		}
		return nil, ecg.RequestFailed(transportErrorText, err)
	}
	return payload, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

// statusText prefers the canonical text for the code ("Internal Server Error")
func statusText(resp *http.Response) string {
	if t := http.StatusText(resp.StatusCode); t != "" {
		return t
	}
	if s := strings.TrimSpace(strings.TrimPrefix(resp.Status, fmt.Sprint(resp.StatusCode))); s != "" {
		return s
	}
	return fmt.Sprintf("status %d", resp.StatusCode)
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func encodeImage(f ecg.CandidateFile) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		imageFieldName, quoteEscaper.Replace(f.Name)))
	ct := f.MimeType
	if ct == "" {
		ct = "application/octet-stream"
	}
	h.Set("Content-Type", ct)

	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(f.Data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
