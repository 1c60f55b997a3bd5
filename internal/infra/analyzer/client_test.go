package analyzer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepukochumon/ecg-analyzer/internal/domain/ecg"
)

func testRequest(variant ecg.ModelVariant) ecg.AnalysisRequest {
	return ecg.AnalysisRequest{
		Variant: variant,
		File:    ecg.CandidateFile{Name: "ecg.png", MimeType: "image/png", Data: []byte("raw-bytes"), SizeBytes: 9},
	}
}

func TestSendPostsMultipartImage(t *testing.T) {
	for _, variant := range []ecg.ModelVariant{ecg.V1, ecg.V2} {
		var gotSelector, gotName, gotType string
		var gotBytes []byte

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/analyze", r.URL.Path)
			gotSelector = r.URL.Query().Get("m")

			f, hdr, err := r.FormFile("image")
			if !assert.NoError(t, err) {
				return
			}
			defer f.Close()
			gotName = hdr.Filename
			gotType = hdr.Header.Get("Content-Type")
			gotBytes, _ = io.ReadAll(f)

			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]string{
				"report":   "**Summary**",
				"document": base64.StdEncoding.EncodeToString([]byte("docx")),
			})
		}))

		c := NewClient(srv.URL+"/", time.Second)
		body, err := c.Send(context.Background(), testRequest(variant))
		srv.Close()
		require.NoError(t, err)

		assert.Equal(t, map[ecg.ModelVariant]string{ecg.V1: "1", ecg.V2: "2"}[variant], gotSelector)
		assert.Equal(t, "ecg.png", gotName)
		assert.Equal(t, "image/png", gotType)
		assert.Equal(t, []byte("raw-bytes"), gotBytes)

		resp, err := Decode(body)
		require.NoError(t, err)
		assert.Equal(t, "**Summary**", resp.ReportText)
		assert.Equal(t, []byte("docx"), resp.DocumentBytes)
	}
}

func TestSendNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model crashed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	body, err := NewClient(srv.URL, time.Second).Send(context.Background(), testRequest(ecg.V1))
	assert.Nil(t, body)
	require.ErrorIs(t, err, ecg.ErrRequestFailed)

	e, ok := ecg.AsError(err)
	require.True(t, ok)
	assert.Equal(t, "Internal Server Error", e.Detail)
}

func TestSendTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, time.Second).Send(context.Background(), testRequest(ecg.V1))
	assert.ErrorIs(t, err, ecg.ErrRequestFailed)
}

func TestSendHonoursCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := NewClient(srv.URL, 5*time.Second).Send(ctx, testRequest(ecg.V2))
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ecg.ErrRequestFailed)
}

func TestSendRejectsUnknownVariant(t *testing.T) {
	_, err := NewClient("http://127.0.0.1:1", time.Second).Send(context.Background(), testRequest(ecg.ModelVariant(7)))
	assert.Error(t, err)
}
