package analyzer

import (
	"encoding/base64"
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepukochumon/ecg-analyzer/internal/domain/ecg"
)

func payload(t *testing.T, report, document string) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]string{"report": report, "document": document})
	require.NoError(t, err)
	return b
}

func TestDecodeRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for n := 0; n < 64; n++ {
		buf := make([]byte, n*13)
		rng.Read(buf)

		resp, err := Decode(payload(t, "report", base64.StdEncoding.EncodeToString(buf)))
		require.NoError(t, err)
		assert.Equal(t, len(buf), len(resp.DocumentBytes))
		assert.Equal(t, string(buf), string(resp.DocumentBytes))
	}
}

func TestDecodeKeepsReportVerbatim(t *testing.T) {
	text := "**Summary**\r\n- Normal or Abnormal: Normal\n\n  trailing  "
	resp, err := Decode(payload(t, text, "AAEC"))
	require.NoError(t, err)
	assert.Equal(t, text, resp.ReportText)
	assert.Equal(t, []byte{0, 1, 2}, resp.DocumentBytes)
}

func TestDecodeInvalidBase64(t *testing.T) {
	for _, doc := range []string{"AA*C", "AAE", "AAEC=", "@@@@"} {
		resp, err := Decode(payload(t, "report", doc))
		assert.ErrorIs(t, err, ecg.ErrInvalidBase64, doc)
		assert.Empty(t, resp.ReportText, "no partial artifacts")
		assert.Nil(t, resp.DocumentBytes)
	}
}

func TestDecodeMalformedPayload(t *testing.T) {
	for _, body := range []string{"", "not json", "null", `{"report":"x"}`, `{"document":"AAEC"}`, `{"report":1,"document":"AAEC"}`} {
		_, err := Decode([]byte(body))
		assert.ErrorIs(t, err, ecg.ErrMalformedPayload, body)
	}
}
