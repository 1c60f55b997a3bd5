package terminal

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/deepukochumon/ecg-analyzer/internal/domain/ecg"
	domain "github.com/deepukochumon/ecg-analyzer/internal/domain/history"
)

func TestReportPlainOutput(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf)

	out := r.Report([]ecg.ReportSegment{
		ecg.Heading("Summary"),
		ecg.StatusBullet("Normal or Abnormal", "Abnormal", ecg.ColorRed),
		ecg.PlainBullet("ST elevation"),
		ecg.Paragraph("See cardiologist."),
	})
	lines := strings.Split(out, "\n")
	assert.Equal(t, []string{
		"Summary",
		"• Normal or Abnormal: Abnormal",
		"• ST elevation",
		"See cardiologist.",
	}, lines)
}

func TestNotificationAndFile(t *testing.T) {
	r := New(&bytes.Buffer{})
	assert.Equal(t, "[error] Please upload an ECG image first",
		r.Notification(ecg.Notification{Level: ecg.LevelError, Message: "Please upload an ECG image first"}))
	assert.Equal(t, "lead.png (2.1 MB)", r.File(ecg.CandidateFile{Name: "lead.png", SizeBytes: 2_100_000}))
}

func TestHistory(t *testing.T) {
	r := New(&bytes.Buffer{})
	assert.Equal(t, "no analyses saved yet", r.History(nil))

	out := r.History([]*domain.Analysis{{
		ID:          "a-1",
		Model:       2,
		Report:      "\n**Summary**\n- Normal or Abnormal: Normal",
		DocumentURL: "http://minio/ecg/u/a-1/ECG_Report.docx",
		CreatedAt:   time.Now().Add(-2 * time.Hour),
	}})
	assert.Contains(t, out, "a-1  model 2  2 hours ago")
	assert.Contains(t, out, "\n  Summary")
	assert.Contains(t, out, "ECG_Report.docx")
}
