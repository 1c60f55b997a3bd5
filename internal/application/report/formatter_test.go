package report

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/deepukochumon/ecg-analyzer/internal/domain/ecg"
)

func TestFormatSummaryReport(t *testing.T) {
	text := "**Summary**\n" +
		"- Normal or Abnormal: Normal\n" +
		"- Heart rate looks stable\n" +
		"Some closing remark."

	got := Format(text)
	want := []ecg.ReportSegment{
		ecg.Heading("Summary"),
		ecg.StatusBullet("Normal or Abnormal", "Normal", ecg.ColorGreen),
		ecg.PlainBullet("Heart rate looks stable"),
		ecg.Paragraph("Some closing remark."),
	}
	assert.Equal(t, want, got)
}

func TestFormatStatusColors(t *testing.T) {
	cases := map[string]ecg.Color{
		"- Normal or Abnormal: Abnormal":            ecg.ColorRed,
		"- Normal or Abnormal: abnormal rhythm":     ecg.ColorRed,
		"- Normal or Abnormal: Normal sinus rhythm": ecg.ColorGreen,
		"- Normal or Abnormal: Inconclusive":        ecg.ColorYellow,
		"-Normal or Abnormal:":                      ecg.ColorYellow,
	}
	for line, color := range cases {
		segs := Format(line)
		if assert.Len(t, segs, 1, line) {
			assert.Equal(t, ecg.SegmentStatusBullet, segs[0].Kind, line)
			assert.Equal(t, color, segs[0].Color, line)
		}
	}
}

func TestFormatPrecedenceAndEdges(t *testing.T) {
	got := Format("**Findings**\n\n**\n***\n*\n-x\n-\n  - indented\n**Bold** text\r\n- Normal or Abnormal missing colon")
	want := []ecg.ReportSegment{
		ecg.Heading("Findings"),
		ecg.Paragraph(""),
		ecg.Heading(""),
		ecg.Heading(""),
		ecg.Paragraph("*"),
		ecg.PlainBullet(""),
		ecg.PlainBullet(""),
		ecg.Paragraph("  - indented"),
		ecg.Paragraph("**Bold** text"),
		ecg.PlainBullet("Normal or Abnormal missing colon"),
	}
	assert.Equal(t, want, got)
}

func TestFormatIsDeterministic(t *testing.T) {
	text := "**A**\n- b\nc"
	assert.Equal(t, Format(text), Format(text))
	assert.Len(t, Format(""), 1)
}
