package report

import (
	"strings"

	"github.com/deepukochumon/ecg-analyzer/internal/domain/ecg"
)

const (
	headingMarker = "**"
	bulletMarker  = "-"
	statusLabel   = "Normal or Abnormal"
)

// Format splits report text into display segments, one per line, in source
// order. It is pure and cheap, so callers re-run it instead of caching.
func Format(text string) []ecg.ReportSegment {
	lines := strings.Split(text, "\n")
	out := make([]ecg.ReportSegment, 0, len(lines))
	for _, line := range lines {
		out = append(out, classify(strings.TrimSuffix(line, "\r")))
	}
	return out
}

func classify(line string) ecg.ReportSegment {
	switch {
	// a bare "**" both starts and ends with the marker: an empty heading
	case strings.HasPrefix(line, headingMarker) && strings.HasSuffix(line, headingMarker):
		return ecg.Heading(strings.ReplaceAll(line, headingMarker, ""))

	case strings.HasPrefix(line, bulletMarker) && strings.Contains(line, statusLabel+":"):
		value := ""
		if i := strings.Index(line, ":"); i >= 0 {
			value = strings.TrimSpace(line[i+1:])
		}
		return ecg.StatusBullet(statusLabel, value, StatusColor(value))

	case strings.HasPrefix(line, bulletMarker):
		return ecg.PlainBullet(dropPrefix(line, 2))

	default:
		return ecg.Paragraph(line)
	}
}

// StatusColor picks the color class of a status value. "abnormal" is
// checked first because it contains "normal".
func StatusColor(value string) ecg.Color {
	v := strings.ToLower(value)
	switch {
	case strings.Contains(v, "abnormal"):
		return ecg.ColorRed
	case strings.Contains(v, "normal"):
		return ecg.ColorGreen
	default:
		return ecg.ColorYellow
	}
}

// dropPrefix removes the first n characters (runes), or everything when the
// line is shorter.
func dropPrefix(s string, n int) string {
	for i := range s {
		if n == 0 {
			return s[i:]
		}
		n--
	}
	return ""
}
