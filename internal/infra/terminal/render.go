package terminal

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/deepukochumon/ecg-analyzer/internal/domain/ecg"
	domain "github.com/deepukochumon/ecg-analyzer/internal/domain/history"
)

// Color palette.
var (
	colorRed    = lipgloss.Color("#ff5555")
	colorGreen  = lipgloss.Color("#50fa7b")
	colorYellow = lipgloss.Color("#f1fa8c")
	colorBlue   = lipgloss.Color("#8be9fd")
	colorDim    = lipgloss.Color("#6272a4")
	colorFg     = lipgloss.Color("#f8f8f2")
)

// Renderer draws report segments and notifications for a terminal. Color
// output follows what the writer supports; pipes get plain text.
type Renderer struct {
	heading lipgloss.Style
	label   lipgloss.Style
	bullet  lipgloss.Style
	text    lipgloss.Style
	dim     lipgloss.Style
	status  map[ecg.Color]lipgloss.Style
	levels  map[ecg.Level]lipgloss.Style
}

func New(w io.Writer) *Renderer {
	r := lipgloss.NewRenderer(w)
	return &Renderer{
		heading: r.NewStyle().Bold(true).Foreground(colorBlue),
		label:   r.NewStyle().Bold(true).Foreground(colorFg),
		bullet:  r.NewStyle().Foreground(colorDim),
		text:    r.NewStyle().Foreground(colorFg),
		dim:     r.NewStyle().Foreground(colorDim),
		status: map[ecg.Color]lipgloss.Style{
			ecg.ColorGreen:  r.NewStyle().Bold(true).Foreground(colorGreen),
			ecg.ColorRed:    r.NewStyle().Bold(true).Foreground(colorRed),
			ecg.ColorYellow: r.NewStyle().Bold(true).Foreground(colorYellow),
		},
		levels: map[ecg.Level]lipgloss.Style{
			ecg.LevelInfo:    r.NewStyle().Foreground(colorBlue),
			ecg.LevelSuccess: r.NewStyle().Foreground(colorGreen),
			ecg.LevelWarning: r.NewStyle().Foreground(colorYellow),
			ecg.LevelError:   r.NewStyle().Bold(true).Foreground(colorRed),
		},
	}
}

// Report renders one line per segment, in order.
func (r *Renderer) Report(segments []ecg.ReportSegment) string {
	lines := make([]string, 0, len(segments))
	for _, s := range segments {
		lines = append(lines, r.segment(s))
	}
	return strings.Join(lines, "\n")
}

func (r *Renderer) segment(s ecg.ReportSegment) string {
	switch s.Kind {
	case ecg.SegmentHeading:
		return r.heading.Render(s.Text)
	case ecg.SegmentStatusBullet:
		value, ok := r.status[s.Color]
		if !ok {
			value = r.text
		}
		return r.bullet.Render("•") + " " + r.label.Render(s.Label+":") + " " + value.Render(s.Value)
	case ecg.SegmentPlainBullet:
		return r.bullet.Render("•") + " " + r.text.Render(s.Text)
	default:
		return r.text.Render(s.Text)
	}
}

// Notification renders a toast-like status line.
func (r *Renderer) Notification(n ecg.Notification) string {
	style, ok := r.levels[n.Level]
	if !ok {
		style = r.text
	}
	return style.Render(fmt.Sprintf("[%s] %s", n.Level, n.Message))
}

// File renders an accepted upload with its human size.
func (r *Renderer) File(f ecg.CandidateFile) string {
	return r.text.Render(f.Name) + " " + r.dim.Render("("+humanize.Bytes(uint64(f.SizeBytes))+")")
}

// History renders a compact listing, newest first.
func (r *Renderer) History(items []*domain.Analysis) string {
	if len(items) == 0 {
		return r.dim.Render("no analyses saved yet")
	}
	lines := make([]string, 0, len(items))
	for _, a := range items {
		summary := firstLine(a.Report)
		line := fmt.Sprintf("%s  model %d  %s", r.label.Render(string(a.ID)), a.Model, r.dim.Render(humanize.Time(a.CreatedAt)))
		if summary != "" {
			line += "\n  " + r.text.Render(summary)
		}
		if a.DocumentURL != "" {
			line += "\n  " + r.dim.Render(a.DocumentURL)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func firstLine(report string) string {
	for _, l := range strings.Split(report, "\n") {
		l = strings.TrimSpace(strings.ReplaceAll(l, "**", ""))
		if l != "" {
			return l
		}
	}
	return ""
}
