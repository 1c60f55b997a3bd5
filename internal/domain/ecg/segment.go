package ecg

// SegmentKind enum
type SegmentKind string

const (
	SegmentHeading      SegmentKind = "heading"
	SegmentStatusBullet SegmentKind = "status_bullet"
	SegmentPlainBullet  SegmentKind = "plain_bullet"
	SegmentParagraph    SegmentKind = "paragraph"
)

// Color classes for status bullets.
type Color string

const (
	ColorNone   Color = ""
	ColorGreen  Color = "green"
	ColorRed    Color = "red"
	ColorYellow Color = "yellow"
)

// ReportSegment is one display line of a report. Which fields are set
// depends on Kind: Text for heading, plain bullet and paragraph; Label,
// Value and Color for status bullets.
type ReportSegment struct {
	Kind  SegmentKind `json:"kind"`
	Text  string      `json:"text,omitempty"`
	Label string      `json:"label,omitempty"`
	Value string      `json:"value,omitempty"`
	Color Color       `json:"color,omitempty"`
}

func Heading(text string) ReportSegment {
	return ReportSegment{Kind: SegmentHeading, Text: text}
}

func StatusBullet(label, value string, color Color) ReportSegment {
	return ReportSegment{Kind: SegmentStatusBullet, Label: label, Value: value, Color: color}
}

func PlainBullet(text string) ReportSegment {
	return ReportSegment{Kind: SegmentPlainBullet, Text: text}
}

func Paragraph(text string) ReportSegment {
	return ReportSegment{Kind: SegmentParagraph, Text: text}
}
