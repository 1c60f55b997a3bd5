package ecg

import (
	"fmt"
	"strings"
)

// Downloadable artifact naming for the decoded document.
const (
	DocumentFileName  = "ECG_Report.docx"
	DocumentMediaType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// FileID identifier type
type FileID string

// CandidateFile is a file staged for analysis. It is built once at intake;
// only PreviewURI changes afterwards, and only through the preview manager.
type CandidateFile struct {
	ID         FileID `json:"id"`
	Name       string `json:"name"`
	SizeBytes  int64  `json:"size_bytes"`
	MimeType   string `json:"mime_type"`
	Data       []byte `json:"-"`
	PreviewURI string `json:"preview_uri,omitempty"`
}

// IsImage reports whether the media type is an image subtype.
func (f CandidateFile) IsImage() bool {
	return strings.HasPrefix(strings.ToLower(f.MimeType), "image/")
}

// ModelVariant enum
type ModelVariant int

const (
	V1 ModelVariant = iota + 1
	V2
)

// Selector returns the wire-level numeric selector for the variant.
func (v ModelVariant) Selector() int {
	return int(v)
}

func (v ModelVariant) Valid() bool {
	return v == V1 || v == V2
}

func (v ModelVariant) String() string {
	switch v {
	case V1:
		return "v1"
	case V2:
		return "v2"
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}

// ParseModelVariant accepts "v1", "model1", "1" and their v2 counterparts.
// An empty string selects V1, matching the default model choice.
func ParseModelVariant(s string) (ModelVariant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "v1", "model1", "1":
		return V1, nil
	case "v2", "model2", "2":
		return V2, nil
	default:
		return 0, fmt.Errorf("unknown model variant: %q (allowed: v1, v2)", s)
	}
}

// AnalysisRequest exists for the duration of one dispatch.
type AnalysisRequest struct {
	Variant ModelVariant
	File    CandidateFile
}

// AnalysisResponse holds the decoded report and document.
type AnalysisResponse struct {
	ReportText    string `json:"report"`
	DocumentBytes []byte `json:"-"`
}

// HasDocument reports whether a document is available for download.
func (r AnalysisResponse) HasDocument() bool {
	return len(r.DocumentBytes) > 0
}
