package intake

import (
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/deepukochumon/ecg-analyzer/internal/domain/ecg"
)

// MaxFileSize is the default upload limit (10 MiB).
const MaxFileSize int64 = 10 * 1024 * 1024

// DefaultExtensions accepted at intake.
var DefaultExtensions = []string{".jpg", ".jpeg", ".png"}

// Validator classifies candidate files as accepted or rejected. It is pure
// and holds no state besides its limits.
type Validator struct {
	MaxBytes   int64
	Extensions []string
}

func Default() Validator {
	return Validator{MaxBytes: MaxFileSize, Extensions: DefaultExtensions}
}

// Validate returns nil when the file is accepted, otherwise an *ecg.Error
// of kind size_exceeded or unsupported_type. Size is checked first.
func (v Validator) Validate(f ecg.CandidateFile) error {
	limit := v.MaxBytes
	if limit <= 0 {
		limit = MaxFileSize
	}
	if f.SizeBytes > limit {
		return ecg.NewError(ecg.KindSizeExceeded, humanize.IBytes(uint64(limit)), nil)
	}

	exts := v.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	ext := strings.ToLower(filepath.Ext(f.Name))
	for _, allowed := range exts {
		if ext != "" && ext == strings.ToLower(allowed) {
			return nil
		}
	}
	return ecg.NewError(ecg.KindUnsupportedType, f.Name, nil)
}

// NewCandidate builds the intake record for an uploaded file. The media type
// is sniffed from the content when the client did not declare a useful one.
func NewCandidate(name, declaredType string, data []byte) ecg.CandidateFile {
	mimeType := strings.TrimSpace(declaredType)
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = mimetype.Detect(data).String()
	}
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	return ecg.CandidateFile{
		ID:        ecg.FileID(uuid.New().String()),
		Name:      sanitizeName(name),
		SizeBytes: int64(len(data)),
		MimeType:  mimeType,
		Data:      data,
	}
}

// Describe renders the file size for listings, e.g. "2.3 MB".
func Describe(f ecg.CandidateFile) string {
	return humanize.Bytes(uint64(f.SizeBytes))
}

// sanitizeName keeps the base name and drops control characters
func sanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		if r >= 32 && r != 127 {
			b.WriteRune(r)
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" || out == "." || out == "/" {
		return "upload"
	}
	return out
}
