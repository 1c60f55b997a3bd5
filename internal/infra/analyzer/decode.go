package analyzer

import (
	"encoding/base64"
	"encoding/json"

	"github.com/deepukochumon/ecg-analyzer/internal/domain/ecg"
)

// wirePayload is the success body: {"report": "...", "document": "<base64>"}
type wirePayload struct {
	Report   *string `json:"report"`
	Document *string `json:"document"`
}

// Decode turns a success body into the report text and document bytes.
// Both must decode; on any error the zero response is returned.
func Decode(payload []byte) (ecg.AnalysisResponse, error) {
	var p wirePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return ecg.AnalysisResponse{}, ecg.NewError(ecg.KindMalformedPayload, "", err)
	}
	if p.Report == nil {
		return ecg.AnalysisResponse{}, ecg.NewError(ecg.KindMalformedPayload, "missing report", nil)
	}
	if p.Document == nil {
		return ecg.AnalysisResponse{}, ecg.NewError(ecg.KindMalformedPayload, "missing document", nil)
	}

	doc, err := base64.StdEncoding.DecodeString(*p.Document)
	if err != nil {
		return ecg.AnalysisResponse{}, ecg.NewError(ecg.KindInvalidBase64, "", err)
	}
	return ecg.AnalysisResponse{ReportText: *p.Report, DocumentBytes: doc}, nil
}

// Decoder adapts Decode to the ecg.Decoder port.
type Decoder struct{}

func (Decoder) Decode(payload []byte) (ecg.AnalysisResponse, error) {
	return Decode(payload)
}
