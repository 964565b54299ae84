package model

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Status is the per-field reconciliation outcome category.
type Status string

const (
	// StatusMatch means the combined score met the match threshold.
	StatusMatch Status = "Match"
	// StatusPartialMatch means the combined score fell between the partial
	// and match thresholds.
	StatusPartialMatch Status = "PartialMatch"
	// StatusMismatch means the combined score fell below the partial threshold.
	StatusMismatch Status = "Mismatch"
	// StatusNotProvided means neither OCR nor the user supplied a value.
	StatusNotProvided Status = "NotProvided"
	// StatusUserAdded means the user supplied a value OCR did not detect.
	StatusUserAdded Status = "UserAdded"
	// StatusOcrPresent means OCR detected a value the user left empty.
	StatusOcrPresent Status = "OcrPresent"
)

// Score is a percentage in [0,100] that marshals as a quoted two-decimal
// string ("85.50"), matching the wire contract consumed by the review UI.
// It unmarshals from either a quoted string or a bare number.
type Score float64

// MarshalJSON renders the score as a quoted two-decimal string.
func (s Score) MarshalJSON() ([]byte, error) {
	return []byte(`"` + strconv.FormatFloat(float64(s), 'f', 2, 64) + `"`), nil
}

// UnmarshalJSON accepts "85.50", 85.5, or null (left as zero).
func (s *Score) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return nil
	}
	raw = strings.Trim(raw, `"`)
	if raw == "" {
		*s = 0
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return eris.Wrapf(err, "model: parse score %q", raw)
	}
	*s = Score(f)
	return nil
}

// VerificationOutcome is the reconciliation result for a single field.
type VerificationOutcome struct {
	Field         string  `json:"field"`
	OcrValue      string  `json:"ocrValue"`
	UserValue     string  `json:"userValue"`
	Similarity    Score   `json:"similarity"`
	OcrConfidence float64 `json:"ocr_confidence"`
	CombinedScore Score   `json:"combinedScore"`
	Status        Status  `json:"status"`
	Notes         string  `json:"notes"`
}

// VerificationReport aggregates per-field outcomes for one document.
// It is built fresh per request and never mutated afterwards.
type VerificationReport struct {
	Results            []VerificationOutcome `json:"results"`
	AverageConfidence  Score                 `json:"averageConfidence"`
	TotalFields        int                   `json:"totalFields"`
	MatchedFields      int                   `json:"matchedFields"`
	PartialMatchFields int                   `json:"partialMatchFields"`
	MismatchFields     int                   `json:"mismatchFields"`
}
