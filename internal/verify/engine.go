// Package verify reconciles machine-extracted OCR fields against
// user-corrected fields and produces a per-field match report with an
// aggregate document confidence. The engine is a pure function of its two
// inputs: no I/O, no state across invocations.
package verify

import (
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/docuproof/verify-cli/internal/model"
)

// Policy constants for classification and confidence blending. Fixed, not
// per-call configuration.
const (
	// MatchThreshold is the combined score at or above which a field is a Match.
	MatchThreshold = 95.0
	// PartialMatchThreshold is the combined score at or above which a field
	// is at least a PartialMatch.
	PartialMatchThreshold = 75.0
	// SimilarityWeight scales textual similarity in the combined score.
	// Content agreement is stronger evidence than the extractor's
	// self-reported confidence, hence the heavier weight.
	SimilarityWeight = 0.55
	// ConfidenceWeight scales the OCR stage's per-field confidence.
	ConfidenceWeight = 0.45
)

// Notes attached to outcomes whose status needs explaining.
const (
	noteNotProvided = "No value provided by either OCR or user"
	noteUserAdded   = "Value provided by user but not detected by OCR"
	noteOcrPresent  = "OCR found a value but user left the field empty"
	noteMismatch    = "Values differ significantly; please verify the correct value"
)

// maxParallelFields caps the per-field scoring fan-out.
const maxParallelFields = 8

// ErrInvalidInput is returned when both input mappings are absent or empty;
// nothing is computed in that case.
var ErrInvalidInput = eris.New("verify: both ocrData and userData are missing")

// Verify reconciles an OCR field payload (flat or nested shape) against a
// flat user-edited mapping and returns the per-field report. Malformed
// per-field data degrades to safe defaults; only a fully absent input pair
// fails.
func Verify(ocrData, userData map[string]any) (*model.VerificationReport, error) {
	if len(ocrData) == 0 && len(userData) == 0 {
		return nil, ErrInvalidInput
	}

	src := normalizeOCR(ocrData)
	keys := fieldKeys(src, userData)

	results := make([]model.VerificationOutcome, len(keys))

	var g errgroup.Group
	g.SetLimit(maxParallelFields)
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			results[i] = evaluate(key, src.value(key), src.confidence(key), asString(userData[key]))
			return nil
		})
	}
	// Field evaluation cannot fail; Wait only synchronizes the fan-in.
	_ = g.Wait()

	return aggregate(results), nil
}

// evaluate scores a single field. The four presence cases are mutually
// exclusive and checked in priority order; only the both-present case runs
// the scorer and combiner.
func evaluate(key, ocrValue string, ocrConfidence float64, userValue string) model.VerificationOutcome {
	ocrValue = strings.TrimSpace(ocrValue)
	userValue = strings.TrimSpace(userValue)

	out := model.VerificationOutcome{
		Field:         key,
		OcrValue:      ocrValue,
		UserValue:     userValue,
		OcrConfidence: ocrConfidence,
	}

	switch {
	case userValue == "" && ocrValue == "":
		out.Status = model.StatusNotProvided
		out.Notes = noteNotProvided
	case userValue != "" && ocrValue == "":
		out.Status = model.StatusUserAdded
		out.Notes = noteUserAdded
	case userValue == "" && ocrValue != "":
		out.Status = model.StatusOcrPresent
		out.Notes = noteOcrPresent
	default:
		similarity := round2(Similarity(ocrValue, userValue))
		combined := similarity
		if ocrConfidence > 0 {
			combined = round2(SimilarityWeight*similarity + ConfidenceWeight*ocrConfidence)
		}
		out.Similarity = model.Score(similarity)
		out.CombinedScore = model.Score(combined)
		out.Status, out.Notes = classify(combined)
	}

	return out
}

// classify maps a combined score to its status band.
func classify(combined float64) (model.Status, string) {
	switch {
	case combined >= MatchThreshold:
		return model.StatusMatch, ""
	case combined >= PartialMatchThreshold:
		return model.StatusPartialMatch, ""
	default:
		return model.StatusMismatch, noteMismatch
	}
}

// aggregate folds per-field outcomes into report-level statistics. Outcomes
// from the one-sided presence cases carry a zero combined score and
// deliberately depress the average.
func aggregate(results []model.VerificationOutcome) *model.VerificationReport {
	report := &model.VerificationReport{
		Results:     results,
		TotalFields: len(results),
	}
	if report.Results == nil {
		report.Results = []model.VerificationOutcome{}
	}

	var total float64
	for _, r := range results {
		total += float64(r.CombinedScore)
		switch r.Status {
		case model.StatusMatch:
			report.MatchedFields++
		case model.StatusPartialMatch:
			report.PartialMatchFields++
		case model.StatusMismatch:
			report.MismatchFields++
		}
	}
	if len(results) > 0 {
		report.AverageConfidence = model.Score(round2(total / float64(len(results))))
	}

	return report
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
