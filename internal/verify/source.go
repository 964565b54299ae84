package verify

import (
	"sort"
	"strconv"
	"strings"
)

// metadataKeys are whole-document keys the OCR stage mixes into the same
// mapping as field values. They are never treated as fields.
var metadataKeys = map[string]struct{}{
	"raw_text":           {},
	"lines":              {},
	"raw_lines":          {},
	"text":               {},
	"average_confidence": {},
	"fields":             {},
	"fields_meta":        {},
	"confidence":         {},
	"error":              {},
}

// confidenceSuffix marks sibling keys that carry a field's confidence in the
// flat OCR payload shape.
const confidenceSuffix = "_confidence"

// ocrSource is the canonical form of an OCR payload: a resolution map of
// field values and per-field confidences, plus the keys that contribute to
// the reconciled field set. Document metadata is stripped.
type ocrSource struct {
	keys        []string
	values      map[string]string
	confidences map[string]float64
}

// value returns the resolved OCR value for key, or "" when absent.
func (s ocrSource) value(key string) string {
	return s.values[key]
}

// confidence returns the resolved OCR confidence for key, or 0 when absent.
func (s ocrSource) confidence(key string) float64 {
	return s.confidences[key]
}

// normalizeOCR folds either OCR payload shape into canonical form.
//
// The nested shape carries values under "fields" and confidences under
// "fields_meta" keyed "<field>_confidence". The flat shape carries values at
// the top level with "<field>_confidence" siblings. When the nested shape is
// present only its keys contribute to the field set, but values and
// confidences still fall back to the top level for keys the user supplies.
// A payload that is neither shape normalizes to zero fields rather than
// failing.
func normalizeOCR(data map[string]any) ocrSource {
	src := ocrSource{
		values:      make(map[string]string),
		confidences: make(map[string]float64),
	}
	if data == nil {
		return src
	}

	// Top-level flat values and confidences first; nested overrides below.
	for k, v := range data {
		if strings.HasSuffix(k, confidenceSuffix) {
			src.confidences[strings.TrimSuffix(k, confidenceSuffix)] = asFloat(v)
			continue
		}
		if excludedKey(k) || !scalar(v) {
			continue
		}
		src.values[k] = asString(v)
	}

	nested, hasNested := data["fields"].(map[string]any)
	if !hasNested {
		for k := range src.values {
			src.keys = append(src.keys, k)
		}
		return src
	}

	for k, v := range nested {
		if excludedKey(k) || strings.HasSuffix(k, confidenceSuffix) || !scalar(v) {
			continue
		}
		src.values[k] = asString(v)
		src.keys = append(src.keys, k)
	}
	if meta, ok := data["fields_meta"].(map[string]any); ok {
		for k, v := range meta {
			field := strings.TrimSuffix(k, confidenceSuffix)
			if field == k {
				continue
			}
			src.confidences[field] = asFloat(v)
		}
	}
	return src
}

// fieldKeys returns the union of user keys and OCR field keys, excluded
// metadata removed, sorted ascending for deterministic report order.
func fieldKeys(src ocrSource, userData map[string]any) []string {
	seen := make(map[string]struct{}, len(src.keys)+len(userData))
	for _, k := range src.keys {
		seen[k] = struct{}{}
	}
	for k := range userData {
		if excludedKey(k) || strings.HasSuffix(k, confidenceSuffix) {
			continue
		}
		seen[k] = struct{}{}
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func excludedKey(k string) bool {
	_, ok := metadataKeys[k]
	return ok
}

// scalar reports whether a decoded JSON value has a usable string form.
func scalar(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return false
	default:
		return true
	}
}

// asString coerces an untrusted JSON value to a comparable string.
// Structured values have no string form and coerce to empty.
func asString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	default:
		return ""
	}
}

// asFloat coerces an untrusted confidence value, defaulting to 0 on any
// value that is not a number or numeric string, and clamping to [0,100].
func asFloat(v any) float64 {
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case int:
		f = float64(val)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}

	if f < 0 {
		return 0
	}
	if f > 100 {
		return 100
	}
	return f
}
