package ocr

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

// FileExtractor reads a pre-extracted payload from a sidecar JSON file next
// to the image (<image>.json by default). Useful for offline runs and for
// replaying captured extractions.
type FileExtractor struct {
	suffix string
}

// NewFileExtractor creates a FileExtractor. If suffix is empty, ".json" is used.
func NewFileExtractor(suffix string) *FileExtractor {
	if suffix == "" {
		suffix = ".json"
	}
	return &FileExtractor{suffix: suffix}
}

// Extract loads the sidecar payload for imagePath. A path that already ends
// in the sidecar suffix is read directly.
func (f *FileExtractor) Extract(_ context.Context, imagePath string) (map[string]any, error) {
	path := imagePath
	if !strings.HasSuffix(path, f.suffix) {
		path += f.suffix
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ocr: read sidecar %s", path)
	}

	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, eris.Wrapf(err, "ocr: parse sidecar %s", path)
	}
	return payload, nil
}
