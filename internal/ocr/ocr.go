// Package ocr wraps the external field-extraction stage. The extractor is a
// collaborator specified only at its boundary: given a document image it
// returns a JSON mapping of field values, optionally with per-field
// confidences, in either the flat or the nested payload shape.
package ocr

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/docuproof/verify-cli/internal/config"
)

// Extractor produces the raw OCR field payload for a document image.
type Extractor interface {
	Extract(ctx context.Context, imagePath string) (map[string]any, error)
}

// NewExtractor creates an Extractor based on config.
func NewExtractor(cfg config.OCRConfig) (Extractor, error) {
	switch cfg.Provider {
	case "process", "":
		if cfg.Command == "" {
			return nil, eris.New("ocr: process provider requires a command")
		}
		return NewProcessExtractor(cfg), nil
	case "file":
		return NewFileExtractor(cfg.SidecarSuffix), nil
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.Provider)
	}
}
