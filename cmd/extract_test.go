package main

import (
	"testing"

	"github.com/docuproof/verify-cli/internal/model"
)

func TestAnnotateInvalidFields(t *testing.T) {
	registry := model.DefaultRegistry()

	// Nested and flat payloads, valid and invalid values, metadata, unknown
	// keys. Annotation only logs; the payload must come through untouched.
	payloads := []map[string]any{
		{
			"fields": map[string]any{
				"email":    "not-an-email",
				"pin_code": "560001",
				"mystery":  "unknown keys are skipped",
			},
		},
		{
			"email":    "jane@example.com",
			"raw_text": "Email: jane@example.com",
			"lines":    []any{"Email: jane@example.com"},
		},
	}

	for _, payload := range payloads {
		before := len(payload)
		annotateInvalidFields(registry, payload)
		if len(payload) != before {
			t.Fatalf("payload mutated: %v", payload)
		}
	}
}
