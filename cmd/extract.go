package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/docuproof/verify-cli/internal/model"
	"github.com/docuproof/verify-cli/internal/ocr"
	"github.com/docuproof/verify-cli/internal/verify"
)

var (
	extractUserFile string
	extractOutput   string
)

var extractCmd = &cobra.Command{
	Use:   "extract <image>",
	Short: "Run the OCR stage on a document image",
	Long: `Invoke the configured OCR extraction process on a document image and
print its field payload. With --user, the payload is immediately verified
against the given user-edited JSON file and the verification report is
printed instead.

Examples:
  extract scans/form-12.jpg
  extract scans/form-12.jpg --user corrections.json`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	f := extractCmd.Flags()
	f.StringVar(&extractUserFile, "user", "", "user-edited fields JSON file; verify the extraction against it")
	f.StringVar(&extractOutput, "output", "", "output file path (default: stdout)")

	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	imagePath := args[0]
	log := zap.L().With(zap.String("image", imagePath))

	extractor, err := ocr.NewExtractor(cfg.OCR)
	if err != nil {
		return err
	}

	payload, err := extractor.Extract(ctx, imagePath)
	if err != nil {
		return err
	}
	log.Info("extraction complete", zap.Int("keys", len(payload)))

	registry := loadRegistry()
	annotateInvalidFields(registry, payload)

	out := os.Stdout
	if extractOutput != "" {
		fh, err := os.Create(extractOutput)
		if err != nil {
			return eris.Wrapf(err, "extract: create %s", extractOutput)
		}
		defer fh.Close()
		out = fh
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")

	if extractUserFile == "" {
		return enc.Encode(payload)
	}

	userData, err := decodeMappingArg("@" + extractUserFile)
	if err != nil {
		return eris.Wrap(err, "extract: parse --user")
	}
	if userData == nil {
		return eris.New("extract: --user must be a JSON object")
	}
	report, err := verify.Verify(payload, userData)
	if err != nil {
		return err
	}
	return enc.Encode(report)
}

// loadRegistry returns the configured field registry, falling back to the
// built-in identity-document set.
func loadRegistry() *model.FieldRegistry {
	if cfg.Fields.RegistryPath == "" {
		return model.DefaultRegistry()
	}
	registry, err := model.LoadRegistry(cfg.Fields.RegistryPath)
	if err != nil {
		zap.L().Warn("falling back to built-in field registry", zap.Error(err))
		return model.DefaultRegistry()
	}
	return registry
}

// annotateInvalidFields logs extracted values that fail their field's
// validation pattern. The payload itself is left untouched: the verification
// engine, not the registry, judges the values.
func annotateInvalidFields(registry *model.FieldRegistry, payload map[string]any) {
	fields, ok := payload["fields"].(map[string]any)
	if !ok {
		fields = payload
	}
	for key, value := range fields {
		spec := registry.Canonical(key)
		if spec == nil {
			continue
		}
		s, ok := value.(string)
		if !ok || s == "" {
			continue
		}
		if !spec.Validate(s) {
			zap.L().Warn("extracted value fails field validation",
				zap.String("field", spec.Key),
				zap.String("value", s),
			)
		}
	}
}
