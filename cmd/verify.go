package main

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/docuproof/verify-cli/internal/verify"
)

var (
	verifyOCRArg  string
	verifyUserArg string
	verifyOutput  string
	verifyPretty  bool
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Reconcile OCR fields against user-edited fields",
	Long: `Compare an OCR field payload with user-corrected values and print a
per-field verification report.

Both --ocr and --user accept inline JSON or @path to read a JSON file.

Examples:
  # Inline JSON
  verify --ocr '{"name":"Jon Smith","name_confidence":80}' --user '{"name":"John Smith"}'

  # From files
  verify --ocr @extraction.json --user @corrections.json --pretty`,
	RunE: runVerify,
}

func init() {
	f := verifyCmd.Flags()
	f.StringVar(&verifyOCRArg, "ocr", "", "OCR payload: inline JSON or @file")
	f.StringVar(&verifyUserArg, "user", "", "user-edited fields: inline JSON or @file")
	f.StringVar(&verifyOutput, "output", "", "output file path (default: stdout)")
	f.BoolVar(&verifyPretty, "pretty", false, "indent the JSON report")

	_ = verifyCmd.MarkFlagRequired("ocr")
	_ = verifyCmd.MarkFlagRequired("user")

	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, _ []string) error {
	ocrData, err := decodeMappingArg(verifyOCRArg)
	if err != nil {
		return eris.Wrap(err, "verify: parse --ocr")
	}
	userData, err := decodeMappingArg(verifyUserArg)
	if err != nil {
		return eris.Wrap(err, "verify: parse --user")
	}
	// Cobra enforces flag presence; this catches "" and JSON null, which decode
	// to an absent mapping. Empty objects flow through.
	if ocrData == nil || userData == nil {
		return eris.New("verify: --ocr and --user must each be a JSON object")
	}

	report, err := verify.Verify(ocrData, userData)
	if err != nil {
		return err
	}

	zap.L().Debug("verification complete",
		zap.Int("fields", report.TotalFields),
		zap.Float64("average_confidence", float64(report.AverageConfidence)),
	)

	out := os.Stdout
	if verifyOutput != "" {
		fh, err := os.Create(verifyOutput)
		if err != nil {
			return eris.Wrapf(err, "verify: create %s", verifyOutput)
		}
		defer fh.Close()
		out = fh
	}

	enc := json.NewEncoder(out)
	if verifyPretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(report)
}

// decodeMappingArg parses an inline JSON object or, with a leading @, the
// contents of a JSON file. An empty argument decodes to a nil mapping, which
// the engine treats as an absent input.
func decodeMappingArg(arg string) (map[string]any, error) {
	if strings.TrimSpace(arg) == "" {
		return nil, nil
	}

	raw := []byte(arg)
	if strings.HasPrefix(arg, "@") {
		data, err := os.ReadFile(strings.TrimPrefix(arg, "@"))
		if err != nil {
			return nil, eris.Wrap(err, "read file argument")
		}
		raw = data
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, eris.Wrap(err, "decode JSON mapping")
	}
	return m, nil
}
