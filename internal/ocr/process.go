package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/docuproof/verify-cli/internal/config"
	"github.com/docuproof/verify-cli/internal/resilience"
)

// ProcessExtractor shells out to the configured OCR command
// (e.g. `python3 ocr_service.py <image>`) and parses the JSON payload it
// prints to stdout. Invocations are rate limited and retried: the extraction
// process loads its model on demand and can fail transiently while warming up.
type ProcessExtractor struct {
	command string
	args    []string
	timeout time.Duration
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// NewProcessExtractor creates a ProcessExtractor from config.
func NewProcessExtractor(cfg config.OCRConfig) *ProcessExtractor {
	rateLimit := cfg.RateLimit
	if rateLimit <= 0 {
		rateLimit = 2
	}
	timeoutSecs := cfg.TimeoutSecs
	if timeoutSecs <= 0 {
		timeoutSecs = 120
	}
	retry := resilience.DefaultRetryConfig()
	if cfg.MaxAttempts > 0 {
		retry.MaxAttempts = cfg.MaxAttempts
	}
	retry.OnRetry = func(attempt int, err error) {
		zap.L().Warn("ocr: retrying extraction",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
	return &ProcessExtractor{
		command: cfg.Command,
		args:    cfg.Args,
		timeout: time.Duration(timeoutSecs) * time.Second,
		limiter: rate.NewLimiter(rate.Limit(rateLimit), 1),
		retry:   retry,
	}
}

// Extract runs the OCR command on the given image and returns the decoded
// payload.
func (p *ProcessExtractor) Extract(ctx context.Context, imagePath string) (map[string]any, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "ocr: rate limit wait")
	}

	return resilience.DoVal(ctx, p.retry, func(ctx context.Context) (map[string]any, error) {
		return p.run(ctx, imagePath)
	})
}

func (p *ProcessExtractor) run(ctx context.Context, imagePath string) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := append(append([]string{}, p.args...), imagePath)
	cmd := exec.CommandContext(ctx, p.command, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		return nil, eris.Wrapf(err, "ocr: %s failed for %s: %s", p.command, imagePath, stderr.String())
	}

	var payload map[string]any
	if err := json.Unmarshal(stdout.Bytes(), &payload); err != nil {
		return nil, eris.Wrapf(err, "ocr: parse payload for %s", imagePath)
	}

	zap.L().Debug("ocr: extraction complete",
		zap.String("image", imagePath),
		zap.Duration("took", time.Since(start)),
	)

	return payload, nil
}
