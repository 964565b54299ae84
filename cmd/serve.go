package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/docuproof/verify-cli/internal/model"
	"github.com/docuproof/verify-cli/internal/ocr"
	"github.com/docuproof/verify-cli/internal/verify"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the verification HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		extractor, err := ocr.NewExtractor(cfg.OCR)
		if err != nil {
			return err
		}

		deps := serverDeps{
			extractor:      extractor,
			registry:       loadRegistry(),
			extractLimiter: rate.NewLimiter(rate.Limit(cfg.OCR.RateLimit), 1),
			allowedOrigins: cfg.Server.AllowedOrigins,
			timeout:        time.Duration(cfg.Server.TimeoutSecs) * time.Second,
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(deps),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownServer(srv)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

const shutdownGrace = 10 * time.Second

// shutdownServer drains in-flight requests before closing. The signal context
// is already canceled by the time we get here, so the drain needs its own
// deadline.
func shutdownServer(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zap.L().Warn("server shutdown", zap.Error(err))
	}
}

// serverDeps carries the collaborators the HTTP handlers need.
type serverDeps struct {
	extractor      ocr.Extractor
	registry       *model.FieldRegistry
	extractLimiter *rate.Limiter
	allowedOrigins []string
	timeout        time.Duration
}

// newRouter builds the chi router for the verification service.
func newRouter(deps serverDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(requestID)
	r.Use(accessLog)
	r.Use(middleware.Recoverer)
	if deps.timeout > 0 {
		r.Use(middleware.Timeout(deps.timeout))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: deps.allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/api/v1/health", handleHealth)
	r.Get("/api/v1/fields", handleFields(deps.registry))
	r.Post("/api/v1/verify", handleVerify)
	r.Post("/api/v1/extract", handleExtract(deps))

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleFields(registry *model.FieldRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]any{"fields": registry.Fields})
	}
}

func handleVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OcrData  map[string]any `json:"ocrData"`
		UserData map[string]any `json:"userData"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	// Both mappings must be present. An empty object is a present mapping and
	// flows through; an absent or null key is a client error.
	if req.OcrData == nil || req.UserData == nil {
		respondError(w, http.StatusBadRequest, "ocrData and userData are both required")
		return
	}

	report, err := verify.Verify(req.OcrData, req.UserData)
	if err != nil {
		if eris.Is(err, verify.ErrInvalidInput) {
			respondError(w, http.StatusBadRequest, "ocrData and userData are both missing")
			return
		}
		zap.L().Error("verification failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "verification failed")
		return
	}

	respondJSON(w, http.StatusOK, report)
}

func handleExtract(deps serverDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ImagePath string         `json:"imagePath"`
			UserData  map[string]any `json:"userData"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.ImagePath == "" {
			respondError(w, http.StatusBadRequest, "imagePath is required")
			return
		}

		// Extraction shells out to the OCR process; keep it rate limited.
		if !deps.extractLimiter.Allow() {
			respondError(w, http.StatusTooManyRequests, "extraction rate limit exceeded")
			return
		}

		payload, err := deps.extractor.Extract(r.Context(), req.ImagePath)
		if err != nil {
			zap.L().Error("extraction failed",
				zap.String("image", req.ImagePath),
				zap.Error(err),
			)
			respondError(w, http.StatusBadGateway, "extraction failed")
			return
		}

		if req.UserData == nil {
			respondJSON(w, http.StatusOK, payload)
			return
		}

		report, err := verify.Verify(payload, req.UserData)
		if err != nil {
			respondError(w, http.StatusBadRequest, "nothing to verify")
			return
		}
		respondJSON(w, http.StatusOK, report)
	}
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

type ctxKey int

const requestIDKey ctxKey = 0

// requestID tags each request with a UUID for log correlation.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// accessLog writes one structured log line per request.
func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		id, _ := r.Context().Value(requestIDKey).(string)
		zap.L().Info("request",
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
		)
	})
}
