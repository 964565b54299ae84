package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/docuproof/verify-cli/internal/model"
)

// fakeExtractor returns a canned payload or error without shelling out.
type fakeExtractor struct {
	payload map[string]any
	err     error
}

func (f *fakeExtractor) Extract(_ context.Context, _ string) (map[string]any, error) {
	return f.payload, f.err
}

func testRouter(ext *fakeExtractor, limiter *rate.Limiter) http.Handler {
	return newRouter(serverDeps{
		extractor:      ext,
		registry:       model.DefaultRegistry(),
		extractLimiter: limiter,
		allowedOrigins: []string{"*"},
		timeout:        5 * time.Second,
	})
}

func openLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Inf, 1)
}

func postJSON(t *testing.T, router http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestHealthEndpoint(t *testing.T) {
	router := testRouter(&fakeExtractor{}, openLimiter())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	assert.NotEmpty(t, rr.Header().Get("X-Request-Id"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestFieldsEndpoint(t *testing.T) {
	router := testRouter(&fakeExtractor{}, openLimiter())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/fields", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Fields []model.FieldSpec `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Fields)
}

func TestVerifyEndpoint(t *testing.T) {
	router := testRouter(&fakeExtractor{}, openLimiter())

	rr := postJSON(t, router, "/api/v1/verify", map[string]any{
		"ocrData":  map[string]any{"name": "Jon Smith", "name_confidence": 80},
		"userData": map[string]any{"name": "John Smith"},
	})
	require.Equal(t, http.StatusOK, rr.Code)

	var report struct {
		Results []struct {
			Field         string `json:"field"`
			Similarity    string `json:"similarity"`
			CombinedScore string `json:"combinedScore"`
			Status        string `json:"status"`
		} `json:"results"`
		AverageConfidence string `json:"averageConfidence"`
		TotalFields       int    `json:"totalFields"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	require.Len(t, report.Results, 1)
	assert.Equal(t, "name", report.Results[0].Field)
	assert.Equal(t, "90.00", report.Results[0].Similarity)
	assert.Equal(t, "85.50", report.Results[0].CombinedScore)
	assert.Equal(t, "PartialMatch", report.Results[0].Status)
	assert.Equal(t, "85.50", report.AverageConfidence)
	assert.Equal(t, 1, report.TotalFields)
}

func TestVerifyEndpoint_BothEmpty(t *testing.T) {
	router := testRouter(&fakeExtractor{}, openLimiter())

	rr := postJSON(t, router, "/api/v1/verify", map[string]any{
		"ocrData":  map[string]any{},
		"userData": map[string]any{},
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "missing")
}

func TestVerifyEndpoint_AbsentInput(t *testing.T) {
	router := testRouter(&fakeExtractor{}, openLimiter())

	// Either mapping absent (or null) is a client error. An empty object is a
	// present mapping and still verifies.
	for name, body := range map[string]string{
		"no userData":   `{"ocrData":{"name":"Jon Smith"}}`,
		"no ocrData":    `{"userData":{"name":"John Smith"}}`,
		"null userData": `{"ocrData":{"name":"Jon Smith"},"userData":null}`,
		"empty body":    `{}`,
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/verify", bytes.NewBufferString(body))
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			assert.Equal(t, http.StatusBadRequest, rr.Code)

			var resp map[string]string
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Contains(t, resp["error"], "required")
		})
	}

	t.Run("empty userData object still verifies", func(t *testing.T) {
		rr := postJSON(t, router, "/api/v1/verify", map[string]any{
			"ocrData":  map[string]any{"name": "Jon Smith"},
			"userData": map[string]any{},
		})
		require.Equal(t, http.StatusOK, rr.Code)

		var report struct {
			Results []struct {
				Status string `json:"status"`
			} `json:"results"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
		require.Len(t, report.Results, 1)
		assert.Equal(t, "OcrPresent", report.Results[0].Status)
	})
}

func TestVerifyEndpoint_InvalidBody(t *testing.T) {
	router := testRouter(&fakeExtractor{}, openLimiter())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/verify", bytes.NewBufferString("not json"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestExtractEndpoint(t *testing.T) {
	ext := &fakeExtractor{payload: map[string]any{
		"fields":      map[string]any{"city": "Pune"},
		"fields_meta": map[string]any{"city_confidence": 60.0},
	}}
	router := testRouter(ext, openLimiter())

	t.Run("returns raw payload", func(t *testing.T) {
		rr := postJSON(t, router, "/api/v1/extract", map[string]any{
			"imagePath": "/tmp/form.jpg",
		})
		require.Equal(t, http.StatusOK, rr.Code)

		var payload map[string]any
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload))
		assert.Contains(t, payload, "fields")
	})

	t.Run("chains into verification with userData", func(t *testing.T) {
		rr := postJSON(t, router, "/api/v1/extract", map[string]any{
			"imagePath": "/tmp/form.jpg",
			"userData":  map[string]any{"city": "pune"},
		})
		require.Equal(t, http.StatusOK, rr.Code)

		var report struct {
			Results []struct {
				Status        string `json:"status"`
				CombinedScore string `json:"combinedScore"`
			} `json:"results"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
		require.Len(t, report.Results, 1)
		assert.Equal(t, "PartialMatch", report.Results[0].Status)
		assert.Equal(t, "82.00", report.Results[0].CombinedScore)
	})

	t.Run("requires imagePath", func(t *testing.T) {
		rr := postJSON(t, router, "/api/v1/extract", map[string]any{})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestExtractEndpoint_UpstreamFailure(t *testing.T) {
	router := testRouter(&fakeExtractor{err: eris.New("ocr exploded")}, openLimiter())

	rr := postJSON(t, router, "/api/v1/extract", map[string]any{
		"imagePath": "/tmp/form.jpg",
	})
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestExtractEndpoint_RateLimited(t *testing.T) {
	router := testRouter(&fakeExtractor{payload: map[string]any{}}, rate.NewLimiter(0, 0))

	rr := postJSON(t, router, "/api/v1/extract", map[string]any{
		"imagePath": "/tmp/form.jpg",
	})
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
}

func TestShutdownServerDrainsInFlight(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	release := make(chan struct{})
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	})}
	go srv.Serve(ln)

	type result struct {
		status int
		err    error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := http.Get("http://" + ln.Addr().String())
		if err != nil {
			done <- result{err: err}
			return
		}
		resp.Body.Close()
		done <- result{status: resp.StatusCode}
	}()

	// Let the request reach the handler, then release it while shutdown is
	// draining. Shutdown must wait for it rather than cutting the connection.
	time.Sleep(50 * time.Millisecond)
	go func() {
		time.Sleep(50 * time.Millisecond)
		close(release)
	}()

	start := time.Now()
	shutdownServer(srv)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, http.StatusOK, res.status)
}
