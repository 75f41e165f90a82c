package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prepdeck/interviewd/pkg/gateway/config"
)

func testConfig() config.Config {
	return config.Config{
		AuthMode:              config.AuthModeDisabled,
		APIKeys:               map[string]struct{}{},
		CORSAllowedOrigins:    map[string]struct{}{},
		SessionDuration:       30 * time.Minute,
		SilenceAutoSubmit:     5 * time.Second,
		SilencePollInterval:   100 * time.Millisecond,
		AutosaveInterval:      30 * time.Second,
		SnapshotStaleness:     24 * time.Hour,
		MaxSessionsPerServer:  4,
		WSMaxAudioFrameBytes:  8192,
		WSMaxJSONMessageBytes: 64 * 1024,
		WSPingInterval:        20 * time.Second,
		WSWriteTimeout:        5 * time.Second,
		WSHandshakeTimeout:    5 * time.Second,
		WSMaxSessionDuration:  time.Minute,
		ReadHeaderTimeout:     10 * time.Second,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestServer_UnknownRoute_ReturnsJSON404(t *testing.T) {
	s := New(testConfig(), Deps{Logger: testLogger()})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/does-not-exist", nil)
	s.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("content-type=%q", ct)
	}
	if !strings.Contains(rr.Body.String(), `"type":"not_found_error"`) {
		t.Fatalf("unexpected body: %q", rr.Body.String())
	}
}

func TestServer_HealthRoutes_Reachable(t *testing.T) {
	s := New(testConfig(), Deps{Logger: testLogger()})

	for path, want := range map[string]int{"/healthz": http.StatusOK, "/readyz": http.StatusOK} {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		s.Handler().ServeHTTP(rr, req)
		if rr.Code != want {
			t.Fatalf("path %s status=%d body=%q", path, rr.Code, rr.Body.String())
		}
	}
}

func TestServer_InterviewRoute_Reachable(t *testing.T) {
	s := New(testConfig(), Deps{Logger: testLogger()})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/interview", nil)
	s.Handler().ServeHTTP(rr, req)
	if rr.Code == http.StatusNotFound {
		t.Fatalf("/v1/interview unexpectedly returned 404")
	}
}

func TestServer_RequestIDHeaderSet(t *testing.T) {
	s := New(testConfig(), Deps{Logger: testLogger()})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.Handler().ServeHTTP(rr, req)
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected X-Request-ID header")
	}
}
