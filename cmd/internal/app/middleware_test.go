package app

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWithRequestLoggingCapturesStatus(t *testing.T) {
	t.Parallel()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := WithRequestLogging(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}), log)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusTeapot {
		t.Fatalf("status=%d want=%d", rr.Code, http.StatusTeapot)
	}
}

func TestLoggingResponseWriterPreservesInterfaces(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	lrw := &loggingResponseWriter{ResponseWriter: rr, status: http.StatusOK}

	// Flusher must be forwarded for streaming handlers.
	var w http.ResponseWriter = lrw
	if _, ok := w.(http.Flusher); !ok {
		t.Fatal("loggingResponseWriter must implement http.Flusher")
	}

	// Unwrap must expose the underlying writer for http.ResponseController.
	if lrw.Unwrap() != rr {
		t.Fatal("Unwrap must return the wrapped ResponseWriter")
	}

	// Hijack on a non-hijackable writer must error, not panic.
	if _, _, err := lrw.Hijack(); err == nil {
		t.Fatal("Hijack on httptest.ResponseRecorder should error")
	}
}

func TestNonZeroHelpers(t *testing.T) {
	t.Parallel()

	if got := nonZeroDuration(0, 5); got != 5 {
		t.Fatalf("nonZeroDuration(0)=%v", got)
	}
	if got := nonZeroDuration(3, 5); got != 3 {
		t.Fatalf("nonZeroDuration(3)=%v", got)
	}
	if got := nonZeroInt(0, 9); got != 9 {
		t.Fatalf("nonZeroInt(0)=%d", got)
	}
}
