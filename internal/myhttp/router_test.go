package myhttp_test

import (
	"bytes"
	"colordiff/internal/myhttp"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/metric/noop"
)

func newTestMux(t *testing.T, buffer *bytes.Buffer) http.Handler {
	t.Helper()

	histogram, err := noop.NewMeterProvider().Meter("test").Int64Histogram("http_requests_duration_micro_seconds")
	if err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewJSONHandler(buffer, nil))

	mux := myhttp.NewServerMux(logger, histogram)
	mux.HandleFuncWithMiddleware("POST /created", func(w http.ResponseWriter, r *http.Request) {
		myhttp.Logger(r.Context()).Info("handled")
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFuncWithMiddleware("GET /panic", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	return mux
}

func TestMiddleware(t *testing.T) {
	t.Run("RequestLogger", func(t *testing.T) {
		var buffer bytes.Buffer
		mux := newTestMux(t, &buffer)

		recorder := httptest.NewRecorder()
		mux.ServeHTTP(recorder, httptest.NewRequest("POST", "/created", nil))

		if recorder.Code != http.StatusCreated {
			t.Errorf("expected %d, got %d", http.StatusCreated, recorder.Code)
		}
		if !strings.Contains(buffer.String(), `"traceid"`) {
			t.Errorf("expected request logger to carry trace attributes, got %s", buffer.String())
		}
	})

	t.Run("RecoversPanic", func(t *testing.T) {
		var buffer bytes.Buffer
		mux := newTestMux(t, &buffer)

		recorder := httptest.NewRecorder()
		mux.ServeHTTP(recorder, httptest.NewRequest("GET", "/panic", nil))

		if recorder.Code != http.StatusInternalServerError {
			t.Errorf("expected %d, got %d", http.StatusInternalServerError, recorder.Code)
		}
		if !strings.Contains(buffer.String(), "boom") {
			t.Errorf("expected panic to be logged, got %s", buffer.String())
		}
	})
}

func TestLoggerDefault(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	if myhttp.Logger(req.Context()) != slog.Default() {
		t.Errorf("expected default logger without middleware")
	}
}
