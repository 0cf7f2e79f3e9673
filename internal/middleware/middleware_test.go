package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/diewo77/occuhealth/internal/logger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observedLogger() (*logger.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return &logger.Logger{SugaredLogger: zap.New(core).Sugar()}, logs
}

func TestLogging_AssignsRequestID(t *testing.T) {
	var seen string
	h := Logging(logger.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if seen == "" {
		t.Fatal("expected a generated request id")
	}
	if got := w.Header().Get(RequestIDHeader); got != seen {
		t.Fatalf("response header %q != context id %q", got, seen)
	}
	if w.Code != http.StatusTeapot {
		t.Fatalf("status not forwarded: %d", w.Code)
	}
}

func TestLogging_KeepsIncomingRequestID(t *testing.T) {
	h := Logging(logger.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if got := w.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Fatalf("expected incoming id to be echoed, got %q", got)
	}
}

func TestRecover(t *testing.T) {
	h := Recover(logger.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", w.Code)
	}
}

func TestLogging_RecordsStatusAndBytes(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		status  int64
		bytes   int64
		level   zapcore.Level
	}{
		{"implicit ok", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("hello")) }, 200, 5, zapcore.InfoLevel},
		{"no body", func(w http.ResponseWriter, r *http.Request) {}, 200, 0, zapcore.InfoLevel},
		{"server error", func(w http.ResponseWriter, r *http.Request) { http.Error(w, "x", http.StatusBadGateway) }, 502, 2, zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, logs := observedLogger()
			h := Logging(log)(tt.handler)
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/quotes/1", nil))

			entries := logs.All()
			if len(entries) != 1 {
				t.Fatalf("expected one log line, got %d", len(entries))
			}
			fields := entries[0].ContextMap()
			if fields["status"] != tt.status || fields["bytes"] != tt.bytes {
				t.Errorf("status=%v bytes=%v, want %d %d", fields["status"], fields["bytes"], tt.status, tt.bytes)
			}
			if entries[0].Level != tt.level {
				t.Errorf("level = %s, want %s", entries[0].Level, tt.level)
			}
		})
	}
}

func TestRecover_KeepsWrittenResponse(t *testing.T) {
	log, logs := observedLogger()
	h := Recover(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		panic("late")
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected original status kept, got %d", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("unexpected body %q", w.Body.String())
	}
	if logs.FilterMessage("panic in handler").Len() != 1 {
		t.Error("expected the panic to be logged")
	}
}

func TestRecover_ReraisesAbort(t *testing.T) {
	h := Recover(logger.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	defer func() {
		if rec := recover(); rec != http.ErrAbortHandler {
			t.Fatalf("expected ErrAbortHandler, got %v", rec)
		}
	}()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}
