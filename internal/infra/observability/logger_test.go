package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger_LevelParsing(t *testing.T) {
	cases := []struct {
		level string
		want  zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"nonsense", zapcore.InfoLevel},
	}
	for _, tc := range cases {
		logger := NewLogger(tc.level)
		if !logger.Core().Enabled(tc.want) {
			t.Errorf("level %q: logger does not enable %s", tc.level, tc.want)
		}
		if tc.want > zapcore.DebugLevel && logger.Core().Enabled(tc.want-1) {
			t.Errorf("level %q: logger unexpectedly enables %s", tc.level, tc.want-1)
		}
	}
}

func serveLogged(t *testing.T, path string, status int) *observer.ObservedLogs {
	t.Helper()

	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	h := ZapLoggerMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return logs
}

func TestZapLoggerMiddleware_LevelFollowsStatus(t *testing.T) {
	cases := []struct {
		status int
		want   zapcore.Level
	}{
		{http.StatusOK, zapcore.InfoLevel},
		{http.StatusNotFound, zapcore.WarnLevel},
		{http.StatusBadGateway, zapcore.ErrorLevel},
	}
	for _, tc := range cases {
		logs := serveLogged(t, "/v1/loans/abc", tc.status)
		entries := logs.All()
		if len(entries) != 1 {
			t.Fatalf("status %d: %d log entries, want 1", tc.status, len(entries))
		}
		if entries[0].Level != tc.want {
			t.Errorf("status %d logged at %s, want %s", tc.status, entries[0].Level, tc.want)
		}
		if got := entries[0].ContextMap()["status"]; got != int64(tc.status) {
			t.Errorf("status field = %v, want %d", got, tc.status)
		}
	}
}

func TestZapLoggerMiddleware_ProbesLogAtDebug(t *testing.T) {
	logs := serveLogged(t, "/healthz", http.StatusOK)
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("%d log entries, want 1", len(entries))
	}
	if entries[0].Level != zapcore.DebugLevel {
		t.Errorf("probe request logged at %s, want debug", entries[0].Level)
	}
}
