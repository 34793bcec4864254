package logger

import (
	"net/http"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the process-wide structured logger. Packages log through the
// package helpers below; Log is exported for callers that want typed
// zap fields directly.
var Log *zap.Logger

var sugar *zap.SugaredLogger

func init() {
	// Safe default so packages can log before Init runs (tests mostly).
	Init("info", "text")
}

// Init configures the global logger. level is one of debug/info/warn/error,
// format is "text" or "json". CHATHUB_LOG_LEVEL overrides level when set.
func Init(level, format string) {
	if env := strings.TrimSpace(os.Getenv("CHATHUB_LOG_LEVEL")); env != "" {
		level = env
	}
	var lv zapcore.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lv = zapcore.DebugLevel
	case "warn", "warning":
		lv = zapcore.WarnLevel
	case "error":
		lv = zapcore.ErrorLevel
	default:
		lv = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	if strings.ToLower(format) != "json" {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(lv)
	cfg.DisableStacktrace = true
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		l = zap.NewNop()
	}
	Log = l
	sugar = l.Sugar()
}

// Sync flushes buffered log entries. Called on shutdown.
func Sync() {
	if Log != nil {
		_ = Log.Sync()
	}
}

// Debug logs with alternating key/value pairs.
func Debug(msg string, args ...any) { sugar.Debugw(msg, args...) }

// Info logs with alternating key/value pairs.
func Info(msg string, args ...any) { sugar.Infow(msg, args...) }

// Warn logs with alternating key/value pairs.
func Warn(msg string, args ...any) { sugar.Warnw(msg, args...) }

// Error logs with alternating key/value pairs.
func Error(msg string, args ...any) { sugar.Errorw(msg, args...) }

// LogRequest emits a request line with sensitive headers redacted.
func LogRequest(r *http.Request) {
	key := r.Header.Get("X-API-Key")
	if key != "" {
		key = "[redacted]"
	}
	authz := r.Header.Get("Authorization")
	if authz != "" {
		authz = "[redacted]"
	}
	Debug("http_request",
		"method", r.Method,
		"path", r.URL.Path,
		"remote", r.RemoteAddr,
		"api_key", key,
		"authorization", authz,
	)
}
