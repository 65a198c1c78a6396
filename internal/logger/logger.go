// Package logger is the structured key/value logger every component uses.
// Values under credential-like keys, and anything shaped like an identity
// token, are redacted before they reach zap.
package logger

import (
	"strings"

	"go.uber.org/zap"
)

const redacted = "[REDACTED]"

// sensitiveKeys are matched as substrings of the lower-cased key.
var sensitiveKeys = []string{"token", "authorization", "cookie", "secret", "password", "api_key", "email"}

type Logger struct {
	sugar *zap.SugaredLogger
}

// New builds a production JSON logger for mode "prod" and a debug console
// logger otherwise.
func New(mode string) (*Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	if m := strings.ToLower(strings.TrimSpace(mode)); m == "prod" || m == "production" {
		cfg = zap.NewProductionConfig()
	}
	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{sugar: z.Sugar()}, nil
}

func Nop() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar()}
}

func (l *Logger) Sync() { _ = l.sugar.Sync() }

func (l *Logger) Debug(msg string, kv ...any) { l.sugar.Debugw(msg, redact(kv)...) }
func (l *Logger) Info(msg string, kv ...any)  { l.sugar.Infow(msg, redact(kv)...) }
func (l *Logger) Warn(msg string, kv ...any)  { l.sugar.Warnw(msg, redact(kv)...) }
func (l *Logger) Error(msg string, kv ...any) { l.sugar.Errorw(msg, redact(kv)...) }
func (l *Logger) Fatal(msg string, kv ...any) { l.sugar.Fatalw(msg, redact(kv)...) }

// With returns a child logger carrying kv on every entry, e.g.
// log.With("component", "QueryCache").
func (l *Logger) With(kv ...any) *Logger {
	return &Logger{sugar: l.sugar.With(redact(kv)...)}
}

// redact copies kv, replacing sensitive values. Keys are always strings
// here; a dangling key is passed through for zap to report.
func redact(kv []any) []any {
	if len(kv) == 0 {
		return kv
	}
	out := append([]any(nil), kv...)
	for i := 0; i+1 < len(out); i += 2 {
		key, _ := out[i].(string)
		if sensitive(key) {
			out[i+1] = redacted
			continue
		}
		if s, ok := out[i+1].(string); ok && isBearerToken(s) {
			out[i+1] = redacted
		}
	}
	return out
}

func sensitive(key string) bool {
	key = strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}

// isBearerToken spots identity provider JWTs passed under innocent keys.
func isBearerToken(s string) bool {
	s = strings.TrimPrefix(s, "Bearer ")
	parts := strings.Split(s, ".")
	return len(parts) == 3 && len(parts[0]) > 10 && len(parts[1]) > 10
}
