// Package shield provides the HTTP middleware stack shared by textract
// transports: security headers, CORS, body limits, request tracing, rate
// limiting, API-key checks and HEAD handling.
//
// Usage:
//
//	r := chi.NewRouter()
//	r.Use(shield.SecurityHeaders(shield.DefaultHeaders()))
//	r.Use(shield.MaxBody(50 << 20))
//	r.Use(shield.TraceID)
//	r.Use(shield.NewRateLimiter(20, 40, "/health").Middleware)
//	r.Use(shield.HeadToGet)
//
// Or apply the default stack in one call:
//
//	for _, mw := range shield.DefaultStack(shield.StackConfig{MaxBodyBytes: 50 << 20}) {
//	    r.Use(mw)
//	}
package shield

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

type contextKey string

const (
	// LoggerKey is the context key for the per-request structured logger.
	LoggerKey contextKey = "shield_logger"
)

// StackConfig selects the optional parts of DefaultStack.
type StackConfig struct {
	MaxBodyBytes   int64
	AllowedOrigins []string // CORS; empty disables the CORS middleware
	RatePerSecond  float64  // 0 disables rate limiting
	Burst          int
	APIKeyHash     string   // bcrypt hash; empty disables the key check
	Public         []string // path prefixes exempt from rate limiting and API key
}

// DefaultStack returns the standard middleware stack for the textract API.
// Middleware is ordered: HeadToGet → SecurityHeaders → CORS → TraceID →
// RateLimiter → APIKey → MaxBody. The rate limiter's janitor runs until ctx
// is done.
func DefaultStack(ctx context.Context, cfg StackConfig) []func(http.Handler) http.Handler {
	stack := []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(DefaultHeaders()),
	}
	if len(cfg.AllowedOrigins) > 0 {
		stack = append(stack, CORS(cfg.AllowedOrigins))
	}
	stack = append(stack, TraceID)
	if cfg.RatePerSecond > 0 {
		rl := NewRateLimiter(cfg.RatePerSecond, cfg.Burst, cfg.Public...)
		rl.StartJanitor(ctx.Done())
		stack = append(stack, rl.Middleware)
	}
	if cfg.APIKeyHash != "" {
		stack = append(stack, APIKey(cfg.APIKeyHash, cfg.Public...))
	}
	if cfg.MaxBodyBytes > 0 {
		stack = append(stack, MaxBody(cfg.MaxBodyBytes))
	}
	return stack
}

// writeDetail writes a {"detail": msg} JSON error body.
func writeDetail(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"detail": msg}); err != nil {
		slog.Debug("shield: write error body", "error", err)
	}
}
