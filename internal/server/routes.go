package server

import (
	"log/slog"
	"net/http"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
	}
}

// NewRouter creates a new HTTP router with all routes configured.
// It uses Go 1.22+ ServeMux with method-based routing.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	mux := http.NewServeMux()

	// Register routes with method-based patterns (Go 1.22+)
	mux.HandleFunc("GET /health", h.Health)

	mux.HandleFunc("GET /transform/{slug}/{options}/{fileName}", h.Transform)
	mux.HandleFunc("GET /transform/{slug}/{fileName}", h.Transform)
	mux.HandleFunc("GET /transform/{fileName}", h.Transform)
	mux.HandleFunc("GET /proxy/transform/{path...}", h.Proxy)

	mux.HandleFunc("POST /media/{slug}/{fileName}/probe", h.Probe)
	mux.HandleFunc("POST /media/{slug}/{fileName}/publish", h.Publish)
	mux.HandleFunc("GET /media/{slug}/{fileName}/signed", h.SignedURL)
	mux.HandleFunc("DELETE /media/{slug}", h.Delete)

	// Apply middleware chain
	chain := ChainMiddleware(
		RequestIDMiddleware(),
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
	)

	return chain(mux)
}
