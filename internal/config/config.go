package config

import "time"

// ServerConfig holds configuration for the tessera server.
type ServerConfig struct {
	Addr         string        // Listen address (default ":8080")
	LogLevel     string        // Log level: debug, info, warn, error
	LogFormat    string        // Log format: text, json
	DBPath       string        // SQLite database path (default ~/.tessera/tessera.db, ":memory:" for testing)
	BackendURL   string        // Batch-execution service endpoint
	BackendToken string        // Auth token for the batch-execution service
	PollInterval time.Duration // Status reconciliation interval
	PollTimeout  time.Duration // Bound on a single status fetch
	UploadBucket string        // S3 bucket for acquisition uploads (empty disables the S3 stager)
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:         ":8080",
		LogLevel:     "info",
		LogFormat:    "text",
		PollInterval: 5 * time.Second,
		PollTimeout:  15 * time.Second,
	}
}
