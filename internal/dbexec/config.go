package dbexec

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds the connection settings for the remote query-execution
// service.
type Config struct {
	URL     string
	Timeout time.Duration
}

// LoadConfig reads adapter settings from the environment. OMOP_QUERY_URL is
// required for the HTTP client; OMOP_QUERY_TIMEOUT defaults to 60s.
func LoadConfig() (Config, error) {
	cfg := Config{
		URL:     strings.TrimSpace(os.Getenv("OMOP_QUERY_URL")),
		Timeout: 60 * time.Second,
	}
	if raw := strings.TrimSpace(os.Getenv("OMOP_QUERY_TIMEOUT")); raw != "" {
		timeout, err := time.ParseDuration(raw)
		if err != nil {
			return cfg, fmt.Errorf("parse OMOP_QUERY_TIMEOUT: %w", err)
		}
		cfg.Timeout = timeout
	}
	return cfg, nil
}
