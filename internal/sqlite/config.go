package sqlite

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config controls the world-model SQLite store.
type Config struct {
	Path            string
	BusyTimeout     time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// LoadConfig reads store settings from the environment with conservative
// defaults. MEDA2A_WORLDMODEL_PATH selects the database file; an empty path
// disables persistence.
func LoadConfig() (Config, error) {
	cfg := Config{
		Path:            strings.TrimSpace(os.Getenv("MEDA2A_WORLDMODEL_PATH")),
		BusyTimeout:     5 * time.Second,
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
	}
	if raw := strings.TrimSpace(os.Getenv("MEDA2A_WORLDMODEL_BUSY_TIMEOUT")); raw != "" {
		timeout, err := time.ParseDuration(raw)
		if err != nil {
			return cfg, fmt.Errorf("parse MEDA2A_WORLDMODEL_BUSY_TIMEOUT: %w", err)
		}
		cfg.BusyTimeout = timeout
	}
	if raw := strings.TrimSpace(os.Getenv("MEDA2A_WORLDMODEL_MAX_CONNS")); raw != "" {
		maxConns, err := strconv.Atoi(raw)
		if err != nil {
			return cfg, fmt.Errorf("parse MEDA2A_WORLDMODEL_MAX_CONNS: %w", err)
		}
		cfg.MaxOpenConns = maxConns
	}
	return cfg, nil
}
