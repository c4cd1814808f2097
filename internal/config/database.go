package config

import (
	"fmt"
)

// PostgresDSN returns the connection string for the configured postgres database.
func (cfg DatabaseConfig) PostgresDSN() string {
	if cfg.URL != "" {
		return cfg.URL
	}

	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}

	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
		host, cfg.Username, cfg.Password, cfg.Database, port)
}
