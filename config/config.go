// Package config collects server configuration from flags with
// environment-variable fallbacks (env wins over the flag default,
// explicit flags win over env).
package config

import (
	"flag"
	"os"
)

// Config holds everything the server needs at startup.
type Config struct {
	Address        string // HTTP listen address
	DatabasePath   string // SQLite path; ":memory:" for ephemeral
	LogLevel       string // zap level: debug, info, warn, error
	AdvisorBaseURL string // generative-text endpoint base URL
	AdvisorAPIKey  string // empty disables the advisor
}

// Load parses flags and environment. Call once from main.
func Load() Config {
	var cfg Config

	flag.StringVar(&cfg.Address, "address", envOr("ADDRESS", ":8080"), "HTTP listen address")
	flag.StringVar(&cfg.DatabasePath, "db", envOr("DATABASE_PATH", "canteen.db"), "SQLite database path")
	flag.StringVar(&cfg.LogLevel, "log-level", envOr("LOG_LEVEL", "info"), "log level")
	flag.StringVar(&cfg.AdvisorBaseURL, "advisor-url", envOr("ADVISOR_BASE_URL", "https://generativelanguage.googleapis.com"), "advisor base URL")
	flag.StringVar(&cfg.AdvisorAPIKey, "advisor-key", envOr("ADVISOR_API_KEY", ""), "advisor API key (empty disables)")
	flag.Parse()

	return cfg
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
