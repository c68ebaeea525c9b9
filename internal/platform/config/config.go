package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures process-level configuration for the governance service.
type Server struct {
	Addr             string
	DatabaseURL      string
	AuditLogPath     string
	JWTSigningKey    string
	DefaultTenant    string
	SLASweepInterval time.Duration
	SLASweepWorkers  int
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	cfg := Server{
		Addr:             ":8080",
		AuditLogPath:     "audit_trail.jsonl",
		DefaultTenant:    "default",
		SLASweepInterval: time.Minute,
		SLASweepWorkers:  4,
	}

	if addr := os.Getenv("FINGOV_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if path := os.Getenv("AUDIT_LOG_PATH"); path != "" {
		cfg.AuditLogPath = path
	}
	if tenant := os.Getenv("FINGOV_DEFAULT_TENANT"); tenant != "" {
		cfg.DefaultTenant = tenant
	}
	cfg.JWTSigningKey = os.Getenv("JWT_SIGNING_KEY")
	if cfg.JWTSigningKey == "" {
		// Development fallback; must be overridden in production.
		cfg.JWTSigningKey = "dev-secret-key-change-in-production"
	}
	if raw := os.Getenv("SLA_SWEEP_INTERVAL"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			cfg.SLASweepInterval = d
		}
	}
	if raw := os.Getenv("SLA_SWEEP_WORKERS"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			cfg.SLASweepWorkers = n
		}
	}

	return cfg
}
