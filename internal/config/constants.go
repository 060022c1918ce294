package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 10
	DBMaxIdleConns    = 2
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 15 * time.Second
	ServerReadTimeout     = 10 * time.Second
	ServerWriteTimeout    = 20 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Ping timeout for startup and health checks
const PingTimeout = 5 * time.Second

// Background job intervals
const (
	MaintenanceJobInterval = 2 * time.Second
	LedgerRetention        = 30 * 24 * time.Hour
)

// Anonymous identity cookie lifetime
const IdentityMaxAge = 180 * 24 * time.Hour
