// Package config loads runtime configuration for the HydroSync field agent.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   base URL of the sync server HTTP endpoint
//	-d string   local SQLite database path
//	-v string   device identifier
//	-t string   bearer auth token
//	-i int      sync interval (seconds)
//
// # JSON schema
//
// The JSON loader uses timex.Duration for intervals, so values can be either
// strings like "30s" or integer nanoseconds:
//
//	{
//	  "server_endpoint_addr": "http://127.0.0.1:8080",
//	  "database_dsn": "hydrosync.db",
//	  "device_id": "field-device-3",
//	  "auth_token": "...",
//	  "sync_interval": "30s"
//	}
//
// Primary API
//
//   - type Config                     — holds endpoint, database, device and sync settings
//   - func LoadConfig() *Config       — builds Config by applying defaults, JSON, then flags
//   - func (*Config) LoadDefaults()   — sets sensible defaults
//
// Note: This package does not read environment variables directly; use the
// JSON file or flags to configure values.
package config
