// Package config handles configuration for the field agent,
// including defaults, JSON overlay, and command-line flags.
package config

import "time"

// Config holds runtime settings for the HydroSync field agent.
//
// Fields:
//   - ServerEndpointAddr: base URL of the sync server HTTP endpoint.
//   - DatabaseDSN: local SQLite database path or DSN.
//   - DeviceID: stable identifier of this field device.
//   - AuthToken: bearer token issued for this device's user and lab.
//   - SyncInterval: how often the agent attempts a sync round.
type Config struct {
	ServerEndpointAddr string
	DatabaseDSN        string
	DeviceID           string
	AuthToken          string
	SyncInterval       time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "http://127.0.0.1:8080"
	c.DatabaseDSN = "hydrosync.db"
	c.DeviceID = "field-device"
	c.SyncInterval = 30 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
