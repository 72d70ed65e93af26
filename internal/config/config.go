// Package config loads the YAML configuration file described in
// spec.md §6.4, following the same read-file/unmarshal/validate shape as
// the teacher's internal/routing.LoadFromFile.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/devicesim/snmpsim/internal/devstate"
)

// DeviceTypeConfig binds one device_type to the walk file that seeds its
// OID tree and the UDP port range it answers on (spec.md §6.3's manual
// profile plus §4.9's port-to-type resolution).
type DeviceTypeConfig struct {
	WalkFile    string `yaml:"walk_file"`
	PortRangeLo int    `yaml:"port_range_lo"`
	PortRangeHi int    `yaml:"port_range_hi"`

	UpgradeEnabled       *bool   `yaml:"upgrade_enabled"`
	InvalidServerRegex   string  `yaml:"invalid_server_regex"`
	UpgradePhaseDelaysMs []int64 `yaml:"upgrade_phase_delays_ms"`
}

// Config is the full YAML document shape. All duration/size fields are
// the raw spec.md §6.4 names (suffixed _ms/_bytes); CleanupInterval,
// IdleThreshold and RequestTimeout convert the millisecond fields to the
// time.Duration values the rest of the module wants.
type Config struct {
	ListenAddr  string `yaml:"listen_addr"`
	ListenAddr6 string `yaml:"listen_addr6"`

	MaxDevices               int   `yaml:"max_devices"`
	MaxMemoryMB              int   `yaml:"max_memory_mb"`
	CleanupIntervalMs        int64 `yaml:"cleanup_interval_ms"`
	IdleThresholdMs          int64 `yaml:"idle_threshold_ms"`
	UDPSocketCount           int   `yaml:"udp_socket_count"`
	UDPBufferBytes           int   `yaml:"udp_buffer_bytes"`
	WorkerPoolSize           int   `yaml:"worker_pool_size"`
	GetBulkMaxRepetitionsCap int    `yaml:"getbulk_max_repetitions_cap"`
	RequestTimeoutMs         int64  `yaml:"request_timeout_ms"`
	Community                string `yaml:"community"`

	DeviceTypes map[string]DeviceTypeConfig `yaml:"device_types"`
}

// Defaults returns spec.md §6.4's hardcoded defaults, the bottom layer
// of the CLI-flags > config-file > defaults precedence described in
// SPEC_FULL.md §6.4.
func Defaults() Config {
	return Config{
		ListenAddr:               "0.0.0.0",
		MaxDevices:               10000,
		MaxMemoryMB:              1024,
		CleanupIntervalMs:        60_000,
		IdleThresholdMs:          600_000,
		UDPSocketCount:           4,
		UDPBufferBytes:           65_536,
		WorkerPoolSize:           16,
		GetBulkMaxRepetitionsCap: 50,
		RequestTimeoutMs:         5_000,
		Community:                "public",
		DeviceTypes:              map[string]DeviceTypeConfig{},
	}
}

// Load reads and parses the YAML file at path, then fills any zero-value
// field from Defaults(). A missing file is not an error: callers that
// pass an empty path, or a path that doesn't exist, get pure defaults —
// matching spec.md's framing of these values as defaults a deployment
// may not need to override at all.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var fromFile Config
	if err := yaml.Unmarshal(raw, &fromFile); err != nil {
		return Config{}, fmt.Errorf("parse config yaml: %w", err)
	}

	merged := mergeDefaults(fromFile, cfg)
	if err := merged.validate(); err != nil {
		return Config{}, err
	}
	return merged, nil
}

func mergeDefaults(c, d Config) Config {
	if c.ListenAddr == "" {
		c.ListenAddr = d.ListenAddr
	}
	if c.MaxDevices <= 0 {
		c.MaxDevices = d.MaxDevices
	}
	if c.MaxMemoryMB <= 0 {
		c.MaxMemoryMB = d.MaxMemoryMB
	}
	if c.CleanupIntervalMs <= 0 {
		c.CleanupIntervalMs = d.CleanupIntervalMs
	}
	if c.IdleThresholdMs <= 0 {
		c.IdleThresholdMs = d.IdleThresholdMs
	}
	if c.UDPSocketCount <= 0 {
		c.UDPSocketCount = d.UDPSocketCount
	}
	if c.UDPBufferBytes <= 0 {
		c.UDPBufferBytes = d.UDPBufferBytes
	}
	if c.WorkerPoolSize <= 0 {
		c.WorkerPoolSize = d.WorkerPoolSize
	}
	if c.GetBulkMaxRepetitionsCap <= 0 {
		c.GetBulkMaxRepetitionsCap = d.GetBulkMaxRepetitionsCap
	}
	if c.RequestTimeoutMs <= 0 {
		c.RequestTimeoutMs = d.RequestTimeoutMs
	}
	if c.Community == "" {
		c.Community = d.Community
	}
	if c.DeviceTypes == nil {
		c.DeviceTypes = d.DeviceTypes
	}
	return c
}

func (c Config) validate() error {
	for name, dt := range c.DeviceTypes {
		if dt.PortRangeLo <= 0 || dt.PortRangeHi < dt.PortRangeLo {
			return fmt.Errorf("device_types.%s: invalid port_range [%d, %d]", name, dt.PortRangeLo, dt.PortRangeHi)
		}
	}
	return nil
}

// CleanupInterval, IdleThreshold and RequestTimeout convert the raw
// millisecond fields to time.Duration for consumption by
// internal/resources and internal/server.
func (c Config) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalMs) * time.Millisecond
}

func (c Config) IdleThreshold() time.Duration {
	return time.Duration(c.IdleThresholdMs) * time.Millisecond
}

func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

// UpgradeEnabled reports whether DOCSIS firmware-upgrade handling is on
// for deviceType, defaulting to spec.md §6.4's upgrade_enabled: true.
func (c Config) UpgradeEnabled(deviceType string) bool {
	dt, ok := c.DeviceTypes[deviceType]
	if !ok || dt.UpgradeEnabled == nil {
		return true
	}
	return *dt.UpgradeEnabled
}

// UpgradePhaseDelays converts a device type's configured phase delays
// (milliseconds in YAML) to time.Duration values, in order.
func (c Config) UpgradePhaseDelays(deviceType string) []time.Duration {
	dt, ok := c.DeviceTypes[deviceType]
	if !ok {
		return nil
	}
	out := make([]time.Duration, len(dt.UpgradePhaseDelaysMs))
	for i, ms := range dt.UpgradePhaseDelaysMs {
		out[i] = time.Duration(ms) * time.Millisecond
	}
	return out
}

// UpgradeConfigResolver builds an internal/pool.UpgradeConfigProvider-
// shaped function (again returned unnamed so it assigns directly,
// without a wrapper, to pool's named func type) from the configured
// per-device_type upgrade policy.
func (c Config) UpgradeConfigResolver() func(deviceType string) devstate.UpgradeConfig {
	return func(deviceType string) devstate.UpgradeConfig {
		dt := c.DeviceTypes[deviceType]
		return devstate.UpgradeConfig{
			Enabled:            c.UpgradeEnabled(deviceType),
			InvalidServerRegex: dt.InvalidServerRegex,
			PhaseDelays:        c.UpgradePhaseDelays(deviceType),
		}
	}
}

// PortResolver builds an internal/pool.TypeResolver-shaped function
// (returned as the plain func type to avoid an import cycle: pool would
// otherwise need to import config, and config would need to import pool
// just for the one type alias) from the configured port ranges.
func (c Config) PortResolver() func(port int) (string, bool) {
	return func(port int) (string, bool) {
		for name, dt := range c.DeviceTypes {
			if port >= dt.PortRangeLo && port <= dt.PortRangeHi {
				return name, true
			}
		}
		return "", false
	}
}
