// Package config loads the job store's runtime configuration (spec §6):
// table prefix, scheduler instance id, codec mode, misfire threshold, and
// cluster check-in interval. Values are read from environment variables and
// an optional YAML file via spf13/viper, the same library the teacher wires
// into its own configuration surface.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the job store's typed configuration (spec §6).
type Config struct {
	// TablePrefix is substituted into every SQL Gateway template in place
	// of the raw {PREFIX} placeholder (spec §4.1).
	TablePrefix string

	// InstanceID identifies this scheduler instance in heartbeat rows and
	// fired-trigger entries (spec §3).
	InstanceID string

	// UseProperties selects the codec's properties mode over its default
	// binary mode (spec §4.2).
	UseProperties bool

	// MisfireThresholdMs is how far past its next-fire-time a WAITING
	// trigger must be, in milliseconds, before it is classified as
	// misfired (spec §4.7).
	MisfireThresholdMs int64

	// ClusterCheckinIntervalMs is both the interval this instance refreshes
	// its own heartbeat at and the unit the Cluster Manager multiplies by
	// two to decide a peer has failed (spec §4.6).
	ClusterCheckinIntervalMs int64
}

// Default table prefix and tuning constants, matching the reference store's
// own defaults (spec §6).
const (
	DefaultTablePrefix              = "QRTZ_"
	DefaultMisfireThresholdMs       = 60_000
	DefaultClusterCheckinIntervalMs = 15_000
)

// Defaults returns a Config with every field set to its documented default
// except InstanceID, which callers must set explicitly (spec §3: the
// instance id is a cluster-wide identity, never safely defaulted).
func Defaults() *Config {
	return &Config{
		TablePrefix:              DefaultTablePrefix,
		UseProperties:             false,
		MisfireThresholdMs:        DefaultMisfireThresholdMs,
		ClusterCheckinIntervalMs:  DefaultClusterCheckinIntervalMs,
	}
}

// Load reads configuration from environment variables prefixed JOBSTORE_
// (e.g. JOBSTORE_TABLE_PREFIX) and, if path is non-empty, from a YAML file,
// layering over Defaults(). Environment variables take precedence over the
// file, matching viper's standard precedence order.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("JOBSTORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := Defaults()
	v.SetDefault("table_prefix", d.TablePrefix)
	v.SetDefault("instance_id", "")
	v.SetDefault("use_properties", d.UseProperties)
	v.SetDefault("misfire_threshold_ms", d.MisfireThresholdMs)
	v.SetDefault("cluster_checkin_interval_ms", d.ClusterCheckinIntervalMs)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("loading config %s: %w", path, err)
		}
	}

	cfg := &Config{
		TablePrefix:              v.GetString("table_prefix"),
		InstanceID:               v.GetString("instance_id"),
		UseProperties:             v.GetBool("use_properties"),
		MisfireThresholdMs:        v.GetInt64("misfire_threshold_ms"),
		ClusterCheckinIntervalMs:  v.GetInt64("cluster_checkin_interval_ms"),
	}
	if cfg.InstanceID == "" {
		return nil, fmt.Errorf("config: instance_id is required")
	}
	if cfg.TablePrefix == "" {
		return nil, fmt.Errorf("config: table_prefix must not be empty")
	}
	return cfg, nil
}

// CheckinInterval returns ClusterCheckinIntervalMs as a time.Duration.
func (c *Config) CheckinInterval() time.Duration {
	return time.Duration(c.ClusterCheckinIntervalMs) * time.Millisecond
}

// MisfireThreshold returns MisfireThresholdMs as a time.Duration.
func (c *Config) MisfireThreshold() time.Duration {
	return time.Duration(c.MisfireThresholdMs) * time.Millisecond
}
