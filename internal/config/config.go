// YAML config loader with CUE validation and environment overrides
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"courierwatch/internal/deviation"
	"courierwatch/internal/risk"
	"courierwatch/internal/telemetry"
	"courierwatch/internal/trail"
)

// Defaults for the tracker loop.
const (
	DefaultTickInterval = 5 * time.Second
	DefaultQueueSize    = 1024
)

// Courier is one roster entry.
type Courier struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// Route assigns a planned corridor to a courier at startup.
type Route struct {
	CourierID string             `yaml:"courier_id"`
	Start     telemetry.Position `yaml:"start"`
	End       telemetry.Position `yaml:"end"`
}

// Assignment converts the entry into a route assignment.
func (r Route) Assignment() telemetry.RouteAssignment {
	return telemetry.RouteAssignment{CourierID: r.CourierID, Route: telemetry.Route{Start: r.Start, End: r.End}}
}

// Config is the root configuration of the tracker.
type Config struct {
	TickInterval    time.Duration `yaml:"tick_interval"`
	StaleAfter      time.Duration `yaml:"stale_after"`
	TrailRetention  time.Duration `yaml:"trail_retention"`
	BatteryLow      int           `yaml:"battery_low"`
	BatteryCritical int           `yaml:"battery_critical"`
	OffRouteMedium  float64       `yaml:"off_route_medium"`
	OffRouteHigh    float64       `yaml:"off_route_high"`
	QueueSize       int           `yaml:"queue_size"`
	LogLevel        string        `yaml:"log_level"`
	Couriers        []Courier     `yaml:"couriers"`
	Routes          []Route       `yaml:"routes"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		TickInterval:    DefaultTickInterval,
		StaleAfter:      risk.DefaultStaleAfter,
		TrailRetention:  trail.DefaultRetention,
		BatteryLow:      risk.DefaultBatteryLow,
		BatteryCritical: risk.DefaultBatteryCritical,
		OffRouteMedium:  deviation.DefaultMediumThreshold,
		OffRouteHigh:    deviation.DefaultHighThreshold,
		QueueSize:       DefaultQueueSize,
		LogLevel:        "info",
	}
}

// Load reads configPath on top of the defaults, validating it against the
// CUE schema first when cueSchemaPath is set. Environment overrides are
// applied last. An empty configPath yields the defaults plus environment.
func Load(configPath, cueSchemaPath string) (*Config, error) {
	cfg := Default()
	if configPath != "" {
		if cueSchemaPath != "" {
			if err := ValidateWithCue(configPath, cueSchemaPath); err != nil {
				return nil, err
			}
		}
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables found through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"TICK_INTERVAL", &c.TickInterval},
		{"STALE_AFTER", &c.StaleAfter},
		{"TRAIL_RETENTION", &c.TrailRetention},
	}
	for _, d := range durations {
		if v, ok := lookup(d.key); ok && v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", d.key, err)
			}
			*d.dst = parsed
		}
	}
	ints := []struct {
		key string
		dst *int
	}{
		{"BATTERY_LOW", &c.BatteryLow},
		{"BATTERY_CRITICAL", &c.BatteryCritical},
		{"QUEUE_SIZE", &c.QueueSize},
	}
	for _, i := range ints {
		if v, ok := lookup(i.key); ok && v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", i.key, err)
			}
			*i.dst = parsed
		}
	}
	floats := []struct {
		key string
		dst *float64
	}{
		{"OFF_ROUTE_MEDIUM", &c.OffRouteMedium},
		{"OFF_ROUTE_HIGH", &c.OffRouteHigh},
	}
	for _, f := range floats {
		if v, ok := lookup(f.key); ok && v != "" {
			parsed, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", f.key, err)
			}
			*f.dst = parsed
		}
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.LogLevel = v
	}
	return nil
}

// Validate checks cross-field constraints the schema cannot express.
func (c *Config) Validate() error {
	var errs []error
	if c.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("tick_interval must be positive, got %s", c.TickInterval))
	}
	if c.StaleAfter <= 0 {
		errs = append(errs, fmt.Errorf("stale_after must be positive, got %s", c.StaleAfter))
	}
	if c.TrailRetention <= 0 {
		errs = append(errs, fmt.Errorf("trail_retention must be positive, got %s", c.TrailRetention))
	}
	if c.BatteryCritical < 0 || c.BatteryLow > telemetry.MaxBattery || c.BatteryCritical > c.BatteryLow {
		errs = append(errs, fmt.Errorf("battery thresholds must satisfy 0 <= critical (%d) <= low (%d) <= 100", c.BatteryCritical, c.BatteryLow))
	}
	if c.OffRouteMedium <= 0 || c.OffRouteMedium > c.OffRouteHigh {
		errs = append(errs, fmt.Errorf("off-route thresholds must satisfy 0 < medium (%v) <= high (%v)", c.OffRouteMedium, c.OffRouteHigh))
	}
	if c.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("queue_size must be positive, got %d", c.QueueSize))
	}
	seen := make(map[string]bool, len(c.Couriers))
	for _, cr := range c.Couriers {
		if cr.ID == "" {
			errs = append(errs, errors.New("courier with empty id"))
			continue
		}
		if seen[cr.ID] {
			errs = append(errs, fmt.Errorf("duplicate courier %q", cr.ID))
		}
		seen[cr.ID] = true
	}
	for _, r := range c.Routes {
		if !seen[r.CourierID] {
			errs = append(errs, fmt.Errorf("route for unknown courier %q", r.CourierID))
		}
	}
	return errors.Join(errs...)
}

// RiskConfig returns the rule thresholds.
func (c *Config) RiskConfig() risk.Config {
	return risk.Config{StaleAfter: c.StaleAfter, BatteryLow: c.BatteryLow, BatteryCritical: c.BatteryCritical}
}

// Thresholds returns the off-route thresholds.
func (c *Config) Thresholds() deviation.Thresholds {
	return deviation.Thresholds{Medium: c.OffRouteMedium, High: c.OffRouteHigh}
}
