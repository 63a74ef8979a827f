// Courier telemetry and route types shared across the engine
package telemetry

import (
	"os"
	"time"
)

// Status is the operational status reported by a courier device.
type Status string

// Courier status constants.
const (
	StatusActive  Status = "active"
	StatusIdle    Status = "idle"
	StatusOffline Status = "offline"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusIdle, StatusOffline:
		return true
	}
	return false
}

// Position holds a point in the planar map space. Lng is the x axis, Lat the y axis.
type Position struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Route is the planned corridor between two endpoints.
type Route struct {
	Start Position `json:"start" yaml:"start"`
	End   Position `json:"end" yaml:"end"`
}

// Domain limits for report fields.
const (
	MaxBattery = 100
	MaxSignal  = 5
)

// Report is one decoded telemetry message. It is never mutated after decoding.
type Report struct {
	CourierID string    `json:"courier_id"`
	Name      string    `json:"name,omitempty"`
	Timestamp time.Time `json:"ts"`
	Position  Position  `json:"position"`
	Battery   int       `json:"battery"`
	Signal    int       `json:"signal"`
	SpeedKmh  float64   `json:"speed_kmh"`
	Status    Status    `json:"status"`
	TaskID    string    `json:"task_id,omitempty"`
}

// RouteAssignment is supplied by dispatch and replaces any previous route.
type RouteAssignment struct {
	CourierID string `json:"courier_id"`
	Route     Route  `json:"route"`
	// TaskID, when set, becomes the courier's task until a report names another.
	TaskID string `json:"task_id,omitempty"`
}

// AlertRow is the flattened form of one alert written to external sinks.
type AlertRow struct {
	TickID      string    `json:"tick_id"`      // TAG
	CourierID   string    `json:"courier_id"`   // TAG
	CourierName string    `json:"courier_name"` // FIELD
	Rule        string    `json:"rule"`         // TAG
	Severity    string    `json:"severity"`     // FIELD
	Message     string    `json:"message"`      // FIELD
	Timestamp   time.Time `json:"ts"`           // TIME INDEX
}

// StateRow is the flattened courier state written to external sinks once per tick.
type StateRow struct {
	TickID        string    `json:"tick_id"`
	CourierID     string    `json:"courier_id"`
	Name          string    `json:"name"`
	Status        Status    `json:"status"`
	Lat           float64   `json:"lat"`
	Lng           float64   `json:"lng"`
	Battery       int       `json:"battery"`
	Signal        int       `json:"signal"`
	SpeedKmh      float64   `json:"speed_kmh"`
	TaskID        string    `json:"task_id,omitempty"`
	HasRoute      bool      `json:"has_route"`
	LastTelemetry time.Time `json:"last_telemetry"`
	Timestamp     time.Time `json:"ts"`
}

// AlertTableName holds the GreptimeDB table for alerts. It can be overridden
// via the GREPTIMEDB_ALERT_TABLE environment variable.
var AlertTableName = envOr("GREPTIMEDB_ALERT_TABLE", "courier_alerts")

// StateTableName holds the GreptimeDB table for courier states. It can be
// overridden via the GREPTIMEDB_STATE_TABLE environment variable.
var StateTableName = envOr("GREPTIMEDB_STATE_TABLE", "courier_states")

func (AlertRow) TableName() string { return AlertTableName }

func (StateRow) TableName() string { return StateTableName }

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
