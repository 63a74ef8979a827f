// Package deviation scores how far an active courier has strayed from its route.
package deviation

import (
	"courierwatch/internal/fleet"
	"courierwatch/internal/geometry"
	"courierwatch/internal/telemetry"
)

// Class is the severity bucket of a deviation.
type Class int

const (
	ClassNone Class = iota
	ClassMedium
	ClassHigh
)

func (c Class) String() string {
	switch c {
	case ClassMedium:
		return "medium"
	case ClassHigh:
		return "high"
	default:
		return "none"
	}
}

// Default thresholds in map units.
const (
	DefaultMediumThreshold = 8.5
	DefaultHighThreshold   = 14.0
)

// Thresholds bound the medium and high classes. Medium must not exceed High.
type Thresholds struct {
	Medium float64
	High   float64
}

// DefaultThresholds returns the stock thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{Medium: DefaultMediumThreshold, High: DefaultHighThreshold}
}

// Classify maps a distance onto a class.
func (t Thresholds) Classify(d float64) Class {
	switch {
	case d >= t.High:
		return ClassHigh
	case d >= t.Medium:
		return ClassMedium
	default:
		return ClassNone
	}
}

// Result is the deviation of one courier.
type Result struct {
	Distance float64
	Class    Class
}

// Detector computes deviations against assigned routes.
type Detector struct {
	thresholds Thresholds
}

// NewDetector creates a Detector with the given thresholds.
func NewDetector(t Thresholds) *Detector {
	return &Detector{thresholds: t}
}

// Thresholds returns the configured thresholds.
func (d *Detector) Thresholds() Thresholds { return d.thresholds }

// Deviation returns the distance from e's position to its route segment. ok is
// false for couriers that are not active or have no route.
func (d *Detector) Deviation(e fleet.EntityState) (Result, bool) {
	if e.Status != telemetry.StatusActive || e.Route == nil {
		return Result{}, false
	}
	dist := geometry.DistancePointToSegment(
		geometry.FromPosition(e.Position),
		geometry.FromPosition(e.Route.Start),
		geometry.FromPosition(e.Route.End),
	)
	return Result{Distance: dist, Class: d.thresholds.Classify(dist)}, true
}
