// Package dispatch loads route plans and applies them to the tracker.
package dispatch

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"courierwatch/internal/telemetry"
)

// Plan is a named set of route assignments, usually one shift.
type Plan struct {
	Name        string       `yaml:"name,omitempty"`
	Description string       `yaml:"description,omitempty"`
	Couriers    []Courier    `yaml:"couriers,omitempty"`
	Assignments []Assignment `yaml:"assignments"`
	Clear       []string     `yaml:"clear,omitempty"`
}

// Courier is a roster entry registered before routes are assigned.
type Courier struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name,omitempty"`
}

// Assignment gives one courier a corridor.
type Assignment struct {
	CourierID string             `yaml:"courier_id"`
	TaskID    string             `yaml:"task_id,omitempty"`
	Start     telemetry.Position `yaml:"start"`
	End       telemetry.Position `yaml:"end"`
}

// RouteAssignment converts a into the tracker form.
func (a Assignment) RouteAssignment() telemetry.RouteAssignment {
	return telemetry.RouteAssignment{CourierID: a.CourierID, Route: telemetry.Route{Start: a.Start, End: a.End}, TaskID: a.TaskID}
}

// Assigner is the part of the tracker a plan is applied to.
type Assigner interface {
	Register(id, name string)
	AssignRoute(telemetry.RouteAssignment) error
	ClearRoute(id string) error
}

// Load reads a YAML plan from disk.
func Load(path string) (*Plan, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	var p Plan
	if err := yaml.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("plan %s: %w", path, err)
	}
	return &p, nil
}

// Validate checks that every assignment names a courier and has finite endpoints.
func (p *Plan) Validate() error {
	var errs []error
	for i, a := range p.Assignments {
		if a.CourierID == "" {
			errs = append(errs, fmt.Errorf("assignment %d: missing courier_id", i))
		}
		if !a.Start.Finite() || !a.End.Finite() {
			errs = append(errs, fmt.Errorf("assignment %d: non-finite endpoint", i))
		}
	}
	for i, c := range p.Couriers {
		if c.ID == "" {
			errs = append(errs, fmt.Errorf("courier %d: missing id", i))
		}
	}
	return errors.Join(errs...)
}

// Apply registers the plan's couriers, clears the listed routes and then
// assigns the rest. Every assignment is attempted; failures are joined.
func (p *Plan) Apply(a Assigner) error {
	for _, c := range p.Couriers {
		a.Register(c.ID, c.Name)
	}
	var errs []error
	for _, id := range p.Clear {
		if err := a.ClearRoute(id); err != nil {
			errs = append(errs, err)
		}
	}
	for _, as := range p.Assignments {
		if err := a.AssignRoute(as.RouteAssignment()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
