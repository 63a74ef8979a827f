// Package fleet holds the authoritative per-courier state.
package fleet

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"courierwatch/internal/telemetry"
)

// ErrUnknownEntity is returned when a route refers to a courier the store has never seen.
var ErrUnknownEntity = errors.New("unknown courier")

// RejectReason explains why a report was not applied.
type RejectReason string

const (
	RejectNone        RejectReason = ""
	RejectStale       RejectReason = "stale"
	RejectOutOfDomain RejectReason = "out_of_domain"
)

// Result is the outcome of ApplyReport.
type Result struct {
	Applied bool
	Reason  RejectReason
	Err     error
}

// EntityState is the current view of one courier.
type EntityState struct {
	ID            string             `json:"id"`
	Name          string             `json:"name"`
	Status        telemetry.Status   `json:"status"`
	Battery       int                `json:"battery"`
	Signal        int                `json:"signal"`
	Position      telemetry.Position `json:"position"`
	SpeedKmh      float64            `json:"speed_kmh"`
	LastTelemetry time.Time          `json:"last_telemetry"`
	TaskID        string             `json:"task_id,omitempty"`
	Route         *telemetry.Route   `json:"route,omitempty"`
}

// Reporting reports whether the courier has sent at least one applied report.
func (e EntityState) Reporting() bool {
	return !e.LastTelemetry.IsZero()
}

func (e EntityState) clone() EntityState {
	if e.Route != nil {
		r := *e.Route
		e.Route = &r
	}
	return e
}

// Store owns the courier table. It is not safe for concurrent use; the
// coordinator serialises access.
type Store struct {
	entities map[string]*EntityState
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{entities: make(map[string]*EntityState)}
}

// Register adds a roster courier before any telemetry arrives. Known couriers
// only get their display name updated.
func (s *Store) Register(id, name string) {
	if name == "" {
		name = id
	}
	if e, ok := s.entities[id]; ok {
		e.Name = name
		return
	}
	s.entities[id] = &EntityState{ID: id, Name: name, Status: telemetry.StatusOffline}
}

// ApplyReport applies r if it is newer than the stored state and within domain.
// Rejection leaves the store untouched.
func (s *Store) ApplyReport(r telemetry.Report) Result {
	if err := telemetry.CheckDomain(r); err != nil {
		return Result{Reason: RejectOutOfDomain, Err: err}
	}
	e, ok := s.entities[r.CourierID]
	if ok && e.Reporting() && !r.Timestamp.After(e.LastTelemetry) {
		return Result{Reason: RejectStale, Err: fmt.Errorf("report at %s not after %s", r.Timestamp.Format(time.RFC3339Nano), e.LastTelemetry.Format(time.RFC3339Nano))}
	}
	if !ok {
		e = &EntityState{ID: r.CourierID, Name: r.CourierID}
		s.entities[r.CourierID] = e
	}
	if r.Name != "" {
		e.Name = r.Name
	}
	e.Status = r.Status
	e.Battery = r.Battery
	e.Signal = r.Signal
	e.Position = r.Position
	e.SpeedKmh = r.SpeedKmh
	e.LastTelemetry = r.Timestamp
	if r.TaskID != "" {
		e.TaskID = r.TaskID
	}
	return Result{Applied: true}
}

// AssignRoute sets the planned corridor for a known courier, and its task when
// the assignment names one.
func (s *Store) AssignRoute(a telemetry.RouteAssignment) error {
	e, ok := s.entities[a.CourierID]
	if !ok {
		return fmt.Errorf("assign route to %q: %w", a.CourierID, ErrUnknownEntity)
	}
	r := a.Route
	e.Route = &r
	if a.TaskID != "" {
		e.TaskID = a.TaskID
	}
	return nil
}

// ClearRoute removes the route of a known courier.
func (s *Store) ClearRoute(id string) error {
	e, ok := s.entities[id]
	if !ok {
		return fmt.Errorf("clear route of %q: %w", id, ErrUnknownEntity)
	}
	e.Route = nil
	return nil
}

// Get returns a copy of one courier's state.
func (s *Store) Get(id string) (EntityState, bool) {
	e, ok := s.entities[id]
	if !ok {
		return EntityState{}, false
	}
	return e.clone(), true
}

// Len returns the number of tracked couriers.
func (s *Store) Len() int { return len(s.entities) }

// Snapshot returns copies of all couriers ordered by id.
func (s *Store) Snapshot() []EntityState {
	out := make([]EntityState, 0, len(s.entities))
	for _, e := range s.entities {
		out = append(out, e.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
