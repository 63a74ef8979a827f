package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrMalformed marks input rejected at the ingestion boundary.
var ErrMalformed = errors.New("malformed telemetry")

// WireReport is the JSON shape accepted from devices.
type WireReport struct {
	EntityID       string   `json:"entityId"`
	Name           string   `json:"name,omitempty"`
	Timestamp      *int64   `json:"timestamp"`
	Lat            *float64 `json:"lat"`
	Lng            *float64 `json:"lng"`
	Battery        *int     `json:"battery"`
	Signal         *int     `json:"signal"`
	SpeedKmh       *float64 `json:"speedKmh"`
	Status         string   `json:"status"`
	AssignedTaskID string   `json:"assignedTaskId,omitempty"`
}

// WirePosition is the JSON shape of a route endpoint.
type WirePosition struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

// WireRouteAssignment is the JSON shape sent by dispatch.
type WireRouteAssignment struct {
	EntityID       string        `json:"entityId"`
	RouteStart     *WirePosition `json:"routeStart"`
	RouteEnd       *WirePosition `json:"routeEnd"`
	AssignedTaskID string        `json:"assignedTaskId,omitempty"`
}

// DecodeReport parses and validates one JSON report.
func DecodeReport(raw []byte) (Report, error) {
	var w WireReport
	if err := json.Unmarshal(raw, &w); err != nil {
		return Report{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return w.Report()
}

// DecodeReports accepts either a single JSON object or an array of them.
func DecodeReports(raw []byte) ([]Report, error) {
	trimmed := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(trimmed, "[") {
		r, err := DecodeReport(raw)
		if err != nil {
			return nil, err
		}
		return []Report{r}, nil
	}
	var ws []WireReport
	if err := json.Unmarshal(raw, &ws); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	out := make([]Report, 0, len(ws))
	for i, w := range ws {
		r, err := w.Report()
		if err != nil {
			return nil, fmt.Errorf("report %d: %w", i, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// Report converts the wire form into a Report, checking required fields and domains.
func (w WireReport) Report() (Report, error) {
	id := strings.TrimSpace(w.EntityID)
	switch {
	case id == "":
		return Report{}, fmt.Errorf("%w: missing field: entityId", ErrMalformed)
	case w.Timestamp == nil:
		return Report{}, fmt.Errorf("%w: missing field: timestamp", ErrMalformed)
	case w.Lat == nil || w.Lng == nil:
		return Report{}, fmt.Errorf("%w: missing field: lat/lng", ErrMalformed)
	case w.Battery == nil:
		return Report{}, fmt.Errorf("%w: missing field: battery", ErrMalformed)
	case w.Signal == nil:
		return Report{}, fmt.Errorf("%w: missing field: signal", ErrMalformed)
	case w.SpeedKmh == nil:
		return Report{}, fmt.Errorf("%w: missing field: speedKmh", ErrMalformed)
	}
	r := Report{
		CourierID: id,
		Name:      strings.TrimSpace(w.Name),
		Timestamp: time.UnixMilli(*w.Timestamp).UTC(),
		Position:  Position{Lat: *w.Lat, Lng: *w.Lng},
		Battery:   *w.Battery,
		Signal:    *w.Signal,
		SpeedKmh:  *w.SpeedKmh,
		Status:    Status(strings.ToLower(strings.TrimSpace(w.Status))),
		TaskID:    strings.TrimSpace(w.AssignedTaskID),
	}
	if !r.Status.Valid() {
		return Report{}, fmt.Errorf("%w: unknown status %q", ErrMalformed, w.Status)
	}
	if err := CheckDomain(r); err != nil {
		return Report{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return r, nil
}

// CheckDomain validates the numeric ranges of a report.
func CheckDomain(r Report) error {
	switch {
	case r.Battery < 0 || r.Battery > MaxBattery:
		return fmt.Errorf("battery %d outside 0-%d", r.Battery, MaxBattery)
	case r.Signal < 0 || r.Signal > MaxSignal:
		return fmt.Errorf("signal %d outside 0-%d", r.Signal, MaxSignal)
	case r.SpeedKmh < 0 || math.IsNaN(r.SpeedKmh) || math.IsInf(r.SpeedKmh, 0):
		return fmt.Errorf("invalid speed %v", r.SpeedKmh)
	case !r.Position.Finite():
		return fmt.Errorf("non-finite position %+v", r.Position)
	}
	return nil
}

// Finite reports whether both coordinates are finite numbers.
func (p Position) Finite() bool {
	return !math.IsNaN(p.Lat) && !math.IsNaN(p.Lng) && !math.IsInf(p.Lat, 0) && !math.IsInf(p.Lng, 0)
}

// DecodeRouteAssignment parses a dispatch route assignment.
func DecodeRouteAssignment(raw []byte) (RouteAssignment, error) {
	var w WireRouteAssignment
	if err := json.Unmarshal(raw, &w); err != nil {
		return RouteAssignment{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return w.Assignment()
}

// Assignment converts the wire form into a RouteAssignment.
func (w WireRouteAssignment) Assignment() (RouteAssignment, error) {
	id := strings.TrimSpace(w.EntityID)
	if id == "" {
		return RouteAssignment{}, fmt.Errorf("%w: missing field: entityId", ErrMalformed)
	}
	start, err := w.RouteStart.position("routeStart")
	if err != nil {
		return RouteAssignment{}, err
	}
	end, err := w.RouteEnd.position("routeEnd")
	if err != nil {
		return RouteAssignment{}, err
	}
	return RouteAssignment{CourierID: id, Route: Route{Start: start, End: end}, TaskID: strings.TrimSpace(w.AssignedTaskID)}, nil
}

func (w *WirePosition) position(field string) (Position, error) {
	if w == nil || w.Lat == nil || w.Lng == nil {
		return Position{}, fmt.Errorf("%w: missing field: %s", ErrMalformed, field)
	}
	p := Position{Lat: *w.Lat, Lng: *w.Lng}
	if !p.Finite() {
		return Position{}, fmt.Errorf("%w: non-finite %s", ErrMalformed, field)
	}
	return p, nil
}

// Wire converts a Report back into the device JSON shape.
func (r Report) Wire() WireReport {
	ts := r.Timestamp.UnixMilli()
	lat, lng := r.Position.Lat, r.Position.Lng
	battery, signal, speed := r.Battery, r.Signal, r.SpeedKmh
	return WireReport{
		EntityID:       r.CourierID,
		Name:           r.Name,
		Timestamp:      &ts,
		Lat:            &lat,
		Lng:            &lng,
		Battery:        &battery,
		Signal:         &signal,
		SpeedKmh:       &speed,
		Status:         string(r.Status),
		AssignedTaskID: r.TaskID,
	}
}
