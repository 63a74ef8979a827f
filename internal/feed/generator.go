// Package feed simulates courier devices for demos and load tests.
package feed

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"courierwatch/internal/ingest"
	"courierwatch/internal/logging"
	"courierwatch/internal/telemetry"
	"courierwatch/internal/tracker"
)

// Courier is the simulated device state.
type Courier struct {
	ID       string
	Name     string
	TaskID   string
	Route    *telemetry.Route
	Position telemetry.Position
	Battery  float64
	Status   telemetry.Status
	progress float64
	drift    float64
}

// Behaviour tunes the failure modes injected by the generator.
type Behaviour struct {
	// DropoutRate is the chance a report is not sent on a step.
	DropoutRate float64
	// DriftRate is the chance the lateral offset from the route grows on a step.
	DriftRate float64
	// DrainPerStep is the mean battery drain per step, in percent.
	DrainPerStep float64
	// Progress is the fraction of the route covered per step.
	Progress float64
}

// DefaultBehaviour returns mild failure rates suitable for a demo.
func DefaultBehaviour() Behaviour {
	return Behaviour{DropoutRate: 0.05, DriftRate: 0.1, DrainPerStep: 0.8, Progress: 0.02}
}

// Generator produces reports for a set of simulated couriers.
type Generator struct {
	rand     *rand.Rand
	now      func() time.Time
	behave   Behaviour
	couriers []*Courier
}

// NewGenerator creates a generator. A nil now uses time.Now.
func NewGenerator(seed int64, behave Behaviour, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{rand: rand.New(rand.NewSource(seed)), now: now, behave: behave}
}

// Couriers returns the simulated couriers.
func (g *Generator) Couriers() []*Courier { return g.couriers }

// Add starts simulating a courier at the start of route. An empty id gets a
// generated one.
func (g *Generator) Add(id, name string, route *telemetry.Route) *Courier {
	if id == "" {
		id = "courier-" + uuid.NewString()[:8]
	}
	c := &Courier{
		ID:      id,
		Name:    name,
		TaskID:  "task-" + uuid.NewString()[:8],
		Route:   route,
		Battery: 60 + g.rand.Float64()*40,
		Status:  telemetry.StatusActive,
	}
	if route != nil {
		c.Position = route.Start
	}
	g.couriers = append(g.couriers, c)
	return c
}

// Spawn adds n couriers with random routes inside a square of side area.
func (g *Generator) Spawn(n int, area float64) []*Courier {
	out := make([]*Courier, 0, n)
	for i := 0; i < n; i++ {
		route := &telemetry.Route{
			Start: telemetry.Position{Lat: g.rand.Float64() * area, Lng: g.rand.Float64() * area},
			End:   telemetry.Position{Lat: g.rand.Float64() * area, Lng: g.rand.Float64() * area},
		}
		out = append(out, g.Add("", "", route))
	}
	return out
}

// Step advances every courier and returns the reports sent this step.
func (g *Generator) Step() []telemetry.Report {
	now := g.now().UTC()
	var out []telemetry.Report
	for _, c := range g.couriers {
		if c.Status == telemetry.StatusOffline {
			continue
		}
		g.move(c)
		if g.rand.Float64() < g.behave.DropoutRate {
			continue
		}
		out = append(out, g.report(c, now))
	}
	return out
}

func (g *Generator) move(c *Courier) {
	c.Battery -= g.behave.DrainPerStep * (0.5 + g.rand.Float64())
	if c.Battery <= 0 {
		c.Battery = 0
		c.Status = telemetry.StatusOffline
		return
	}
	if c.Route == nil || c.progress >= 1 {
		c.Status = telemetry.StatusIdle
		return
	}
	c.progress = math.Min(1, c.progress+g.behave.Progress)
	if g.rand.Float64() < g.behave.DriftRate {
		c.drift += g.rand.Float64()*2 - 0.5
	}
	dx := c.Route.End.Lng - c.Route.Start.Lng
	dy := c.Route.End.Lat - c.Route.Start.Lat
	length := math.Hypot(dx, dy)
	// unit normal to the route for the lateral offset
	nx, ny := 0.0, 0.0
	if length > 0 {
		nx, ny = -dy/length, dx/length
	}
	c.Position = telemetry.Position{
		Lat: c.Route.Start.Lat + dy*c.progress + ny*c.drift,
		Lng: c.Route.Start.Lng + dx*c.progress + nx*c.drift,
	}
	if c.progress >= 1 {
		c.Status = telemetry.StatusIdle
	}
}

func (g *Generator) report(c *Courier, now time.Time) telemetry.Report {
	speed := 0.0
	if c.Status == telemetry.StatusActive {
		speed = 10 + g.rand.Float64()*15
	}
	return telemetry.Report{
		CourierID: c.ID,
		Name:      c.Name,
		Timestamp: now,
		Position:  c.Position,
		Battery:   int(math.Round(c.Battery)),
		Signal:    1 + g.rand.Intn(telemetry.MaxSignal),
		SpeedKmh:  speed,
		Status:    c.Status,
		TaskID:    c.TaskID,
	}
}

// Run steps every interval and enqueues the reports until ctx is done.
func (g *Generator) Run(ctx context.Context, interval time.Duration, q ingest.Enqueuer) error {
	log := logging.FromContext(ctx)
	log.Info("starting demo feed", "couriers", len(g.couriers), "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			for _, r := range g.Step() {
				if err := q.Enqueue(r); err != nil {
					if errors.Is(err, tracker.ErrQueueFull) {
						log.Warn("demo report dropped", "courier_id", r.CourierID)
						continue
					}
					return err
				}
			}
		case <-ctx.Done():
			log.Info("stopping demo feed")
			return nil
		}
	}
}
