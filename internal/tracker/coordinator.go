// Tick coordinator owning courier state and trails
package tracker

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"courierwatch/internal/deviation"
	"courierwatch/internal/fleet"
	"courierwatch/internal/risk"
	"courierwatch/internal/telemetry"
	"courierwatch/internal/trail"
)

var (
	// ErrQueueFull is returned by Enqueue when the ingestion queue is at capacity.
	ErrQueueFull = errors.New("ingestion queue full")
	// ErrClockRegression is returned by Tick when the clock moved backwards.
	ErrClockRegression = errors.New("clock regression")
)

// Defaults used when Options leave a field zero.
const (
	DefaultTickInterval = 5 * time.Second
	DefaultQueueSize    = 1024
)

// Options configures a Coordinator.
type Options struct {
	TickInterval time.Duration
	QueueSize    int
	Retention    time.Duration
	Risk         risk.Config
	Thresholds   deviation.Thresholds
	Writer       PublicationWriter
	Now          func() time.Time
}

// Publication is the immutable output of one tick.
type Publication struct {
	ID       string                   `json:"id"`
	Seq      uint64                   `json:"seq"`
	At       time.Time                `json:"at"`
	Entities []fleet.EntityState      `json:"entities"`
	Alerts   []risk.Alert             `json:"alerts"`
	Trails   map[string][]trail.Point `json:"trails"`
	Applied  int                      `json:"applied"`
	Rejected int                      `json:"rejected"`
}

// Entity returns the published state of one courier.
func (p *Publication) Entity(id string) (fleet.EntityState, bool) {
	for _, e := range p.Entities {
		if e.ID == id {
			return e, true
		}
	}
	return fleet.EntityState{}, false
}

// Summary is the fleet health view derived from a publication.
type Summary struct {
	Seq              uint64                   `json:"seq"`
	At               time.Time                `json:"at"`
	Total            int                      `json:"total"`
	Reporting        int                      `json:"reporting"`
	ByStatus         map[telemetry.Status]int `json:"by_status"`
	AlertsBySeverity map[risk.Severity]int    `json:"alerts_by_severity"`
}

// Coordinator serialises ingestion, route changes and ticks over the store
// and the trail book. Readers only ever see whole publications.
type Coordinator struct {
	// tickMu is held for a whole tick including the writer fan-out, so
	// publications reach writers one at a time and in sequence order.
	tickMu sync.Mutex
	// mu guards store and trails only; route changes never wait on writers.
	mu       sync.Mutex
	store    *fleet.Store
	trails   *trail.Book
	engine   *risk.Engine
	queue    chan telemetry.Report
	writer   PublicationWriter
	interval time.Duration
	now      func() time.Time
	lastTick time.Time
	seq      uint64
	latest   atomic.Pointer[Publication]
}

// NewCoordinator builds a coordinator from opts.
func NewCoordinator(opts Options) *Coordinator {
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Retention <= 0 {
		opts.Retention = trail.DefaultRetention
	}
	if opts.Risk == (risk.Config{}) {
		opts.Risk = risk.DefaultConfig()
	}
	if opts.Thresholds == (deviation.Thresholds{}) {
		opts.Thresholds = deviation.DefaultThresholds()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	c := &Coordinator{
		store:    fleet.NewStore(),
		trails:   trail.NewBook(opts.Retention),
		engine:   risk.NewEngine(opts.Risk, deviation.NewDetector(opts.Thresholds)),
		queue:    make(chan telemetry.Report, opts.QueueSize),
		writer:   opts.Writer,
		interval: opts.TickInterval,
		now:      opts.Now,
	}
	c.latest.Store(&Publication{Trails: map[string][]trail.Point{}})
	return c
}

// TickInterval returns the ticker period used by Run.
func (c *Coordinator) TickInterval() time.Duration { return c.interval }

// Enqueue hands a decoded report to the next tick without blocking.
func (c *Coordinator) Enqueue(r telemetry.Report) error {
	select {
	case c.queue <- r:
		return nil
	default:
		return ErrQueueFull
	}
}

// Register adds a roster courier that has not reported yet.
func (c *Coordinator) Register(id, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Register(id, name)
}

// AssignRoute replaces the route of a known courier. It takes effect at the next tick.
func (c *Coordinator) AssignRoute(a telemetry.RouteAssignment) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.AssignRoute(a)
}

// ClearRoute removes the route of a known courier.
func (c *Coordinator) ClearRoute(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.ClearRoute(id)
}

// Latest returns the most recent publication. Before the first tick it is
// an empty publication with Seq 0.
func (c *Coordinator) Latest() *Publication {
	return c.latest.Load()
}

// History returns the published trail of id restricted to the retention
// window at the current clock.
func (c *Coordinator) History(id string) []trail.Point {
	pts := c.latest.Load().Trails[id]
	return trail.Within(pts, c.now(), c.trails.Retention())
}

// Summary aggregates the latest publication.
func (c *Coordinator) Summary() Summary {
	return Summarize(c.latest.Load())
}

// Summarize counts couriers per status and alerts per severity.
func Summarize(p *Publication) Summary {
	s := Summary{
		Seq:              p.Seq,
		At:               p.At,
		Total:            len(p.Entities),
		ByStatus:         make(map[telemetry.Status]int),
		AlertsBySeverity: make(map[risk.Severity]int),
	}
	for _, e := range p.Entities {
		s.ByStatus[e.Status]++
		if e.Reporting() {
			s.Reporting++
		}
	}
	for _, a := range p.Alerts {
		s.AlertsBySeverity[a.Severity]++
	}
	return s
}
