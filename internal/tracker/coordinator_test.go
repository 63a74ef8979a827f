package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"courierwatch/internal/fleet"
	"courierwatch/internal/risk"
	"courierwatch/internal/telemetry"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time { return f.t }

type recordingWriter struct {
	pubs    []Publication
	reports [][]telemetry.Report
	err     error
}

func (r *recordingWriter) WritePublication(p Publication) error {
	r.pubs = append(r.pubs, p)
	return r.err
}

func (r *recordingWriter) WriteReports(rs []telemetry.Report) error {
	r.reports = append(r.reports, rs)
	return r.err
}

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestCoordinator(w PublicationWriter, queue int) (*Coordinator, *fakeClock) {
	clock := &fakeClock{t: epoch}
	c := NewCoordinator(Options{QueueSize: queue, Writer: w, Now: clock.Now})
	return c, clock
}

func rep(id string, at time.Time, lat, lng float64, battery int, status telemetry.Status) telemetry.Report {
	return telemetry.Report{
		CourierID: id,
		Timestamp: at,
		Position:  telemetry.Position{Lat: lat, Lng: lng},
		Battery:   battery,
		Signal:    4,
		SpeedKmh:  15,
		Status:    status,
	}
}

func alertKeys(alerts []risk.Alert) []string {
	var out []string
	for _, a := range alerts {
		out = append(out, a.CourierID+":"+a.Rule.String()+":"+a.Severity.String())
	}
	return out
}

func TestLatestBeforeFirstTick(t *testing.T) {
	c, _ := newTestCoordinator(nil, 4)
	p := c.Latest()
	if p == nil || p.Seq != 0 || len(p.Entities) != 0 {
		t.Fatalf("unexpected initial publication: %+v", p)
	}
}

func TestTickAppliesAndPublishes(t *testing.T) {
	w := &recordingWriter{}
	c, clock := newTestCoordinator(w, 16)
	ctx := context.Background()

	must(t, c.Enqueue(rep("R1", epoch.Add(-time.Minute), 1, 1, 9, telemetry.StatusActive)))
	must(t, c.Enqueue(rep("R2", epoch.Add(-3*time.Hour), 2, 2, 80, telemetry.StatusOffline)))
	must(t, c.Enqueue(rep("R1", epoch.Add(-2*time.Minute), 1, 1, 50, telemetry.StatusActive)))

	pub, err := c.Tick(ctx)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if pub.Seq != 1 || pub.Applied != 2 || pub.Rejected != 1 || pub.ID == "" {
		t.Fatalf("unexpected counters: %+v", pub)
	}
	if c.Latest() != pub {
		t.Fatalf("Latest did not return the new publication")
	}
	want := []string{"R1:LOW_BATTERY:high", "R2:OFFLINE:high"}
	if diff := cmp.Diff(want, alertKeys(pub.Alerts)); diff != "" {
		t.Fatalf("alerts (-want +got):\n%s", diff)
	}
	if len(w.pubs) != 1 || len(w.reports) != 1 || len(w.reports[0]) != 3 {
		t.Fatalf("writer saw %d pubs, %v report batches", len(w.pubs), w.reports)
	}
	r1, _ := pub.Entity("R1")
	if r1.Battery != 9 {
		t.Fatalf("older report overwrote newer state: %+v", r1)
	}

	clock.t = clock.t.Add(5 * time.Second)
	pub2, _ := c.Tick(ctx)
	if pub2.Seq != 2 || pub2.Applied != 0 {
		t.Fatalf("second tick: %+v", pub2)
	}
	if len(w.reports) != 1 {
		t.Fatalf("empty tick should not write reports")
	}
}

func TestOffRouteAfterAssignment(t *testing.T) {
	c, clock := newTestCoordinator(nil, 8)
	ctx := context.Background()
	c.Register("R3", "Chen")
	route := telemetry.Route{Start: telemetry.Position{}, End: telemetry.Position{Lng: 10}}
	must(t, c.AssignRoute(telemetry.RouteAssignment{CourierID: "R3", Route: route}))

	must(t, c.Enqueue(rep("R3", epoch, 9, 5, 50, telemetry.StatusActive)))
	pub, _ := c.Tick(ctx)
	if diff := cmp.Diff([]string{"R3:OFF_ROUTE:medium"}, alertKeys(pub.Alerts)); diff != "" {
		t.Fatalf("alerts (-want +got):\n%s", diff)
	}

	clock.t = clock.t.Add(time.Second)
	must(t, c.Enqueue(rep("R3", epoch.Add(time.Second), 15, 5, 50, telemetry.StatusActive)))
	pub, _ = c.Tick(ctx)
	if diff := cmp.Diff([]string{"R3:OFF_ROUTE:high"}, alertKeys(pub.Alerts)); diff != "" {
		t.Fatalf("alerts (-want +got):\n%s", diff)
	}

	must(t, c.ClearRoute("R3"))
	clock.t = clock.t.Add(time.Second)
	pub, _ = c.Tick(ctx)
	if len(pub.Alerts) != 0 {
		t.Fatalf("cleared route still alerts: %v", alertKeys(pub.Alerts))
	}
	if err := c.AssignRoute(telemetry.RouteAssignment{CourierID: "ghost", Route: route}); !errors.Is(err, fleet.ErrUnknownEntity) {
		t.Fatalf("expected ErrUnknownEntity, got %v", err)
	}
}

func TestClockRegression(t *testing.T) {
	c, clock := newTestCoordinator(nil, 8)
	ctx := context.Background()
	if _, err := c.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	must(t, c.Enqueue(rep("R1", epoch, 0, 0, 50, telemetry.StatusIdle)))
	clock.t = epoch.Add(-time.Second)
	if _, err := c.Tick(ctx); !errors.Is(err, ErrClockRegression) {
		t.Fatalf("expected ErrClockRegression, got %v", err)
	}
	if c.Latest().Seq != 1 {
		t.Fatalf("regressed tick must not publish")
	}
	clock.t = epoch
	pub, err := c.Tick(ctx)
	if err != nil || pub.Applied != 1 {
		t.Fatalf("queued report lost after regression: %+v %v", pub, err)
	}
}

func TestEnqueueQueueFull(t *testing.T) {
	c, _ := newTestCoordinator(nil, 1)
	must(t, c.Enqueue(rep("R1", epoch, 0, 0, 50, telemetry.StatusIdle)))
	if err := c.Enqueue(rep("R1", epoch.Add(time.Second), 0, 0, 50, telemetry.StatusIdle)); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestTrailWindowAndHistory(t *testing.T) {
	c, clock := newTestCoordinator(nil, 16)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		at := epoch.Add(time.Duration(i*2) * time.Minute)
		must(t, c.Enqueue(rep("R1", at, float64(i), 0, 90, telemetry.StatusActive)))
	}
	clock.t = epoch.Add(6 * time.Minute)
	pub, _ := c.Tick(ctx)
	// points at 0m is older than 5m at 6m
	if got := len(pub.Trails["R1"]); got != 3 {
		t.Fatalf("trail len = %d, want 3", got)
	}

	clock.t = epoch.Add(9 * time.Minute)
	if got := len(c.History("R1")); got != 2 {
		t.Fatalf("history at query time = %d points, want 2", got)
	}
	if c.History("nobody") == nil {
		t.Fatalf("history of unknown courier should be empty, not nil")
	}

	clock.t = epoch.Add(time.Hour)
	pub, _ = c.Tick(ctx)
	pts, ok := pub.Trails["R1"]
	if !ok || len(pts) != 0 {
		t.Fatalf("trail should be kept empty, got %v (present=%v)", pts, ok)
	}
}

func TestPublicationIsolated(t *testing.T) {
	c, clock := newTestCoordinator(nil, 8)
	ctx := context.Background()
	must(t, c.Enqueue(rep("R1", epoch, 1, 1, 50, telemetry.StatusIdle)))
	first, _ := c.Tick(ctx)

	clock.t = epoch.Add(time.Second)
	must(t, c.Enqueue(rep("R1", epoch.Add(time.Second), 2, 2, 40, telemetry.StatusIdle)))
	c.Tick(ctx)

	e, _ := first.Entity("R1")
	if e.Battery != 50 || len(first.Trails["R1"]) != 1 {
		t.Fatalf("earlier publication mutated: %+v trail=%v", e, first.Trails["R1"])
	}
}

func TestSummary(t *testing.T) {
	c, _ := newTestCoordinator(nil, 8)
	c.Register("R9", "Silent")
	must(t, c.Enqueue(rep("R1", epoch, 0, 0, 5, telemetry.StatusActive)))
	must(t, c.Enqueue(rep("R2", epoch, 0, 0, 15, telemetry.StatusIdle)))
	c.Tick(context.Background())
	s := c.Summary()
	if s.Total != 3 || s.Reporting != 2 {
		t.Fatalf("unexpected totals: %+v", s)
	}
	wantStatus := map[telemetry.Status]int{telemetry.StatusActive: 1, telemetry.StatusIdle: 1, telemetry.StatusOffline: 1}
	if diff := cmp.Diff(wantStatus, s.ByStatus); diff != "" {
		t.Fatalf("by status (-want +got):\n%s", diff)
	}
	wantSev := map[risk.Severity]int{risk.SeverityHigh: 2, risk.SeverityMedium: 1}
	if diff := cmp.Diff(wantSev, s.AlertsBySeverity); diff != "" {
		t.Fatalf("by severity (-want +got):\n%s", diff)
	}
}

func TestWriterErrorDoesNotFailTick(t *testing.T) {
	w := &recordingWriter{err: errors.New("sink down")}
	c, _ := newTestCoordinator(w, 8)
	must(t, c.Enqueue(rep("R1", epoch, 0, 0, 50, telemetry.StatusIdle)))
	if _, err := c.Tick(context.Background()); err != nil {
		t.Fatalf("writer failure leaked into Tick: %v", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	c := NewCoordinator(Options{TickInterval: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	deadline := time.After(2 * time.Second)
	for c.Latest().Seq == 0 {
		select {
		case <-deadline:
			t.Fatal("no tick within deadline")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}
}

// blockingWriter holds the first publication until release is closed.
type blockingWriter struct {
	entered chan uint64
	release chan struct{}

	mu        sync.Mutex
	seqs      []uint64
	active    int
	maxActive int
}

func (w *blockingWriter) WritePublication(p Publication) error {
	w.mu.Lock()
	w.active++
	if w.active > w.maxActive {
		w.maxActive = w.active
	}
	w.mu.Unlock()

	w.entered <- p.Seq
	if p.Seq == 1 {
		<-w.release
	}

	w.mu.Lock()
	w.active--
	w.seqs = append(w.seqs, p.Seq)
	w.mu.Unlock()
	return nil
}

func TestConcurrentTicksPublishInOrder(t *testing.T) {
	w := &blockingWriter{entered: make(chan uint64, 2), release: make(chan struct{})}
	c, _ := newTestCoordinator(w, 4)
	ctx := context.Background()

	done := make(chan struct{}, 2)
	go func() {
		_, _ = c.Tick(ctx)
		done <- struct{}{}
	}()
	if seq := <-w.entered; seq != 1 {
		t.Fatalf("first publication has seq %d", seq)
	}
	go func() {
		_, _ = c.Tick(ctx)
		done <- struct{}{}
	}()

	// a slow writer must not hold up route changes
	c.Register("R3", "Chen")
	route := telemetry.Route{End: telemetry.Position{Lng: 10}}
	must(t, c.AssignRoute(telemetry.RouteAssignment{CourierID: "R3", Route: route}))

	select {
	case seq := <-w.entered:
		t.Fatalf("tick %d published while tick 1 was still being written", seq)
	case <-time.After(50 * time.Millisecond):
	}
	close(w.release)
	<-done
	<-done

	w.mu.Lock()
	defer w.mu.Unlock()
	if diff := cmp.Diff([]uint64{1, 2}, w.seqs); diff != "" {
		t.Fatalf("writer order (-want +got):\n%s", diff)
	}
	if w.maxActive != 1 {
		t.Fatalf("max concurrent publications = %d, want 1", w.maxActive)
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}
