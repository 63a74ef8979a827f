package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"courierwatch/internal/config"
	"courierwatch/internal/dispatch"
	"courierwatch/internal/telemetry"
	"courierwatch/internal/tracker"
)

func clearOutputEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"GREPTIMEDB_ENDPOINT", "KAFKA_BROKERS", "KAFKA_ALERT_TOPIC", "REDIS_ADDR", "REDIS_DB", "REDIS_STATE_TTL"} {
		t.Setenv(k, "")
	}
	orig := stdoutIsTerminal
	stdoutIsTerminal = func() bool { return false }
	t.Cleanup(func() { stdoutIsTerminal = orig })
}

func TestNewWritersPrintOnly(t *testing.T) {
	clearOutputEnv(t)
	t.Setenv("GREPTIMEDB_ENDPOINT", "localhost:4001")
	out, err := newWriters(context.Background(), config.Default(), outputOptions{PrintOnly: true})
	if err != nil {
		t.Fatalf("newWriters returned error: %v", err)
	}
	defer out.Close(context.Background())
	if len(out.writers) != 1 {
		t.Fatalf("expected 1 writer, got %d", len(out.writers))
	}
	if _, ok := out.writers[0].(*tracker.JSONStdoutWriter); !ok {
		t.Fatalf("expected *tracker.JSONStdoutWriter, got %T", out.writers[0])
	}
}

func TestNewWritersTUINeedsTerminal(t *testing.T) {
	clearOutputEnv(t)
	opts := outputOptions{TUI: true}
	if useTUI(opts) {
		t.Fatalf("TUI selected without a terminal")
	}
	out, err := newWriters(context.Background(), config.Default(), opts)
	if err != nil {
		t.Fatalf("newWriters returned error: %v", err)
	}
	defer out.Close(context.Background())
	if _, ok := out.writers[0].(*tracker.JSONStdoutWriter); !ok {
		t.Fatalf("expected *tracker.JSONStdoutWriter, got %T", out.writers[0])
	}

	stdoutIsTerminal = func() bool { return true }
	if !useTUI(opts) {
		t.Fatalf("TUI not selected on a terminal")
	}
	t.Setenv("GREPTIMEDB_ENDPOINT", "localhost:4001")
	if useTUI(opts) {
		t.Fatalf("TUI must not be selected when writing to GreptimeDB")
	}
}

func TestNewWritersLogFile(t *testing.T) {
	clearOutputEnv(t)
	path := filepath.Join(t.TempDir(), "reports.log")
	out, err := newWriters(context.Background(), config.Default(), outputOptions{PrintOnly: true, States: true, LogFile: path})
	if err != nil {
		t.Fatalf("newWriters returned error: %v", err)
	}
	if len(out.writers) != 2 {
		t.Fatalf("expected 2 writers, got %d", len(out.writers))
	}
	if _, ok := out.writers[1].(*tracker.FileWriter); !ok {
		t.Fatalf("expected *tracker.FileWriter, got %T", out.writers[1])
	}
	r := telemetry.Report{CourierID: "R1", Timestamp: time.UnixMilli(1000).UTC(), Battery: 50, Signal: 3, Status: telemetry.StatusActive}
	if err := out.Writer().WriteReports([]telemetry.Report{r}); err != nil {
		t.Fatalf("write reports failed: %v", err)
	}
	out.Close(context.Background())

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if info.Size() == 0 {
		t.Fatalf("expected report log to be non-empty")
	}
	for _, suffix := range []string{".alerts", ".states"} {
		if _, err := os.Stat(path + suffix); err != nil {
			t.Fatalf("expected %s log: %v", suffix, err)
		}
	}
}

func TestNewWritersKafkaAlerts(t *testing.T) {
	clearOutputEnv(t)
	t.Setenv("KAFKA_BROKERS", "localhost:9092, ")
	t.Setenv("KAFKA_ALERT_TOPIC", "courier-alerts")
	out, err := newWriters(context.Background(), config.Default(), outputOptions{PrintOnly: true})
	if err != nil {
		t.Fatalf("newWriters returned error: %v", err)
	}
	defer out.Close(context.Background())
	if len(out.writers) != 2 {
		t.Fatalf("expected 2 writers, got %d", len(out.writers))
	}
	if _, ok := out.writers[1].(*tracker.KafkaWriter); !ok {
		t.Fatalf("expected *tracker.KafkaWriter, got %T", out.writers[1])
	}
}

func TestNewWritersRejectsBadRedisSettings(t *testing.T) {
	clearOutputEnv(t)
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_DB", "zero")
	if _, err := newWriters(context.Background(), config.Default(), outputOptions{PrintOnly: true}); err == nil {
		t.Fatalf("expected error for non-numeric REDIS_DB")
	}
	t.Setenv("REDIS_DB", "")
	t.Setenv("REDIS_STATE_TTL", "soon")
	if _, err := newWriters(context.Background(), config.Default(), outputOptions{PrintOnly: true}); err == nil {
		t.Fatalf("expected error for bad REDIS_STATE_TTL")
	}
}

func TestSeedRoster(t *testing.T) {
	cfg := config.Default()
	cfg.Couriers = []config.Courier{{ID: "R1", Name: "Asha"}, {ID: "R3", Name: "Chen"}}
	cfg.Routes = []config.Route{{CourierID: "R3", End: telemetry.Position{Lng: 10}}}
	plan := &dispatch.Plan{
		Name:        "evening",
		Couriers:    []dispatch.Courier{{ID: "R4", Name: "Dana"}},
		Assignments: []dispatch.Assignment{{CourierID: "R4", End: telemetry.Position{Lat: 5}}},
		Clear:       []string{"R3"},
	}
	coord := tracker.NewCoordinator(tracker.Options{Now: func() time.Time { return time.UnixMilli(0).UTC() }})
	if err := seedRoster(coord, cfg, plan); err != nil {
		t.Fatalf("seedRoster: %v", err)
	}
	pub, err := coord.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	routed := map[string]bool{}
	for _, e := range pub.Entities {
		routed[e.ID] = e.Route != nil
	}
	want := map[string]bool{"R1": false, "R3": false, "R4": true}
	if diff := cmp.Diff(want, routed); diff != "" {
		t.Fatalf("routes (-want +got):\n%s", diff)
	}

	bad := &dispatch.Plan{Name: "ghost", Assignments: []dispatch.Assignment{{CourierID: "R9"}}}
	if err := seedRoster(coord, cfg, bad); err == nil {
		t.Fatalf("expected error for a route to an unknown courier")
	}
}

func TestIngestSourcesFromEnv(t *testing.T) {
	t.Setenv("MQTT_BROKER_URL", "")
	t.Setenv("KAFKA_BROKERS", "")
	if got := ingestSources(nil); len(got) != 0 {
		t.Fatalf("expected no sources, got %d", len(got))
	}
	t.Setenv("MQTT_BROKER_URL", "tcp://localhost:1883")
	got := ingestSources(nil)
	if len(got) != 1 || got[0].name != "mqtt" {
		t.Fatalf("expected the mqtt source, got %+v", got)
	}
}

func TestRunAllStopsOnFirstError(t *testing.T) {
	boom := errors.New("boom")
	stopped := make(chan struct{})
	err := runAll(context.Background(),
		component{name: "waits", run: func(ctx context.Context) error {
			<-ctx.Done()
			close(stopped)
			return nil
		}},
		component{name: "fails", run: func(context.Context) error { return boom }},
	)
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	select {
	case <-stopped:
	default:
		t.Fatalf("other components were not stopped")
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" a:1, ,b:2,")
	if diff := cmp.Diff([]string{"a:1", "b:2"}, got); diff != "" {
		t.Fatalf("splitList (-want +got):\n%s", diff)
	}
	if splitList("") != nil {
		t.Fatalf("expected nil for empty input")
	}
}
