package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const schemaPath = "../../schemas/courierwatch.cue"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "courierwatch.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func TestLoadConfig_Valid(t *testing.T) {
	path := writeConfig(t, `
tick_interval: 2s
battery_low: 25
off_route_high: 15
couriers:
  - id: R1
    name: Asha
  - id: R3
routes:
  - courier_id: R3
    start: {lat: 0, lng: 0}
    end: {lat: 0, lng: 10}
`)
	cfg, err := Load(path, schemaPath)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.TickInterval != 2*time.Second || cfg.BatteryLow != 25 || cfg.OffRouteHigh != 15 {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.StaleAfter != 10*time.Minute || cfg.BatteryCritical != 10 || cfg.OffRouteMedium != 8.5 {
		t.Errorf("defaults lost: %+v", cfg)
	}
	if len(cfg.Couriers) != 2 || cfg.Couriers[0].Name != "Asha" {
		t.Errorf("unexpected couriers: %+v", cfg.Couriers)
	}
	a := cfg.Routes[0].Assignment()
	if a.CourierID != "R3" || a.Route.End.Lng != 10 {
		t.Errorf("unexpected route: %+v", a)
	}
}

func TestLoadConfig_SchemaRejectsUnknownKey(t *testing.T) {
	path := writeConfig(t, "tick_interval: 5s\nbogus: 1\n")
	if _, err := Load(path, schemaPath); err == nil {
		t.Fatal("expected schema error for unknown key")
	}
}

func TestLoadConfig_SchemaRejectsBadBattery(t *testing.T) {
	path := writeConfig(t, "battery_low: 150\n")
	if _, err := Load(path, schemaPath); err == nil {
		t.Fatal("expected schema error for battery_low 150")
	}
}

func TestLoadConfig_ShippedFile(t *testing.T) {
	cfg, err := Load("../../config/courierwatch.yaml", schemaPath)
	if err != nil {
		t.Fatalf("shipped config invalid: %v", err)
	}
	if len(cfg.Couriers) == 0 {
		t.Errorf("shipped config has no couriers")
	}
}

func TestValidateCrossField(t *testing.T) {
	cfg := Default()
	cfg.BatteryCritical = 30
	cfg.OffRouteMedium = 20
	cfg.Couriers = []Courier{{ID: "a"}, {ID: "a"}}
	cfg.Routes = []Route{{CourierID: "ghost"}}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"battery thresholds", "off-route thresholds", "duplicate courier", "unknown courier"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"TICK_INTERVAL":    "1s",
		"BATTERY_CRITICAL": "5",
		"OFF_ROUTE_HIGH":   "20.5",
		"LOG_LEVEL":        "debug",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	cfg := Default()
	if err := cfg.ApplyEnv(lookup); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.TickInterval != time.Second || cfg.BatteryCritical != 5 || cfg.OffRouteHigh != 20.5 || cfg.LogLevel != "debug" {
		t.Errorf("env not applied: %+v", cfg)
	}

	env["QUEUE_SIZE"] = "many"
	if err := Default().ApplyEnv(lookup); err == nil {
		t.Error("expected error for non-numeric QUEUE_SIZE")
	}
}

func TestLoadWithoutFile(t *testing.T) {
	t.Setenv("STALE_AFTER", "30s")
	cfg, err := Load("", "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StaleAfter != 30*time.Second {
		t.Errorf("StaleAfter = %s, want 30s", cfg.StaleAfter)
	}
	if got := cfg.Thresholds(); got.Medium != 8.5 || got.High != 14 {
		t.Errorf("thresholds = %+v", got)
	}
}
