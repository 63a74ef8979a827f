package risk

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"courierwatch/internal/deviation"
	"courierwatch/internal/fleet"
	"courierwatch/internal/logging"
	"courierwatch/internal/telemetry"
)

// Defaults for the rule thresholds.
const (
	DefaultStaleAfter      = 10 * time.Minute
	DefaultBatteryLow      = 20
	DefaultBatteryCritical = 10
)

// Config holds the rule thresholds.
type Config struct {
	StaleAfter      time.Duration
	BatteryLow      int
	BatteryCritical int
}

// DefaultConfig returns the stock rule thresholds.
func DefaultConfig() Config {
	return Config{StaleAfter: DefaultStaleAfter, BatteryLow: DefaultBatteryLow, BatteryCritical: DefaultBatteryCritical}
}

// routeDetector measures how far a courier is from its route.
type routeDetector interface {
	Deviation(e fleet.EntityState) (deviation.Result, bool)
}

// Engine evaluates the rules over a fleet snapshot.
type Engine struct {
	cfg      Config
	detector routeDetector
}

// NewEngine creates an Engine. A nil detector uses the default thresholds.
func NewEngine(cfg Config, det *deviation.Detector) *Engine {
	if det == nil {
		return &Engine{cfg: cfg, detector: deviation.NewDetector(deviation.DefaultThresholds())}
	}
	return &Engine{cfg: cfg, detector: det}
}

// Evaluate runs every rule for every courier and returns the alerts ranked by
// severity. Alerts of equal severity keep their emission order.
func (e *Engine) Evaluate(ctx context.Context, states []fleet.EntityState, now time.Time) []Alert {
	var alerts []Alert
	for _, st := range states {
		alerts = append(alerts, e.evaluateOne(ctx, st, now)...)
	}
	sort.SliceStable(alerts, func(i, j int) bool { return alerts[i].Severity < alerts[j].Severity })
	return alerts
}

// evaluateOne isolates one courier: a failure while evaluating it drops only
// its own alerts.
func (e *Engine) evaluateOne(ctx context.Context, st fleet.EntityState, now time.Time) (out []Alert) {
	defer func() {
		if r := recover(); r != nil {
			logging.FromContext(ctx).Error("rule evaluation failed", "courier_id", st.ID, "panic", r)
			out = nil
		}
	}()
	for rule := Rule(0); rule < numRules; rule++ {
		if a, ok := e.apply(rule, st, now); ok {
			out = append(out, a)
		}
	}
	return out
}

func (e *Engine) apply(rule Rule, st fleet.EntityState, now time.Time) (Alert, bool) {
	alert := func(sev Severity, msg string) (Alert, bool) {
		return Alert{Rule: rule, CourierID: st.ID, CourierName: st.Name, Severity: sev, Message: msg}, true
	}
	switch rule {
	case RuleOffline:
		if st.Status == telemetry.StatusOffline {
			return alert(SeverityHigh, fmt.Sprintf("%s is offline", st.Name))
		}
	case RuleStaleTelemetry:
		if st.Status == telemetry.StatusOffline || !st.Reporting() {
			break
		}
		if age := now.Sub(st.LastTelemetry); age > e.cfg.StaleAfter {
			return alert(SeverityMedium, fmt.Sprintf("no telemetry from %s for %s", st.Name, age.Round(time.Second)))
		}
	case RuleLowBattery:
		if !st.Reporting() {
			break
		}
		switch {
		case st.Battery <= e.cfg.BatteryCritical:
			return alert(SeverityHigh, fmt.Sprintf("%s battery critical at %d%%", st.Name, st.Battery))
		case st.Battery <= e.cfg.BatteryLow:
			return alert(SeverityMedium, fmt.Sprintf("%s battery low at %d%%", st.Name, st.Battery))
		}
	case RuleOffRoute:
		res, ok := e.detector.Deviation(st)
		if !ok || math.IsNaN(res.Distance) {
			break
		}
		switch res.Class {
		case deviation.ClassHigh:
			return alert(SeverityHigh, fmt.Sprintf("%s is %.1f units off route", st.Name, res.Distance))
		case deviation.ClassMedium:
			return alert(SeverityMedium, fmt.Sprintf("%s is drifting %.1f units from route", st.Name, res.Distance))
		}
	}
	return Alert{}, false
}
