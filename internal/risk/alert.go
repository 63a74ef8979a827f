// Package risk classifies courier state into ranked operational alerts.
package risk

import "fmt"

// Severity ranks alerts. Lower values sort first.
type Severity int

const (
	SeverityHigh Severity = iota
	SeverityMedium
	SeverityLow
)

func (s Severity) String() string {
	switch s {
	case SeverityHigh:
		return "high"
	case SeverityMedium:
		return "medium"
	case SeverityLow:
		return "low"
	}
	return fmt.Sprintf("Severity(%d)", int(s))
}

// MarshalText encodes the severity by name.
func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText decodes a severity name.
func (s *Severity) UnmarshalText(b []byte) error {
	switch string(b) {
	case "high":
		*s = SeverityHigh
	case "medium":
		*s = SeverityMedium
	case "low":
		*s = SeverityLow
	default:
		return fmt.Errorf("unknown severity %q", b)
	}
	return nil
}

// Rule identifies the classification rule that raised an alert. The
// declaration order is the evaluation order.
type Rule int

const (
	RuleOffline Rule = iota
	RuleStaleTelemetry
	RuleLowBattery
	RuleOffRoute
	numRules
)

func (r Rule) String() string {
	switch r {
	case RuleOffline:
		return "OFFLINE"
	case RuleStaleTelemetry:
		return "STALE_TELEMETRY"
	case RuleLowBattery:
		return "LOW_BATTERY"
	case RuleOffRoute:
		return "OFF_ROUTE"
	}
	return fmt.Sprintf("Rule(%d)", int(r))
}

// MarshalText encodes the rule by name.
func (r Rule) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// UnmarshalText decodes a rule name.
func (r *Rule) UnmarshalText(b []byte) error {
	for c := Rule(0); c < numRules; c++ {
		if c.String() == string(b) {
			*r = c
			return nil
		}
	}
	return fmt.Errorf("unknown rule %q", b)
}

// Alert is one classification result. Alerts are rebuilt every tick.
type Alert struct {
	Rule        Rule     `json:"rule"`
	CourierID   string   `json:"courier_id"`
	CourierName string   `json:"courier_name"`
	Severity    Severity `json:"severity"`
	Message     string   `json:"message"`
}
