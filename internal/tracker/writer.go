package tracker

import "courierwatch/internal/telemetry"

// PublicationWriter receives every tick's publication.
type PublicationWriter interface {
	WritePublication(Publication) error
}

// ReportWriter is implemented by writers that also record the raw reports
// drained during a tick, in arrival order.
type ReportWriter interface {
	WriteReports([]telemetry.Report) error
}

// AlertRows flattens the alerts of p for tabular sinks.
func AlertRows(p Publication) []telemetry.AlertRow {
	rows := make([]telemetry.AlertRow, 0, len(p.Alerts))
	for _, a := range p.Alerts {
		rows = append(rows, telemetry.AlertRow{
			TickID:      p.ID,
			CourierID:   a.CourierID,
			CourierName: a.CourierName,
			Rule:        a.Rule.String(),
			Severity:    a.Severity.String(),
			Message:     a.Message,
			Timestamp:   p.At,
		})
	}
	return rows
}

// StateRows flattens the courier states of p for tabular sinks.
func StateRows(p Publication) []telemetry.StateRow {
	rows := make([]telemetry.StateRow, 0, len(p.Entities))
	for _, e := range p.Entities {
		rows = append(rows, telemetry.StateRow{
			TickID:        p.ID,
			CourierID:     e.ID,
			Name:          e.Name,
			Status:        e.Status,
			Lat:           e.Position.Lat,
			Lng:           e.Position.Lng,
			Battery:       e.Battery,
			Signal:        e.Signal,
			SpeedKmh:      e.SpeedKmh,
			TaskID:        e.TaskID,
			HasRoute:      e.Route != nil,
			LastTelemetry: e.LastTelemetry,
			Timestamp:     p.At,
		})
	}
	return rows
}
