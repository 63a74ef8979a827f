// Package ingest feeds device telemetry from message brokers into the tracker.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"courierwatch/internal/logging"
	"courierwatch/internal/telemetry"
	"courierwatch/internal/tracker"
)

// Enqueuer accepts decoded reports for the next tick.
type Enqueuer interface {
	Enqueue(telemetry.Report) error
}

// Stats counts the outcome of one payload.
type Stats struct {
	Accepted int
	Dropped  int
}

// HandlePayload decodes a single report or a JSON array of reports and
// enqueues them. A malformed payload is rejected as a whole. Reports that do
// not fit in the queue are dropped and counted.
func HandlePayload(ctx context.Context, source string, q Enqueuer, payload []byte) (Stats, error) {
	log := logging.FromContext(ctx)
	reports, err := telemetry.DecodeReports(payload)
	if err != nil {
		log.Warn("rejected payload", "source", source, "err", err, "payload", Truncate(payload, 256))
		return Stats{}, err
	}
	var st Stats
	for _, r := range reports {
		if err := q.Enqueue(r); err != nil {
			if errors.Is(err, tracker.ErrQueueFull) {
				st.Dropped++
				continue
			}
			return st, fmt.Errorf("enqueue %s: %w", r.CourierID, err)
		}
		st.Accepted++
	}
	if st.Dropped > 0 {
		log.Warn("ingestion queue full, reports dropped", "source", source, "dropped", st.Dropped)
	}
	return st, nil
}

// Truncate shortens b to at most n bytes for logging.
func Truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
