package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"courierwatch/internal/logging"
	"courierwatch/internal/telemetry"
)

// Run ticks at the configured interval until ctx is done. It returns nil on
// cancellation and the error of a failed tick otherwise.
func (c *Coordinator) Run(ctx context.Context) error {
	log := logging.FromContext(ctx)
	log.Info("starting tracker", "tick_interval", c.interval)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := c.Tick(ctx); err != nil {
				log.Error("tick failed", "err", err)
				return err
			}
		case <-ctx.Done():
			log.Info("stopping tracker")
			return nil
		}
	}
}

// Tick drains the queue, updates state and trails, evaluates the rules and
// publishes the result to readers and writers. Concurrent calls run one after
// the other.
func (c *Coordinator) Tick(ctx context.Context) (*Publication, error) {
	c.tickMu.Lock()
	defer c.tickMu.Unlock()

	pub, received, err := c.advance(ctx)
	if err != nil {
		return nil, err
	}
	c.write(ctx, pub, received)
	return pub, nil
}

func (c *Coordinator) advance(ctx context.Context) (*Publication, []telemetry.Report, error) {
	log := logging.FromContext(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if !c.lastTick.IsZero() && now.Before(c.lastTick) {
		return nil, nil, fmt.Errorf("%w: tick at %s precedes previous tick at %s",
			ErrClockRegression, now.Format(time.RFC3339Nano), c.lastTick.Format(time.RFC3339Nano))
	}
	c.lastTick = now

	received := c.drain()
	applied, rejected := 0, 0
	for _, r := range received {
		res := c.store.ApplyReport(r)
		if !res.Applied {
			rejected++
			log.Debug("report rejected", "courier_id", r.CourierID, "reason", res.Reason, "err", res.Err)
			continue
		}
		applied++
		c.trails.Append(r.CourierID, r.Position, r.Timestamp)
	}
	c.trails.PruneAll(now)

	states := c.store.Snapshot()
	alerts := c.engine.Evaluate(ctx, states, now)

	c.seq++
	pub := &Publication{
		ID:       uuid.NewString(),
		Seq:      c.seq,
		At:       now,
		Entities: states,
		Alerts:   alerts,
		Trails:   c.trails.Snapshot(),
		Applied:  applied,
		Rejected: rejected,
	}
	c.latest.Store(pub)
	log.Debug("tick published", "seq", pub.Seq, "applied", applied, "rejected", rejected, "alerts", len(alerts))
	return pub, received, nil
}

// drain takes everything currently queued without waiting for more.
func (c *Coordinator) drain() []telemetry.Report {
	var out []telemetry.Report
	for {
		select {
		case r := <-c.queue:
			out = append(out, r)
		default:
			return out
		}
	}
}

// write fans the publication out. Writer failures are logged and never
// affect engine state.
func (c *Coordinator) write(ctx context.Context, pub *Publication, received []telemetry.Report) {
	if c.writer == nil {
		return
	}
	log := logging.FromContext(ctx)
	if rw, ok := c.writer.(ReportWriter); ok && len(received) > 0 {
		if err := rw.WriteReports(received); err != nil {
			log.Error("report write failed", "err", err)
		}
	}
	if err := c.writer.WritePublication(*pub); err != nil {
		log.Error("publication write failed", "seq", pub.Seq, "err", err)
	}
}
