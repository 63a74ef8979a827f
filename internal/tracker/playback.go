package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"courierwatch/internal/logging"
	"courierwatch/internal/telemetry"
)

// replayClock is advanced by ReplayLog instead of wall time.
type replayClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *replayClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *replayClock) advance(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.After(c.t) {
		c.t = t
	}
}

// ReplayLog feeds a JSONL report log through a fresh coordinator built from
// opts. Ticks run on a clock derived from report timestamps, one every
// opts.TickInterval, with a final tick after the last report. The result
// depends only on the log content and opts. Malformed lines are skipped.
// roster seeds couriers and routes before the first report; if it fails,
// nothing is replayed and no publication is written.
func ReplayLog(ctx context.Context, r io.Reader, opts Options, roster func(*Coordinator) error) (*Coordinator, error) {
	log := logging.FromContext(ctx)
	clock := &replayClock{}
	opts.Now = clock.Now
	c := NewCoordinator(opts)
	if roster != nil {
		if err := roster(c); err != nil {
			return nil, fmt.Errorf("seed roster: %w", err)
		}
	}

	var (
		next    time.Time
		latest  time.Time
		pending int
		line    int
	)
	tick := func(at time.Time) error {
		clock.advance(at)
		if _, err := c.Tick(ctx); err != nil {
			return err
		}
		pending = 0
		return nil
	}

	dec := json.NewDecoder(r)
	for {
		if err := ctx.Err(); err != nil {
			return c, err
		}
		var w telemetry.WireReport
		line++
		if err := dec.Decode(&w); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return c, fmt.Errorf("decode report log entry %d: %w", line, err)
		}
		rep, err := w.Report()
		if err != nil {
			log.Warn("skipping report log entry", "entry", line, "err", err)
			continue
		}
		if next.IsZero() {
			next = rep.Timestamp.Add(c.interval)
		}
		for !rep.Timestamp.Before(next) {
			if err := tick(next); err != nil {
				return c, err
			}
			next = next.Add(c.interval)
		}
		if rep.Timestamp.After(latest) {
			latest = rep.Timestamp
		}
		if err := c.Enqueue(rep); errors.Is(err, ErrQueueFull) {
			if err := tick(latest); err != nil {
				return c, err
			}
			if err := c.Enqueue(rep); err != nil {
				return c, err
			}
		}
		pending++
	}
	if pending > 0 {
		if err := tick(next); err != nil {
			return c, err
		}
	}
	log.Info("replay finished", "entries", line-1, "ticks", c.Latest().Seq)
	return c, nil
}

// ReplayLogFile opens a file and replays its reports.
func ReplayLogFile(ctx context.Context, path string, opts Options, roster func(*Coordinator) error) (*Coordinator, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReplayLog(ctx, f, opts, roster)
}
