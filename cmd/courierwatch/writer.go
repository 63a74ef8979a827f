package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"golang.org/x/term"

	"courierwatch/internal/config"
	"courierwatch/internal/logging"
	"courierwatch/internal/tracker"
)

// outputOptions selects where publications go.
type outputOptions struct {
	PrintOnly bool
	TUI       bool
	States    bool
	LogFile   string
}

// outputs is the writer set of one command plus everything to close on exit.
type outputs struct {
	writers []tracker.PublicationWriter
	closers []io.Closer
}

// Close closes writers in reverse order of creation.
func (o *outputs) Close(ctx context.Context) {
	log := logging.FromContext(ctx)
	for i := len(o.closers) - 1; i >= 0; i-- {
		if err := o.closers[i].Close(); err != nil {
			log.Warn("writer close failed", "err", err)
		}
	}
}

// Writer combines the writers with extra, for example the websocket feed.
func (o *outputs) Writer(extra ...tracker.PublicationWriter) *tracker.MultiWriter {
	ws := append(append([]tracker.PublicationWriter{}, o.writers...), extra...)
	return tracker.NewMultiWriter(ws...)
}

var stdoutIsTerminal = func() bool { return term.IsTerminal(int(os.Stdout.Fd())) }

// greptimeEnabled reports whether publications go to GreptimeDB instead of STDOUT.
func greptimeEnabled(opts outputOptions) bool {
	return !opts.PrintOnly && os.Getenv("GREPTIMEDB_ENDPOINT") != ""
}

// useTUI reports whether STDOUT output is rendered as the terminal board.
func useTUI(opts outputOptions) bool {
	return opts.TUI && !greptimeEnabled(opts) && stdoutIsTerminal()
}

// newWriters sets up publication writers based on opts and env vars.
func newWriters(ctx context.Context, cfg *config.Config, opts outputOptions) (*outputs, error) {
	out := &outputs{}
	fail := func(err error) (*outputs, error) {
		out.Close(ctx)
		return nil, err
	}

	switch {
	case greptimeEnabled(opts):
		w, err := tracker.NewGreptimeDBWriter(os.Getenv("GREPTIMEDB_ENDPOINT"), envOr("GREPTIMEDB_DATABASE", "public"))
		if err != nil {
			return fail(fmt.Errorf("init GreptimeDB writer: %w", err))
		}
		out.writers = append(out.writers, w)
	case useTUI(opts):
		w := tracker.NewTUIWriter()
		out.writers = append(out.writers, w)
		out.closers = append(out.closers, w)
	default:
		out.writers = append(out.writers, tracker.NewJSONStdoutWriter(opts.States))
	}

	brokers := splitList(os.Getenv("KAFKA_BROKERS"))
	if topic := os.Getenv("KAFKA_ALERT_TOPIC"); len(brokers) > 0 && topic != "" {
		w := tracker.NewKafkaWriter(brokers, topic)
		out.writers = append(out.writers, w)
		out.closers = append(out.closers, w)
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		db := 0
		if v := os.Getenv("REDIS_DB"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fail(fmt.Errorf("invalid REDIS_DB: %w", err))
			}
			db = n
		}
		ttl := 2 * cfg.StaleAfter
		if v := os.Getenv("REDIS_STATE_TTL"); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fail(fmt.Errorf("invalid REDIS_STATE_TTL: %w", err))
			}
			ttl = d
		}
		w, err := tracker.NewRedisWriter(ctx, addr, os.Getenv("REDIS_PASSWORD"), db, ttl)
		if err != nil {
			return fail(err)
		}
		out.writers = append(out.writers, w)
		out.closers = append(out.closers, w)
	}

	if opts.LogFile != "" {
		statePath := ""
		if opts.States {
			statePath = opts.LogFile + ".states"
		}
		fw, err := tracker.NewFileWriter(opts.LogFile, opts.LogFile+".alerts", statePath)
		if err != nil {
			return fail(fmt.Errorf("create log file: %w", err))
		}
		out.writers = append(out.writers, fw)
		out.closers = append(out.closers, fw)
	}
	return out, nil
}

// newLogger logs to STDOUT unless the terminal board owns the screen.
func newLogger(cfg *config.Config, opts outputOptions) *slog.Logger {
	if useTUI(opts) {
		return logging.NewWithWriter(io.Discard, cfg.LogLevel)
	}
	return logging.New(cfg.LogLevel)
}
