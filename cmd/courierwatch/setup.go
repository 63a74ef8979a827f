package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"courierwatch/internal/config"
	"courierwatch/internal/dispatch"
	"courierwatch/internal/ingest"
	"courierwatch/internal/logging"
	"courierwatch/internal/tracker"
)

// loadConfig reads the tracker config and applies the --log-level flag.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath, schemaPath)
	if err != nil {
		return nil, fmt.Errorf("config load failed: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}

// loadPlan reads an optional dispatch plan.
func loadPlan(path string) (*dispatch.Plan, error) {
	if path == "" {
		return nil, nil
	}
	return dispatch.Load(path)
}

func coordinatorOptions(cfg *config.Config, w tracker.PublicationWriter) tracker.Options {
	return tracker.Options{
		TickInterval: cfg.TickInterval,
		QueueSize:    cfg.QueueSize,
		Retention:    cfg.TrailRetention,
		Risk:         cfg.RiskConfig(),
		Thresholds:   cfg.Thresholds(),
		Writer:       w,
	}
}

// seedRoster registers the configured couriers and routes, then applies plan
// on top when one is given.
func seedRoster(a dispatch.Assigner, cfg *config.Config, plan *dispatch.Plan) error {
	for _, c := range cfg.Couriers {
		a.Register(c.ID, c.Name)
	}
	var errs []error
	for _, r := range cfg.Routes {
		if err := a.AssignRoute(r.Assignment()); err != nil {
			errs = append(errs, err)
		}
	}
	if plan != nil {
		if err := plan.Apply(a); err != nil {
			errs = append(errs, fmt.Errorf("plan %s: %w", plan.Name, err))
		}
	}
	return errors.Join(errs...)
}

// component is a named long-running part of a command.
type component struct {
	name string
	run  func(ctx context.Context) error
}

// ingestSources builds the broker sources enabled through the environment.
func ingestSources(q ingest.Enqueuer) []component {
	var out []component
	if broker := os.Getenv("MQTT_BROKER_URL"); broker != "" {
		clientID := os.Getenv("MQTT_CLIENT_ID")
		if clientID == "" {
			clientID = "courierwatch"
		}
		src := ingest.NewMQTTSource(ingest.MQTTConfig{
			BrokerURL: broker,
			ClientID:  clientID,
			Topic:     envOr("MQTT_TOPIC", "couriers/+/telemetry"),
			QoS:       1,
			Username:  os.Getenv("MQTT_USERNAME"),
			Password:  os.Getenv("MQTT_PASSWORD"),
		}, q)
		out = append(out, component{name: "mqtt", run: src.Run})
	}
	brokers := splitList(os.Getenv("KAFKA_BROKERS"))
	if topic := os.Getenv("KAFKA_TELEMETRY_TOPIC"); len(brokers) > 0 && topic != "" {
		src := ingest.NewKafkaSource(brokers, envOr("KAFKA_GROUP_ID", "courierwatch"), topic, q)
		out = append(out, component{name: "kafka", run: src.Run})
	}
	return out
}

// runAll runs every component until ctx is done or one of them fails. The
// first failure cancels the rest and is returned.
func runAll(ctx context.Context, components ...component) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	log := logging.FromContext(ctx)

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	for _, c := range components {
		wg.Add(1)
		go func(c component) {
			defer wg.Done()
			if err := c.run(ctx); err != nil {
				log.Error("component failed", "component", c.name, "err", err)
				once.Do(func() {
					firstErr = fmt.Errorf("%s: %w", c.name, err)
					cancel()
				})
			}
		}(c)
	}
	wg.Wait()
	return firstErr
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
