package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"courierwatch/internal/admin"
	"courierwatch/internal/config"
	"courierwatch/internal/feed"
	"courierwatch/internal/logging"
	"courierwatch/internal/telemetry"
	"courierwatch/internal/tracker"
)

var (
	demoCouriers int
	demoArea     float64
	demoStep     time.Duration
	demoSeed     int64
	demoAddr     string
	demoTUI      bool
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run the tracker against simulated couriers",
	Long: "demo drives the tracker with a random-walk feed along assigned routes, with battery drain, " +
		"dropouts and route drift, so alerts can be watched without real devices.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		opts := outputOptions{PrintOnly: true, TUI: demoTUI}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		log := newLogger(cfg, opts)
		ctx = logging.NewContext(ctx, log)

		out, err := newWriters(ctx, cfg, opts)
		if err != nil {
			return err
		}
		defer out.Close(ctx)

		hub := admin.NewFeed()
		coord := tracker.NewCoordinator(coordinatorOptions(cfg, out.Writer(hub)))
		if err := seedRoster(coord, cfg, nil); err != nil {
			return err
		}

		gen := feed.NewGenerator(demoSeed, feed.DefaultBehaviour(), nil)
		for _, c := range cfg.Couriers {
			gen.Add(c.ID, c.Name, routeOf(cfg, c.ID))
		}
		for _, c := range gen.Spawn(demoCouriers, demoArea) {
			coord.Register(c.ID, c.Name)
			if err := coord.AssignRoute(telemetry.RouteAssignment{CourierID: c.ID, Route: *c.Route, TaskID: c.TaskID}); err != nil {
				return err
			}
		}

		srv := admin.NewServer(coord, hub)
		return runAll(ctx,
			component{name: "tracker", run: coord.Run},
			component{name: "admin", run: func(ctx context.Context) error { return srv.Start(ctx, demoAddr) }},
			component{name: "feed", run: func(ctx context.Context) error { return gen.Run(ctx, demoStep, coord) }},
		)
	},
}

func init() {
	demoCmd.Flags().IntVar(&demoCouriers, "couriers", 5, "Number of random couriers to simulate next to the configured roster")
	demoCmd.Flags().Float64Var(&demoArea, "area", 50, "Side of the square the random routes are drawn in")
	demoCmd.Flags().DurationVar(&demoStep, "step", time.Second, "Interval between simulated reports")
	demoCmd.Flags().Int64Var(&demoSeed, "seed", time.Now().UnixNano(), "Random seed for the simulated feed")
	demoCmd.Flags().StringVar(&demoAddr, "addr", ":8080", "Admin HTTP listen address")
	demoCmd.Flags().BoolVar(&demoTUI, "tui", true, "Render the alert board in the terminal when STDOUT is a TTY")
}

// routeOf returns the configured route of a roster courier, or nil.
func routeOf(cfg *config.Config, id string) *telemetry.Route {
	for _, r := range cfg.Routes {
		if r.CourierID == id {
			route := r.Assignment().Route
			return &route
		}
	}
	return nil
}
