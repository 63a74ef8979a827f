package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"courierwatch/internal/admin"
	"courierwatch/internal/logging"
	"courierwatch/internal/tracker"
)

var (
	serveAddr      string
	serveRoutes    string
	servePrintOnly bool
	serveTUI       bool
	serveStates    bool
	serveLogFile   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the tracker with HTTP and broker ingestion",
	Long: "serve runs the tick loop, accepts reports over HTTP and, when configured through the " +
		"environment, MQTT and Kafka, and publishes alerts to STDOUT, GreptimeDB, Kafka, Redis and a log file.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		plan, err := loadPlan(serveRoutes)
		if err != nil {
			return err
		}
		opts := outputOptions{PrintOnly: servePrintOnly, TUI: serveTUI, States: serveStates, LogFile: serveLogFile}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		log := newLogger(cfg, opts)
		ctx = logging.NewContext(ctx, log)

		out, err := newWriters(ctx, cfg, opts)
		if err != nil {
			return err
		}
		defer out.Close(ctx)

		feed := admin.NewFeed()
		coord := tracker.NewCoordinator(coordinatorOptions(cfg, out.Writer(feed)))
		if err := seedRoster(coord, cfg, plan); err != nil {
			return err
		}
		srv := admin.NewServer(coord, feed)

		components := []component{
			{name: "tracker", run: coord.Run},
			{name: "admin", run: func(ctx context.Context) error { return srv.Start(ctx, serveAddr) }},
		}
		components = append(components, ingestSources(coord)...)
		log.Info("courierwatch starting", "tick", cfg.TickInterval, "components", len(components))

		err = runAll(ctx, components...)
		log.Info("courierwatch stopped")
		return err
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Admin HTTP listen address")
	serveCmd.Flags().StringVar(&serveRoutes, "routes", "", "Dispatch plan YAML applied at startup")
	serveCmd.Flags().BoolVar(&servePrintOnly, "print-only", false, "Print alerts to STDOUT instead of writing to DB")
	serveCmd.Flags().BoolVar(&serveTUI, "tui", false, "Render the alert board in the terminal instead of JSON lines")
	serveCmd.Flags().BoolVar(&serveStates, "states", false, "Also emit courier state rows on STDOUT and in the log file")
	serveCmd.Flags().StringVar(&serveLogFile, "log-file", "", "Path to export the report log (JSONL); alerts go to <path>.alerts")
}
