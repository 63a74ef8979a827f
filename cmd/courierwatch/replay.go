package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"courierwatch/internal/logging"
	"courierwatch/internal/tracker"
)

var (
	replayInput     string
	replayRoutes    string
	replayPrintOnly bool
	replayStates    bool
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a report log through a fresh tracker",
	Long: "replay re-runs a JSONL report log written by serve --log-file on a clock taken from the " +
		"report timestamps and emits the resulting alerts. The same log always yields the same alerts.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayInput == "" {
			return fmt.Errorf("input file required")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		plan, err := loadPlan(replayRoutes)
		if err != nil {
			return err
		}
		opts := outputOptions{PrintOnly: replayPrintOnly, States: replayStates}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		log := newLogger(cfg, opts)
		ctx = logging.NewContext(ctx, log)

		out, err := newWriters(ctx, cfg, opts)
		if err != nil {
			return err
		}
		defer out.Close(ctx)

		coord, err := tracker.ReplayLogFile(ctx, replayInput, coordinatorOptions(cfg, out.Writer()), func(c *tracker.Coordinator) error {
			return seedRoster(c, cfg, plan)
		})
		if err != nil {
			return err
		}
		s := coord.Summary()
		log.Info("replay finished", "ticks", s.Seq, "couriers", s.Total, "alerts", len(coord.Latest().Alerts))
		return nil
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to report log file")
	replayCmd.Flags().StringVar(&replayRoutes, "routes", "", "Dispatch plan YAML applied before the first report")
	replayCmd.Flags().BoolVar(&replayPrintOnly, "print-only", false, "Print alerts to STDOUT instead of writing to DB")
	replayCmd.Flags().BoolVar(&replayStates, "states", false, "Also emit courier state rows")
	replayCmd.MarkFlagRequired("input")
}
