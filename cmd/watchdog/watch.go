package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/docutag/watchdog"
	"github.com/docutag/watchdog/models"
)

func init() {
	cmd := &cobra.Command{
		Use:   "watch <url>",
		Short: "Re-evaluate a page whenever it changes",
		Long: "Poll a page for navigations and content changes. Bursts of changes are " +
			"debounced into one evaluation. Stops on interrupt.",
		Args: cobra.ExactArgs(1),
		Run:  runWatch,
	}

	cmd.Flags().Duration("interval", 0, "Poll interval (default: $POLL_INTERVAL or 5s)")
	cmd.Flags().Duration("delay", 0, "Debounce delay (default: $WATCH_DELAY or 1.5s)")

	rootCmd.AddCommand(cmd)
}

func runWatch(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	interval, _ := cmd.Flags().GetDuration("interval")
	delay, _ := cmd.Flags().GetDuration("delay")
	if interval <= 0 {
		interval = cfg.PollInterval
	}
	if delay <= 0 {
		delay = cfg.WatchDelay
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := newCLIAnalyzer(cfg)
	err := a.Watch(ctx, args[0], watchdog.WatchOptions{PollInterval: interval, Delay: delay},
		func(result *models.AnalysisResult, err error) {
			printResult(result, err)
		})
	if err != nil {
		exitErr("watch", err)
	}
}
