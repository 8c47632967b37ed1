package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"milestone-escrow/logger"
	"milestone-escrow/scheduler"
)

func sweepCommand() *cobra.Command {
	var workers int
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one expiry pass over stale milestones and closed disputes, then exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if workers <= 0 {
				workers = a.cfg.Scheduler.Workers
			}
			sweeper, err := scheduler.NewSweeper(a.funding, a.disputes, workers, nil)
			if err != nil {
				return fmt.Errorf("create sweeper: %w", err)
			}
			defer sweeper.Close()

			res, err := sweeper.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			logger.Logger.Info("Sweep finished",
				zap.Int("milestones_expired", res.MilestonesExpired),
				zap.Int("disputes_resolved", res.DisputesResolved),
				zap.Int("failed", res.Failed))
			fmt.Fprintf(cmd.OutOrStdout(), "milestones expired: %d, disputes resolved: %d, failed: %d\n",
				res.MilestonesExpired, res.DisputesResolved, res.Failed)
			return nil
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 0, "worker pool size (default: scheduler.workers)")
	return cmd
}
