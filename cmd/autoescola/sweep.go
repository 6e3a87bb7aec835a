package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/example/autoescola/internal/jobs"
)

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Auto-cancel overdue requests and complete finished lessons once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			scheduler, err := jobs.NewScheduler(a.bookingService(), jobs.Config{
				Schedule: a.cfg.SweepSchedule,
				Location: a.cfg.Location,
				Logger:   a.logger,
			})
			if err != nil {
				return err
			}
			result, err := scheduler.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(result)
		},
	}
}
