package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/autoescola/internal/availability"
	"github.com/example/autoescola/internal/domain"
)

func newSlotsCmd() *cobra.Command {
	var (
		from string
		days int
	)
	cmd := &cobra.Command{
		Use:   "slots <instructor-id>",
		Short: "Print an instructor's bookable slots for consecutive days",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if days <= 0 || days > 31 {
				return fmt.Errorf("--days must be between 1 and 31")
			}
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			start := domain.DateOf(time.Now().In(a.cfg.Location)).AddDays(1)
			if from != "" {
				if start, err = domain.ParseDate(from); err != nil {
					return fmt.Errorf("--from: %w", err)
				}
			}

			instructors := a.instructorService()
			instructorID := args[0]
			profile, err := instructors.Get(cmd.Context(), instructorID)
			if err != nil {
				return err
			}

			var occupying []domain.Booking
			for i := 0; i < days; i++ {
				booked, err := instructors.Occupancy(cmd.Context(), instructorID, start.AddDays(i))
				if err != nil {
					return err
				}
				occupying = append(occupying, booked...)
			}

			week := availability.NewEngine().Week(profile.Availability, instructorID, start, days, occupying)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(week)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first date (YYYY-MM-DD), defaults to tomorrow")
	cmd.Flags().IntVar(&days, "days", 7, "number of consecutive days")
	return cmd
}
