package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and print the schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			status, err := a.store.MigrationStatus(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "schema version %s\n", status.CurrentVersion)
			for _, applied := range status.Applied {
				fmt.Fprintf(out, "  %s applied %s\n", applied.Version, applied.AppliedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}
