package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRepairCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repair",
		Short: "Restore the default engine if none is flagged",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			promoted, err := a.catalog.Repair(cmd.Context())
			if err != nil {
				return fmt.Errorf("repair default: %w", err)
			}
			if promoted == nil {
				cmd.Println("default engine already set (or catalog empty)")
				return nil
			}
			cmd.Printf("promoted %s (%s) to default\n", promoted.DisplayName, promoted.Shortcut)
			return nil
		},
	}
}
