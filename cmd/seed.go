package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/engine-proxy/internal/catalog"
)

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Upsert the built-in search engines",
		Long: `Inserts or refreshes the built-in engines by shortcut, then makes sure
exactly one engine is the default. Safe to run repeatedly.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			n, err := a.catalog.Seed(cmd.Context(), catalog.DefaultEngines())
			if err != nil {
				return fmt.Errorf("seed catalog: %w", err)
			}
			cmd.Printf("seeded %d engines\n", n)
			return nil
		},
	}
}
