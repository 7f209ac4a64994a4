package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

type appKeyType string

const appKey appKeyType = "app"

// newRootCmd creates the root command and its subcommands. The returned
// cleanup closes the application services and must run after Execute, since
// cobra skips post-run hooks when a command fails.
func newRootCmd() (*cobra.Command, func()) {
	var (
		cfgFile string
		built   *app
	)
	cmd := &cobra.Command{
		Use:   "engine-proxy",
		Short: "Shortcut-driven search redirector with an admin-managed engine catalog.",
		Long: `engine-proxy turns input such as "yt lofi beats" into a redirect to the
matching search engine. Admins manage the catalog of shortcuts; exactly one
engine is the default for input without a known shortcut.`,
		SilenceUsage: true,

		// Build the shared services once config is known.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			built = a
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, a))
			return nil
		},
	}
	cleanup := func() {
		if built != nil {
			built.Close()
			built = nil
		}
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, JSON or TOML)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newSeedCmd())
	cmd.AddCommand(newRepairCmd())
	return cmd, cleanup
}

func resolveApp(ctx context.Context) (*app, error) {
	a, ok := ctx.Value(appKey).(*app)
	if !ok || a == nil {
		return nil, errors.New("application services not initialized")
	}
	return a, nil
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root, cleanup := newRootCmd()
	err := root.ExecuteContext(ctx)
	cleanup()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
