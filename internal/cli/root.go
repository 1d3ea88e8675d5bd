// Package cli implements the machreg-smoke command line.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/kuitang/machreg-e2e/internal/config"
	"github.com/kuitang/machreg-e2e/internal/obs"
)

// flags shared by every subcommand; they override the environment.
type rootFlags struct {
	url      string
	username string
	browser  string
	headless bool
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	var flags rootFlags

	rootCmd := &cobra.Command{
		Use:   "machreg-smoke",
		Short: "machreg-smoke - Elemental machine registration smoke tests",
		Long: `machreg-smoke drives the Rancher dashboard's Elemental pages in a real
browser: login, create a machine registration, verify its labels and
annotations, edit it and delete it.

Quick start:
  export DASHBOARD_URL=https://rancher.example DASHBOARD_USERNAME=admin DASHBOARD_PASSWORD=...
  machreg-smoke run                         # Full scenario with a generated name
  machreg-smoke run --namespace ns1 --keep  # Create in a new namespace and keep it
  machreg-smoke fake-dashboard              # Serve the fake dashboard on :8080
  machreg-smoke catalog                     # List the available sequences`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			obs.Init()
		},
	}

	rootCmd.PersistentFlags().StringVar(&flags.url, "url", "", "Dashboard URL (overrides DASHBOARD_URL)")
	rootCmd.PersistentFlags().StringVarP(&flags.username, "username", "u", "", "Dashboard user (overrides DASHBOARD_USERNAME)")
	rootCmd.PersistentFlags().StringVar(&flags.browser, "browser", "", "chromium, firefox or webkit (overrides BROWSER)")
	rootCmd.PersistentFlags().BoolVar(&flags.headless, "headless", true, "Run the browser headless (overrides HEADLESS)")

	rootCmd.AddCommand(newRunCmd(&flags))
	rootCmd.AddCommand(newCatalogCmd())
	rootCmd.AddCommand(newArtifactsCmd())
	rootCmd.AddCommand(newFakeDashboardCmd(&flags))

	return rootCmd
}

// loadConfig reads the environment and applies flags that were set.
func loadConfig(cmd *cobra.Command, flags *rootFlags) *config.Config {
	cfg := config.Load()
	if flags.url != "" {
		cfg.DashboardURL = flags.url
	}
	if flags.username != "" {
		cfg.Username = flags.username
	}
	if flags.browser != "" {
		cfg.Browser = flags.browser
	}
	if cmd.Flags().Changed("headless") {
		cfg.Headless = flags.headless
	}
	return cfg
}

// Execute runs the command line with os.Args.
func Execute() error {
	return NewRootCmd().Execute()
}
