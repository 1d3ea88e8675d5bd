package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kuitang/machreg-e2e/internal/commands"
	"github.com/kuitang/machreg-e2e/internal/machreg"
)

func newCatalogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List the registered sequences and skipped checks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Sequences:")
			for _, name := range commands.Catalog() {
				fmt.Fprintf(out, "  %s\n", name)
			}
			fmt.Fprintln(out, "Skipped checks:")
			for _, pc := range machreg.PendingChecks {
				fmt.Fprintf(out, "  %s - %s (%s)\n", pc.Name, pc.Reason, pc.Issue)
			}
			return nil
		},
	}
}
