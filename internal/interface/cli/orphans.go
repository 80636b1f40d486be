package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/weftworks/weft/internal/infrastructure/di"
)

func newOrphansCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orphans",
		Short: "Detect and recover threads abandoned by a dead process",
		RunE:  func(c *cobra.Command, _ []string) error { return c.Help() },
	}
	cmd.AddCommand(newOrphansScanCmd())
	cmd.AddCommand(newOrphansRecoverCmd())
	return cmd
}

func newOrphansScanCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "List threads with no live runner and a stale journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(func(c *di.Container) error {
				orphans, err := c.Orchestrator().ScanOrphans(context.Background())
				if err != nil {
					return err
				}
				if jsonOutput {
					return json.NewEncoder(os.Stdout).Encode(orphans)
				}
				if len(orphans) == 0 {
					fmt.Println("no orphaned threads")
					return nil
				}
				for _, o := range orphans {
					recoverable := "unrecoverable"
					if o.Recoverable {
						recoverable = "recoverable"
					}
					fmt.Printf("%-40s %-10s stale %.0fs %s\n", o.ThreadID, o.Status, o.StaleFor, recoverable)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output the scan as JSON")
	return cmd
}

func newOrphansRecoverCmd() *cobra.Command {
	var action string

	cmd := &cobra.Command{
		Use:   "recover <thread-id>",
		Short: "Settle an orphaned thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(func(c *di.Container) error {
				if err := c.Orchestrator().RecoverOrphan(context.Background(), args[0], action); err != nil {
					return err
				}
				fmt.Printf("recovered %s as %s\n", args[0], action)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&action, "action", "error", "recovery action: resume, error, or cancel")
	return cmd
}
