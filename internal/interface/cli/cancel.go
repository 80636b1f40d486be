package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/weftworks/weft/internal/infrastructure/di"
)

func newCancelCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "cancel <thread-id>",
		Short: "Request cooperative cancellation of a thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(func(c *di.Container) error {
				if err := c.Orchestrator().Cancel(context.Background(), args[0], reason); err != nil {
					return err
				}
				fmt.Printf("cancellation requested for %s\n", args[0])
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded with the cancellation")
	return cmd
}
