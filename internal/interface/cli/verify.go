package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/weftworks/weft/internal/infrastructure/di"
)

func newVerifyCmd() *cobra.Command {
	var lenient bool

	cmd := &cobra.Command{
		Use:   "verify <thread-id>",
		Short: "Verify the signed checkpoints of a thread's journal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(func(c *di.Container) error {
				if err := c.Journal().Verify(args[0], lenient); err != nil {
					return err
				}
				fmt.Printf("journal of %s verified\n", args[0])
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&lenient, "lenient", false, "tolerate unsigned content after the last checkpoint")
	return cmd
}
