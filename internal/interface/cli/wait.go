package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/weftworks/weft/internal/infrastructure/di"
)

func newWaitCmd() *cobra.Command {
	var (
		failFast       bool
		cancelSiblings bool
		timeout        time.Duration
		jsonOutput     bool
	)

	cmd := &cobra.Command{
		Use:   "wait <thread-id>...",
		Short: "Block until the given threads reach a settled state",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(func(c *di.Container) error {
				res, err := c.Orchestrator().Wait(context.Background(), args, failFast, cancelSiblings, timeout)
				if err != nil {
					return err
				}
				if jsonOutput {
					return json.NewEncoder(os.Stdout).Encode(res)
				}
				for _, id := range args {
					out, ok := res.Outcomes[id]
					if !ok {
						fmt.Printf("%-40s outstanding\n", id)
						continue
					}
					line := fmt.Sprintf("%-40s %s", out.ThreadID, out.Status)
					if out.Error != "" {
						line += " " + out.Error
					}
					fmt.Println(line)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "return on the first error outcome")
	cmd.Flags().BoolVar(&cancelSiblings, "cancel-siblings", false, "poison outstanding threads when the wait cuts short")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "wait timeout (0 = no timeout)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output outcomes as JSON")
	return cmd
}
