package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/weftworks/weft/internal/domain/model/thread"
	"github.com/weftworks/weft/internal/infrastructure/di"
)

func newResumeCmd() *cobra.Command {
	var (
		limits     limitFlags
		prompt     string
		wait       bool
		timeout    time.Duration
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "resume <thread-id>",
		Short: "Resume a suspended thread with approved limit increases",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(func(c *di.Container) error {
				ctx := context.Background()
				id := args[0]

				var newLimits *thread.Limits
				if l := limits.toLimits(); l != (thread.Limits{}) {
					newLimits = &l
				}
				if err := c.Orchestrator().Resume(ctx, id, newLimits, prompt); err != nil {
					return err
				}
				if !wait {
					fmt.Printf("resumed %s\n", id)
					return nil
				}

				res, err := c.Orchestrator().Wait(ctx, []string{id}, false, false, timeout)
				if err != nil {
					return err
				}
				out, ok := res.Outcomes[id]
				if !ok {
					return fmt.Errorf("thread %s still outstanding after timeout", id)
				}
				if jsonOutput {
					return json.NewEncoder(os.Stdout).Encode(out)
				}
				fmt.Printf("Thread : %s\n", out.ThreadID)
				fmt.Printf("Status : %s\n", out.Status)
				if out.Result != "" {
					fmt.Printf("Result : %s\n", out.Result)
				}
				if out.Error != "" {
					fmt.Printf("Error  : %s\n", out.Error)
				}
				return nil
			})
		},
	}

	limits.register(cmd)
	cmd.Flags().StringVar(&prompt, "prompt", "", "injected context for the resumed thread")
	cmd.Flags().BoolVar(&wait, "wait", true, "block until the thread settles again")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "wait timeout (0 = no timeout)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output the outcome as JSON")
	return cmd
}
