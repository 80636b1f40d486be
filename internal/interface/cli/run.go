package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/weftworks/weft/internal/application/usecase/orchestrate"
	"github.com/weftworks/weft/internal/domain/model/thread"
	"github.com/weftworks/weft/internal/infrastructure/di"
)

// limitFlags collects the per-run limit overrides.
type limitFlags struct {
	turns    int
	tokens   int
	spend    float64
	duration int
	spawns   int
	depth    int
}

func (f *limitFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.turns, "turns", 0, "max turns (0 = unset)")
	cmd.Flags().IntVar(&f.tokens, "tokens", 0, "max total tokens (0 = unset)")
	cmd.Flags().Float64Var(&f.spend, "spend", 0, "max spend in account currency (0 = unset)")
	cmd.Flags().IntVar(&f.duration, "duration", 0, "max wall-clock seconds (0 = unset)")
	cmd.Flags().IntVar(&f.spawns, "spawns", 0, "max child spawns (0 = unset)")
	cmd.Flags().IntVar(&f.depth, "depth", 0, "max spawn depth (0 = unset)")
}

func (f *limitFlags) toLimits() thread.Limits {
	l := thread.Limits{}
	if f.turns > 0 {
		l.Turns = thread.IntPtr(f.turns)
	}
	if f.tokens > 0 {
		l.Tokens = thread.IntPtr(f.tokens)
	}
	if f.spend > 0 {
		l.Spend = thread.FloatPtr(f.spend)
	}
	if f.duration > 0 {
		l.DurationSeconds = thread.IntPtr(f.duration)
	}
	if f.spawns > 0 {
		l.Spawns = thread.IntPtr(f.spawns)
	}
	if f.depth > 0 {
		l.Depth = thread.IntPtr(f.depth)
	}
	return l
}

func newRunCmd() *cobra.Command {
	var (
		limits     limitFlags
		caps       []string
		jsonOutput bool
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run <directive> [prompt]",
		Short: "Spawn a thread for a directive and wait for it",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(func(c *di.Container) error {
				directive := args[0]
				prompt := directive
				if len(args) == 2 {
					prompt = args[1]
				}

				req := orchestrate.SpawnRequest{
					Directive:    directive,
					Prompt:       prompt,
					Overrides:    limits.toLimits(),
					Capabilities: caps,
				}
				if d, ok := c.Config().Directive(directive); ok {
					req.DirectiveLimits = d.Limits
					if len(caps) == 0 {
						req.Capabilities = d.Capabilities
					}
				}

				ctx := context.Background()
				id, err := c.Orchestrator().Spawn(ctx, req)
				if err != nil {
					return err
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
				if out.Status != string(thread.StatusCompleted) {
					os.Exit(1)
				}
				return nil
			})
		},
	}

	limits.register(cmd)
	cmd.Flags().StringSliceVar(&caps, "cap", nil, "capability pattern to grant (repeatable)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output the outcome as JSON")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "wait timeout (0 = no timeout)")
	return cmd
}
