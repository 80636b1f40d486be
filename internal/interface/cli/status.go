package cli

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/weftworks/weft/internal/domain/model/thread"
	"github.com/weftworks/weft/internal/infrastructure/di"
)

// StatusOutput is the JSON shape of `weft status`.
type StatusOutput struct {
	ThreadID      string             `json:"thread_id"`
	Directive     string             `json:"directive"`
	ParentID      string             `json:"parent_id,omitempty"`
	Status        string             `json:"status"`
	SuspendReason string             `json:"suspend_reason,omitempty"`
	Cost          thread.Cost        `json:"cost"`
	TreeSpend     float64            `json:"tree_spend"`
	Remaining     float64            `json:"remaining"`
	Result        string             `json:"result,omitempty"`
	Error         string             `json:"error,omitempty"`
	Escalation    *thread.Escalation `json:"escalation,omitempty"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status <thread-id>",
		Short: "Show one thread's state, cost, and budget position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(func(c *di.Container) error {
				ctx := context.Background()
				id := args[0]

				th, err := c.Registry().Get(ctx, id)
				if err != nil {
					return err
				}
				treeSpend, err := c.Ledger().TreeSpend(ctx, id)
				if err != nil {
					return err
				}
				remaining, err := c.Ledger().Remaining(ctx, id)
				if err != nil {
					return err
				}

				out := StatusOutput{
					ThreadID:      th.ID(),
					Directive:     th.Directive(),
					ParentID:      th.ParentID(),
					Status:        string(th.Status()),
					SuspendReason: string(th.SuspendReason()),
					Cost:          th.Cost(),
					TreeSpend:     treeSpend,
					Remaining:     remaining,
					Result:        th.Result(),
					Error:         th.ErrorText(),
					Escalation:    th.Escalation(),
					UpdatedAt:     th.UpdatedAt(),
				}
				if jsonOutput {
					return json.NewEncoder(os.Stdout).Encode(out)
				}

				p := message.NewPrinter(language.English)
				p.Printf("Thread    : %s\n", out.ThreadID)
				p.Printf("Directive : %s\n", out.Directive)
				if out.ParentID != "" {
					p.Printf("Parent    : %s\n", out.ParentID)
				}
				p.Printf("Status    : %s", out.Status)
				if out.SuspendReason != "" {
					p.Printf(" (%s)", out.SuspendReason)
				}
				p.Printf("\n")
				p.Printf("Turns     : %d\n", out.Cost.Turns)
				p.Printf("Tokens    : %d\n", out.Cost.TotalTokens())
				p.Printf("Spend     : %.4f (tree %.4f, remaining %.4f)\n",
					out.Cost.Spend, out.TreeSpend, out.Remaining)
				if out.Escalation != nil {
					p.Printf("Escalation: %s at %.2f of %.2f, proposing %.2f\n",
						out.Escalation.LimitCode, out.Escalation.CurrentValue,
						out.Escalation.CurrentMax, out.Escalation.ProposedMax)
				}
				if out.Result != "" {
					p.Printf("Result    : %s\n", out.Result)
				}
				if out.Error != "" {
					p.Printf("Error     : %s\n", out.Error)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output status as JSON")
	return cmd
}
