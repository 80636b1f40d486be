package cli

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/weftworks/weft/internal/infrastructure/di"
)

func newListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List threads in non-terminal statuses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(func(c *di.Container) error {
				active, err := c.Registry().ListActive(context.Background())
				if err != nil {
					return err
				}

				if jsonOutput {
					type row struct {
						ThreadID  string  `json:"thread_id"`
						Directive string  `json:"directive"`
						Status    string  `json:"status"`
						Turns     int     `json:"turns"`
						Spend     float64 `json:"spend"`
					}
					rows := make([]row, 0, len(active))
					for _, th := range active {
						rows = append(rows, row{
							ThreadID:  th.ID(),
							Directive: th.Directive(),
							Status:    string(th.Status()),
							Turns:     th.Cost().Turns,
							Spend:     th.Cost().Spend,
						})
					}
					return json.NewEncoder(os.Stdout).Encode(rows)
				}

				p := message.NewPrinter(language.English)
				if len(active) == 0 {
					p.Printf("no active threads\n")
					return nil
				}
				for _, th := range active {
					p.Printf("%-40s %-12s %-10s turns=%d spend=%.4f\n",
						th.ID(), th.Directive(), th.Status(), th.Cost().Turns, th.Cost().Spend)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output the list as JSON")
	return cmd
}
