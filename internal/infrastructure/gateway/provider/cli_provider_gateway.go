// Package provider implements the model-call gateway. The CLI gateway
// shells out to an external model binary; the mock gateway scripts
// responses for tests.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"github.com/weftworks/weft/internal/application/port/output"
)

// CLIProviderGateway invokes an external command per model call. The
// request is written to stdin as JSON and the response read from
// stdout. On context cancellation the subprocess gets SIGTERM, then
// SIGKILL after the grace window.
type CLIProviderGateway struct {
	bin   string
	args  []string
	grace time.Duration
}

// NewCLIProviderGateway creates a subprocess-backed provider gateway.
func NewCLIProviderGateway(bin string, args []string, grace time.Duration) *CLIProviderGateway {
	if grace <= 0 {
		grace = 5 * time.Second
	}
	return &CLIProviderGateway{bin: bin, args: args, grace: grace}
}

// cliResponse is the JSON shape the external binary writes to stdout.
type cliResponse struct {
	Text      string                   `json:"text,omitempty"`
	ToolCalls []output.ToolCallRequest `json:"tool_calls,omitempty"`
	Usage     output.Usage             `json:"usage"`
	Error     *struct {
		StatusCode int     `json:"status_code,omitempty"`
		Message    string  `json:"message"`
		RetryAfter float64 `json:"retry_after,omitempty"`
	} `json:"error,omitempty"`
}

// CallModel runs one model call through the external binary.
func (g *CLIProviderGateway) CallModel(ctx context.Context, req output.ModelRequest) (*output.ModelResponse, error) {
	input, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal model request: %w", err)
	}

	cmd := exec.CommandContext(ctx, g.bin, g.args...)
	cmd.Stdin = bytes.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// graceful stop first, hard kill after the grace window
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = g.grace

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, &output.ProviderError{Message: "model call cancelled"}
		}
		return nil, &output.ProviderError{
			Message: fmt.Sprintf("provider binary failed: %v: %s", err, stderr.String()),
		}
	}

	var resp cliResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, &output.ProviderError{
			Message: fmt.Sprintf("provider binary wrote malformed output: %v", err),
		}
	}
	if resp.Error != nil {
		return nil, &output.ProviderError{
			StatusCode: resp.Error.StatusCode,
			Message:    resp.Error.Message,
			RetryAfter: resp.Error.RetryAfter,
		}
	}
	return &output.ModelResponse{
		Text:      resp.Text,
		ToolCalls: resp.ToolCalls,
		Usage:     resp.Usage,
	}, nil
}
