// Package resolver turns tool and workflow references into executable
// descriptions from the declared configuration.
package resolver

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"github.com/weftworks/weft/internal/app/config"
	"github.com/weftworks/weft/internal/application/port/output"
	"github.com/weftworks/weft/internal/domain/model/capability"
)

// ConfigResolver resolves references against the tools and directives
// declared in configuration. Tools run as subprocesses; directives
// resolve to sub-workflow actions the runner spawns as child threads.
type ConfigResolver struct {
	tools      map[string]config.ToolConfig
	directives map[string]config.DirectiveConfig
	grace      time.Duration
}

// NewConfigResolver indexes the declared tools and directives.
func NewConfigResolver(cfg *config.Config) *ConfigResolver {
	r := &ConfigResolver{
		tools:      make(map[string]config.ToolConfig, len(cfg.Tools)),
		directives: make(map[string]config.DirectiveConfig, len(cfg.Directives)),
		grace:      cfg.CancelGrace(),
	}
	for _, t := range cfg.Tools {
		r.tools[t.Name] = t
	}
	for _, d := range cfg.Directives {
		r.directives[d.Name] = d
	}
	return r
}

// Resolve maps a reference to its action description. Unknown
// references are resolution errors, fatal to the calling thread.
func (r *ConfigResolver) Resolve(ctx context.Context, ref string) (*output.ResolvedAction, error) {
	if t, ok := r.tools[ref]; ok {
		caps := t.Capabilities
		if len(caps) == 0 {
			caps = []string{capability.ItemIDToCap("execute", "tool", t.Name)}
		}
		resource := t.Resource
		if resource == "" {
			resource = t.Name
		}
		return &output.ResolvedAction{
			Ref:          ref,
			Kind:         output.KindTool,
			Resource:     resource,
			RequiredCaps: caps,
			Command:      t.Command,
		}, nil
	}
	if d, ok := r.directives[ref]; ok {
		return &output.ResolvedAction{
			Ref:          ref,
			Kind:         output.KindSubworkflow,
			Resource:     "threads",
			RequiredCaps: []string{capability.ItemIDToCap("execute", "directive", d.Name)},
			Directive:    d.Name,
		}, nil
	}
	return nil, fmt.Errorf("%w: no tool or directive named %q", output.ErrResolution, ref)
}

// Execute runs a tool's command with the raw JSON params on stdin and
// returns its stdout. Cancellation sends SIGTERM, then SIGKILL after
// the grace window.
func (r *ConfigResolver) Execute(ctx context.Context, action *output.ResolvedAction, params string) (string, error) {
	if action.Kind != output.KindTool {
		return "", fmt.Errorf("action %s is not directly executable", action.Ref)
	}
	if len(action.Command) == 0 {
		return "", fmt.Errorf("%w: tool %s declares no command", output.ErrResolution, action.Ref)
	}

	cmd := exec.CommandContext(ctx, action.Command[0], action.Command[1:]...)
	cmd.Stdin = bytes.NewBufferString(params)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = r.grace

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("tool %s cancelled", action.Ref)
		}
		return "", fmt.Errorf("tool %s failed: %v: %s", action.Ref, err, stderr.String())
	}
	return stdout.String(), nil
}
