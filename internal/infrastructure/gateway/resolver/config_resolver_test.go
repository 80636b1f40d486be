package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/weft/internal/app/config"
	"github.com/weftworks/weft/internal/application/port/output"
)

func newResolver(t *testing.T) *ConfigResolver {
	t.Helper()
	cfg := &config.Config{
		Tools: []config.ToolConfig{
			{Name: "cat", Command: []string{"cat"}},
			{Name: "search", Command: []string{"searchd"}, Resource: "search-index",
				Capabilities: []string{"weft.search.tool.search"}},
		},
		Directives: []config.DirectiveConfig{
			{Name: "triage"},
		},
	}
	return NewConfigResolver(cfg)
}

func TestResolveToolDefaults(t *testing.T) {
	r := newResolver(t)

	action, err := r.Resolve(context.Background(), "cat")
	require.NoError(t, err)
	assert.Equal(t, output.KindTool, action.Kind)
	assert.Equal(t, "cat", action.Resource, "resource defaults to the tool name")
	assert.Equal(t, []string{"weft.execute.tool.cat"}, action.RequiredCaps)
}

func TestResolveToolDeclared(t *testing.T) {
	r := newResolver(t)

	action, err := r.Resolve(context.Background(), "search")
	require.NoError(t, err)
	assert.Equal(t, "search-index", action.Resource)
	assert.Equal(t, []string{"weft.search.tool.search"}, action.RequiredCaps)
}

func TestResolveDirective(t *testing.T) {
	r := newResolver(t)

	action, err := r.Resolve(context.Background(), "triage")
	require.NoError(t, err)
	assert.Equal(t, output.KindSubworkflow, action.Kind)
	assert.Equal(t, "threads", action.Resource)
	assert.Equal(t, "triage", action.Directive)
	assert.Equal(t, []string{"weft.execute.directive.triage"}, action.RequiredCaps)
}

func TestResolveUnknown(t *testing.T) {
	r := newResolver(t)

	_, err := r.Resolve(context.Background(), "no_such_ref")
	assert.True(t, errors.Is(err, output.ErrResolution))
}

func TestExecuteTool(t *testing.T) {
	r := newResolver(t)

	action, err := r.Resolve(context.Background(), "cat")
	require.NoError(t, err)

	out, err := r.Execute(context.Background(), action, `{"q":"hello"}`)
	require.NoError(t, err)
	assert.Equal(t, `{"q":"hello"}`, out)
}

func TestExecuteRejectsSubworkflow(t *testing.T) {
	r := newResolver(t)

	action, err := r.Resolve(context.Background(), "triage")
	require.NoError(t, err)

	_, err = r.Execute(context.Background(), action, "{}")
	assert.Error(t, err)
}
