package output

import (
	"context"
	"errors"
)

// ErrResolution is wrapped by resolver failures. Fatal to the thread.
var ErrResolution = errors.New("resolution error")

// ActionKind tags a resolved action at the description level so
// dispatch never infers it from call shape.
type ActionKind string

const (
	KindTool        ActionKind = "tool"
	KindSubworkflow ActionKind = "subworkflow"
)

// ResolvedAction is a ready-to-run executable description.
type ResolvedAction struct {
	Ref          string     // the reference that resolved to this action
	Kind         ActionKind // tool or subworkflow
	Resource     string     // serialization group key (same resource ⇒ serialized)
	RequiredCaps []string   // capabilities the caller must hold to dispatch
	Command      []string   // executable argv for subprocess-backed tools
	Directive    string     // directive name, subworkflow kind only
}

// ItemResolver turns a workflow or tool reference into an executable
// description, or fails with a resolution error the runner surfaces as
// a thread-terminating error.
type ItemResolver interface {
	Resolve(ctx context.Context, ref string) (*ResolvedAction, error)

	// Execute runs a resolved tool action with the given raw JSON
	// params and returns its textual result.
	Execute(ctx context.Context, action *ResolvedAction, params string) (string, error)
}
