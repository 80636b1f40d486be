package classify

import "strings"

// HookEvent is what triggered hook evaluation.
type HookEvent string

const (
	EventLimit HookEvent = "limit"
	EventError HookEvent = "error"
)

// HookAction is the control decision a hook returns.
type HookAction string

const (
	ActionRetry    HookAction = "retry"
	ActionFail     HookAction = "fail"
	ActionAbort    HookAction = "abort"
	ActionSuspend  HookAction = "suspend"
	ActionEscalate HookAction = "escalate"
)

// Hook matches one event against an optional code/substring pattern.
// An empty Match matches every occurrence of the event.
type Hook struct {
	Event  HookEvent  `yaml:"event" json:"event"`
	Match  string     `yaml:"match,omitempty" json:"match,omitempty"`
	Action HookAction `yaml:"action" json:"action"`
}

// HookSet is an ordered hook list; the first match wins.
type HookSet []Hook

// Evaluate returns the matched action, or the default for the event
// when nothing matches: limit violations suspend (escalation path),
// errors fail.
func (hs HookSet) Evaluate(event HookEvent, code string) (HookAction, bool) {
	for _, h := range hs {
		if h.Event != event {
			continue
		}
		if h.Match == "" || strings.Contains(code, h.Match) {
			return h.Action, true
		}
	}
	if event == EventLimit {
		return ActionSuspend, false
	}
	return ActionFail, false
}
