package thread

import "fmt"

// Limits bounds a thread's resource consumption. Nil fields mean
// "unconstrained here"; the effective bound may still come from the
// parent via resolution.
type Limits struct {
	Turns           *int     `json:"turns,omitempty" yaml:"turns,omitempty"`
	Tokens          *int     `json:"tokens,omitempty" yaml:"tokens,omitempty"`
	Spend           *float64 `json:"spend,omitempty" yaml:"spend,omitempty"`
	DurationSeconds *int     `json:"duration_seconds,omitempty" yaml:"duration_seconds,omitempty"`
	Spawns          *int     `json:"spawns,omitempty" yaml:"spawns,omitempty"`
	Depth           *int     `json:"depth,omitempty" yaml:"depth,omitempty"`
}

// ErrDepthExhausted is returned when a spawn resolves a depth below zero.
// The spawn must fail before any ledger or runner involvement.
var ErrDepthExhausted = fmt.Errorf("thread depth exhausted")

// IntPtr and FloatPtr are small helpers for building Limits literals.
func IntPtr(v int) *int           { return &v }
func FloatPtr(v float64) *float64 { return &v }

// Clone returns a deep copy so callers cannot alias pointer fields.
func (l Limits) Clone() Limits {
	out := Limits{}
	if l.Turns != nil {
		out.Turns = IntPtr(*l.Turns)
	}
	if l.Tokens != nil {
		out.Tokens = IntPtr(*l.Tokens)
	}
	if l.Spend != nil {
		out.Spend = FloatPtr(*l.Spend)
	}
	if l.DurationSeconds != nil {
		out.DurationSeconds = IntPtr(*l.DurationSeconds)
	}
	if l.Spawns != nil {
		out.Spawns = IntPtr(*l.Spawns)
	}
	if l.Depth != nil {
		out.Depth = IntPtr(*l.Depth)
	}
	return out
}

// Merge overlays non-nil fields of other onto a copy of l.
// Used for the defaults, then directive, then overrides resolution
// order.
func (l Limits) Merge(other Limits) Limits {
	out := l.Clone()
	if other.Turns != nil {
		out.Turns = IntPtr(*other.Turns)
	}
	if other.Tokens != nil {
		out.Tokens = IntPtr(*other.Tokens)
	}
	if other.Spend != nil {
		out.Spend = FloatPtr(*other.Spend)
	}
	if other.DurationSeconds != nil {
		out.DurationSeconds = IntPtr(*other.DurationSeconds)
	}
	if other.Spawns != nil {
		out.Spawns = IntPtr(*other.Spawns)
	}
	if other.Depth != nil {
		out.Depth = IntPtr(*other.Depth)
	}
	return out
}

// ClampToParent takes the minimum of each bound against the parent's
// limits so a child can never exceed what its parent was granted.
// Depth is handled separately by DecrementDepth.
func (l Limits) ClampToParent(parent Limits) Limits {
	out := l.Clone()
	out.Turns = minIntPtr(out.Turns, parent.Turns)
	out.Tokens = minIntPtr(out.Tokens, parent.Tokens)
	out.Spend = minFloatPtr(out.Spend, parent.Spend)
	out.DurationSeconds = minIntPtr(out.DurationSeconds, parent.DurationSeconds)
	out.Spawns = minIntPtr(out.Spawns, parent.Spawns)
	return out
}

// DecrementDepth derives the child's depth allowance from the parent's:
// one less per level. Returns ErrDepthExhausted when the result would be
// negative, meaning the parent had no depth left to grant.
func (l Limits) DecrementDepth(parent Limits) (Limits, error) {
	out := l.Clone()
	if parent.Depth != nil {
		next := *parent.Depth - 1
		if next < 0 {
			return Limits{}, ErrDepthExhausted
		}
		if out.Depth == nil || *out.Depth > next {
			out.Depth = IntPtr(next)
		}
	}
	if out.Depth != nil && *out.Depth < 0 {
		return Limits{}, ErrDepthExhausted
	}
	return out, nil
}

func minIntPtr(a, b *int) *int {
	if a == nil {
		if b == nil {
			return nil
		}
		return IntPtr(*b)
	}
	if b == nil || *a <= *b {
		return IntPtr(*a)
	}
	return IntPtr(*b)
}

func minFloatPtr(a, b *float64) *float64 {
	if a == nil {
		if b == nil {
			return nil
		}
		return FloatPtr(*b)
	}
	if b == nil || *a <= *b {
		return FloatPtr(*a)
	}
	return FloatPtr(*b)
}
