// Package orchestrate is the session façade: spawning threads with
// resolved limits and attenuated tokens, waiting on completion
// signals, cooperative cancellation, resume after suspension, and
// orphan detection and recovery.
package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/weftworks/weft/internal/app"
	"github.com/weftworks/weft/internal/application/port/output"
	"github.com/weftworks/weft/internal/application/service"
	"github.com/weftworks/weft/internal/application/usecase/execution"
	"github.com/weftworks/weft/internal/domain/model/budget"
	"github.com/weftworks/weft/internal/domain/model/capability"
	"github.com/weftworks/weft/internal/domain/model/thread"
	"github.com/weftworks/weft/internal/domain/repository"
)

// ErrSpawnLimit is returned when a parent has exhausted its spawn
// allowance.
var ErrSpawnLimit = errors.New("spawn limit exhausted")

// SpawnRequest describes one thread to start.
type SpawnRequest struct {
	// Directive names the workflow the thread executes.
	Directive string

	// Prompt is the thread's input.
	Prompt string

	// DirectiveLimits are the limits the directive declares, overlaid
	// on the configured defaults.
	DirectiveLimits thread.Limits

	// Overrides are caller-requested limits, overlaid last.
	Overrides thread.Limits

	// Capabilities the directive requests. Children receive the
	// intersection with what the parent token actually grants.
	Capabilities []string

	// ParentID and ParentToken are set for child spawns only.
	ParentID    string
	ParentToken *capability.Token

	// Actions advertised to the model alongside the structured return.
	Actions []output.ActionDescriptor
}

// OrphanInfo describes one thread the scanner considers abandoned.
type OrphanInfo struct {
	ThreadID    string             `json:"thread_id"`
	Status      string             `json:"status"`
	StaleFor    float64            `json:"stale_for_seconds"`
	Recoverable bool               `json:"recoverable"`
	Escalation  *thread.Escalation `json:"escalation,omitempty"`
}

// Orchestrator wires spawn, wait, cancel, resume, and orphan recovery
// over the runner and the durable stores.
type Orchestrator struct {
	registry      repository.ThreadRepository
	ledger        repository.BudgetLedger
	runner        *execution.Runner
	coordinator   *service.CompletionCoordinator
	caps          *service.CapabilityService
	meta          output.MetaStore
	poison        output.CancelStore
	journal       output.Journal
	logger        app.Logger
	defaultLimits thread.Limits
	staleness     time.Duration
}

// OrchestratorDeps bundles the façade's collaborators.
type OrchestratorDeps struct {
	Registry      repository.ThreadRepository
	Ledger        repository.BudgetLedger
	Runner        *execution.Runner
	Coordinator   *service.CompletionCoordinator
	Caps          *service.CapabilityService
	Meta          output.MetaStore
	Poison        output.CancelStore
	Journal       output.Journal
	Logger        app.Logger
	DefaultLimits thread.Limits
	Staleness     time.Duration
}

// NewOrchestrator creates the façade and registers itself as the
// runner's spawner for sub-workflow calls.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	o := &Orchestrator{
		registry:      deps.Registry,
		ledger:        deps.Ledger,
		runner:        deps.Runner,
		coordinator:   deps.Coordinator,
		caps:          deps.Caps,
		meta:          deps.Meta,
		poison:        deps.Poison,
		journal:       deps.Journal,
		logger:        deps.Logger,
		defaultLimits: deps.DefaultLimits,
		staleness:     deps.Staleness,
	}
	deps.Runner.SetSpawner(o)
	return o
}

// Spawn starts a thread and returns its id without blocking on
// execution. Every gate that can refuse the spawn fires before the
// runner goroutine starts: depth, spawn allowance, capability minting,
// and the ledger reservation.
func (o *Orchestrator) Spawn(ctx context.Context, req SpawnRequest) (string, error) {
	now := time.Now()

	limits := o.defaultLimits.Merge(req.DirectiveLimits).Merge(req.Overrides)

	var token capability.Token
	var err error
	if req.ParentID == "" {
		token, err = o.caps.MintRoot(req.Capabilities, req.Directive, now)
		if err != nil {
			return "", err
		}
	} else {
		parent, err := o.registry.Get(ctx, req.ParentID)
		if err != nil {
			return "", fmt.Errorf("load parent %s: %w", req.ParentID, err)
		}
		parentLimits := parent.Limits()

		if parentLimits.Spawns != nil && o.coordinator.RecordSpawn(req.ParentID) > *parentLimits.Spawns {
			return "", fmt.Errorf("%w: parent %s", ErrSpawnLimit, req.ParentID)
		}

		limits = limits.ClampToParent(parentLimits)
		limits, err = limits.DecrementDepth(parentLimits)
		if err != nil {
			return "", fmt.Errorf("spawn under %s: %w", req.ParentID, err)
		}

		// children must carry an explicit spend bound for the ledger
		if limits.Spend == nil {
			return "", fmt.Errorf("%w: child of %s", budget.ErrNoSpendLimit, req.ParentID)
		}

		token, err = o.caps.MintChild(req.ParentToken, req.Capabilities, req.Directive, now)
		if err != nil {
			return "", err
		}
	}

	id := thread.GenerateID(req.Directive, now)
	th := thread.NewThread(id, req.Directive, req.ParentID, limits, token.Capabilities, now)

	// the signal exists before anything can complete or fail
	o.coordinator.CreateSignal(id)
	if limits.Depth != nil {
		o.coordinator.SetDepth(id, *limits.Depth)
	}

	if req.ParentID == "" {
		err = o.ledger.Register(ctx, id, limits.Spend)
	} else {
		err = o.ledger.Reserve(ctx, id, *limits.Spend, req.ParentID)
	}
	if err != nil {
		o.coordinator.Signal(id, service.Outcome{
			ThreadID: id,
			Status:   string(thread.StatusError),
			Error:    err.Error(),
		})
		return "", err
	}

	if err := o.registry.Register(ctx, th); err != nil {
		o.coordinator.Signal(id, service.Outcome{
			ThreadID: id,
			Status:   string(thread.StatusError),
			Error:    err.Error(),
		})
		return "", fmt.Errorf("register thread %s: %w", id, err)
	}

	o.logger.Info("spawned thread %s (directive %s, parent %q)", id, req.Directive, req.ParentID)
	go o.runner.Run(context.WithoutCancel(ctx), th, token, req.Prompt, req.Actions)
	return id, nil
}

// Wait blocks on the given threads until each reaches a settled state.
// With cancelSiblings, the threads still outstanding when the wait cut
// short are poisoned before returning.
func (o *Orchestrator) Wait(ctx context.Context, threadIDs []string, failFast, cancelSiblings bool, timeout time.Duration) (*service.WaitResult, error) {
	result, err := o.coordinator.Wait(ctx, threadIDs, failFast, timeout)
	if err != nil {
		return result, err
	}
	if cancelSiblings {
		now := time.Now()
		for _, id := range result.Outstanding {
			if perr := o.poison.Request(id, "sibling failed", now); perr != nil {
				o.logger.Warn("poisoning sibling %s failed: %v", id, perr)
			}
		}
	}
	return result, nil
}

// Cancel requests cooperative cancellation. A live runner observes the
// marker at its next turn boundary; a suspended thread with no live
// runner is settled directly.
func (o *Orchestrator) Cancel(ctx context.Context, threadID, reason string) error {
	th, err := o.registry.Get(ctx, threadID)
	if err != nil {
		return err
	}
	if th.Status().IsTerminal() {
		return fmt.Errorf("%w: %s is %s", thread.ErrThreadImmutable, threadID, th.Status())
	}
	if reason == "" {
		reason = "cancel requested"
	}

	if th.Status() == thread.StatusSuspended && !o.coordinator.IsActive(threadID) {
		return o.settleDirect(ctx, th, thread.StatusCancelled, "cancelled: "+reason)
	}
	return o.poison.Request(threadID, reason, time.Now())
}

// Resume restarts a suspended thread with approved limit increases.
// The metadata record is verified before any state is trusted.
func (o *Orchestrator) Resume(ctx context.Context, threadID string, newLimits *thread.Limits, prompt string) error {
	record, err := o.meta.Load(threadID)
	if err != nil {
		return fmt.Errorf("verify thread record %s: %w", threadID, err)
	}

	th, err := o.registry.Get(ctx, threadID)
	if err != nil {
		return err
	}
	if th.Status() != thread.StatusSuspended {
		return fmt.Errorf("cannot resume thread %s in status %s", threadID, th.Status())
	}

	now := time.Now()
	if err := th.Resume(newLimits, now); err != nil {
		return err
	}
	if err := o.registry.Save(ctx, th); err != nil {
		return fmt.Errorf("save resumed thread %s: %w", threadID, err)
	}
	if newLimits != nil && newLimits.Spend != nil {
		if err := o.ledger.UpdateMaxSpend(ctx, threadID, *newLimits.Spend); err != nil {
			return fmt.Errorf("raise spend bound for %s: %w", threadID, err)
		}
	}
	if err := o.poison.Clear(threadID); err != nil {
		o.logger.Warn("clearing poison for %s failed: %v", threadID, err)
	}

	token, err := o.caps.MintRoot(record.Capabilities, record.Directive, now)
	if err != nil {
		return fmt.Errorf("remint token for %s: %w", threadID, err)
	}

	// the suspension already fired the old signal; waiters on the
	// resumed thread need a fresh one
	o.coordinator.ResetSignal(threadID)
	if err := o.journal.Append(threadID, output.JournalEvent{
		Type: output.EventContextInjected,
		Turn: th.Cost().Turns,
		Payload: map[string]interface{}{
			"resumed": true,
			"limits":  th.Limits(),
		},
	}); err != nil {
		o.logger.Warn("journal append for %s failed: %v", threadID, err)
	}

	if prompt == "" {
		prompt = "Resume where you left off. Your limits have been raised."
	}
	o.logger.Info("resumed thread %s", threadID)
	go o.runner.Run(context.WithoutCancel(ctx), th, token, prompt, nil)
	return nil
}

// ScanOrphans finds threads the registry believes are live but which
// no runner in this process owns and whose journal has gone stale.
// Suspended threads with no live runner are surfaced too so abandoned
// escalations are visible.
func (o *Orchestrator) ScanOrphans(ctx context.Context) ([]OrphanInfo, error) {
	active, err := o.registry.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var orphans []OrphanInfo
	for _, th := range active {
		id := th.ID()
		if o.coordinator.IsActive(id) {
			continue
		}

		mod, err := o.journal.LastModified(id)
		if err != nil {
			o.logger.Warn("journal staleness check for %s failed: %v", id, err)
			continue
		}
		staleFor := o.staleness
		if !mod.IsZero() {
			staleFor = now.Sub(mod)
		}
		if th.Status() == thread.StatusRunning && staleFor < o.staleness {
			continue
		}

		recoverable := o.meta.Exists(id)
		if recoverable {
			if _, err := o.meta.Load(id); err != nil {
				recoverable = false
			}
		}
		info := OrphanInfo{
			ThreadID:    id,
			Status:      string(th.Status()),
			StaleFor:    staleFor.Seconds(),
			Recoverable: recoverable,
		}
		if esc := th.Escalation(); esc != nil {
			info.Escalation = esc
		}
		orphans = append(orphans, info)
	}
	return orphans, nil
}

// RecoverOrphan settles an orphaned thread: "resume" parks it as
// suspended for a later Resume call, "error" and "cancel" finalize it
// and release its budget reservation.
func (o *Orchestrator) RecoverOrphan(ctx context.Context, threadID, action string) error {
	th, err := o.registry.Get(ctx, threadID)
	if err != nil {
		return err
	}
	if th.Status().IsTerminal() {
		return fmt.Errorf("%w: %s is %s", thread.ErrThreadImmutable, threadID, th.Status())
	}

	switch action {
	case "resume":
		if th.Status() == thread.StatusSuspended {
			return nil
		}
		if err := o.registry.UpdateStatus(ctx, threadID, thread.StatusSuspended, thread.SuspendReasonError); err != nil {
			return err
		}
		o.logger.Info("orphan %s parked as suspended", threadID)
		return nil
	case "error":
		return o.settleDirect(ctx, th, thread.StatusError, "recovered as error: runner lost")
	case "cancel":
		return o.settleDirect(ctx, th, thread.StatusCancelled, "recovered as cancelled: runner lost")
	default:
		return fmt.Errorf("unknown recovery action %q", action)
	}
}

// settleDirect finalizes a thread that has no live runner: registry,
// ledger release, journal event, and the completion signal if one
// exists in this session.
func (o *Orchestrator) settleDirect(ctx context.Context, th *thread.Thread, status thread.Status, errorText string) error {
	id := th.ID()
	cost := th.Cost()
	if err := th.Finalize(status, cost, "", errorText, time.Now()); err != nil {
		return err
	}
	if err := o.registry.Save(ctx, th); err != nil {
		return fmt.Errorf("settle %s: %w", id, err)
	}
	if err := o.ledger.Release(ctx, id, status); err != nil {
		o.logger.Warn("budget release for %s failed: %v", id, err)
	}
	if err := o.poison.Clear(id); err != nil {
		o.logger.Warn("clearing poison for %s failed: %v", id, err)
	}

	eventType := output.EventThreadError
	if status == thread.StatusCancelled {
		eventType = output.EventThreadCancelled
	}
	if err := o.journal.Append(id, output.JournalEvent{
		Type: eventType,
		Turn: cost.Turns,
		Payload: map[string]interface{}{
			"status":  string(status),
			"settled": "direct",
		},
	}); err != nil {
		o.logger.Warn("journal append for %s failed: %v", id, err)
	}

	o.coordinator.Signal(id, service.Outcome{
		ThreadID: id,
		Status:   string(status),
		Cost:     cost,
		Error:    errorText,
	})
	o.logger.Info("thread %s settled directly as %s", id, status)
	return nil
}

// SpawnChild implements execution.Spawner for sub-workflow tool calls.
func (o *Orchestrator) SpawnChild(ctx context.Context, directive string, limits thread.Limits, capabilities []string, parentID string, parentToken *capability.Token, prompt string) (string, error) {
	return o.Spawn(ctx, SpawnRequest{
		Directive:    directive,
		Prompt:       prompt,
		Overrides:    limits,
		Capabilities: capabilities,
		ParentID:     parentID,
		ParentToken:  parentToken,
	})
}

// WaitChild implements execution.Spawner: block on one child.
func (o *Orchestrator) WaitChild(ctx context.Context, threadID string) (service.Outcome, error) {
	result, err := o.coordinator.Wait(ctx, []string{threadID}, false, 0)
	if err != nil {
		return service.Outcome{}, err
	}
	out, ok := result.Outcomes[threadID]
	if !ok {
		return service.Outcome{}, fmt.Errorf("no outcome for thread %s", threadID)
	}
	return out, nil
}
