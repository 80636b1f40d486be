// Package execution drives one thread's turn loop: limit checks,
// cancellation, model calls with classify/retry, concurrent tool
// dispatch, checkpointing, and the guaranteed finalize path.
package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/weftworks/weft/internal/app"
	"github.com/weftworks/weft/internal/application/port/output"
	"github.com/weftworks/weft/internal/application/service"
	"github.com/weftworks/weft/internal/domain/classify"
	"github.com/weftworks/weft/internal/domain/model/capability"
	"github.com/weftworks/weft/internal/domain/model/thread"
	"github.com/weftworks/weft/internal/domain/repository"
)

// ReturnAction is the structured return call: when the model invokes
// it, its result parameter becomes the thread's result and the thread
// completes.
const ReturnAction = "weft_return"

// resultTruncateLen bounds how much of a child's result is surfaced to
// its parent.
const resultTruncateLen = 4000

// Spawner lets a running thread start and await sub-workflow children.
// Implemented by the orchestration façade; injected after construction
// to break the package cycle.
type Spawner interface {
	SpawnChild(ctx context.Context, directive string, limits thread.Limits, capabilities []string, parentID string, parentToken *capability.Token, prompt string) (string, error)
	WaitChild(ctx context.Context, threadID string) (service.Outcome, error)
}

// Runner executes threads. One Runner serves the whole session; each
// thread runs on its own goroutine through Run.
type Runner struct {
	registry    repository.ThreadRepository
	ledger      repository.BudgetLedger
	provider    output.ProviderGateway
	resolver    output.ItemResolver
	journal     output.Journal
	meta        output.MetaStore
	poison      output.CancelStore
	coordinator *service.CompletionCoordinator
	dispatcher  *service.Dispatcher
	caps        *service.CapabilityService
	hooks       classify.HookSet
	retry       classify.RetryPolicy
	logger      app.Logger
	archive     output.StorageGateway

	spawner Spawner
}

// RunnerDeps bundles the runner's collaborators.
type RunnerDeps struct {
	Registry    repository.ThreadRepository
	Ledger      repository.BudgetLedger
	Provider    output.ProviderGateway
	Resolver    output.ItemResolver
	Journal     output.Journal
	Meta        output.MetaStore
	Poison      output.CancelStore
	Coordinator *service.CompletionCoordinator
	Dispatcher  *service.Dispatcher
	Caps        *service.CapabilityService
	Hooks       classify.HookSet
	Retry       classify.RetryPolicy
	Logger      app.Logger

	// Archive receives the journal of terminal threads; nil disables
	// archival.
	Archive output.StorageGateway
}

// NewRunner creates a runner from its dependencies.
func NewRunner(deps RunnerDeps) *Runner {
	return &Runner{
		registry:    deps.Registry,
		ledger:      deps.Ledger,
		provider:    deps.Provider,
		resolver:    deps.Resolver,
		journal:     deps.Journal,
		meta:        deps.Meta,
		poison:      deps.Poison,
		coordinator: deps.Coordinator,
		dispatcher:  deps.Dispatcher,
		caps:        deps.Caps,
		hooks:       deps.Hooks,
		retry:       deps.Retry,
		logger:      deps.Logger,
		archive:     deps.Archive,
	}
}

// SetSpawner wires the orchestration façade in for sub-workflow calls.
func (r *Runner) SetSpawner(s Spawner) {
	r.spawner = s
}

// runState carries one execution's mutable state through the loop.
type runState struct {
	th       *thread.Thread
	token    capability.Token
	messages []output.Message
	actions  []output.ActionDescriptor
	cost     thread.Cost
	started  time.Time
}

// Run executes the thread's turn loop to a settled state. The
// completion signal always fires, whatever path the loop takes.
func (r *Runner) Run(ctx context.Context, th *thread.Thread, token capability.Token, prompt string, actions []output.ActionDescriptor) {
	st := &runState{
		th:      th,
		token:   token,
		actions: actions,
		cost:    th.Cost(),
		started: time.Now(),
		messages: []output.Message{
			{Role: "user", Content: prompt},
		},
	}

	outcome := service.Outcome{ThreadID: th.ID(), Status: string(thread.StatusError)}
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("thread %s panicked: %v", th.ID(), p)
			outcome = r.finalize(ctx, st, thread.StatusError, "", fmt.Sprintf("internal panic: %v", p))
		}
		r.coordinator.Signal(th.ID(), outcome)
	}()

	r.appendEvent(th.ID(), output.JournalEvent{
		Type: output.EventThreadStarted,
		Payload: map[string]interface{}{
			"directive": th.Directive(),
			"parent_id": th.ParentID(),
		},
	})

	outcome = r.loop(ctx, st)
}

func (r *Runner) loop(ctx context.Context, st *runState) service.Outcome {
	id := st.th.ID()
	for {
		// cancellation is observed only here, at the turn boundary
		if req, err := r.poison.Check(id); err == nil && req != nil {
			r.logger.Info("thread %s observed cancellation: %s", id, req.Reason)
			out := r.finalize(ctx, st, thread.StatusCancelled, "", "cancelled: "+req.Reason)
			if err := r.poison.Clear(id); err != nil {
				r.logger.Warn("thread %s poison clear failed: %v", id, err)
			}
			return out
		}

		st.cost.ElapsedSeconds = time.Since(st.started).Seconds()
		if violation := st.cost.CheckLimits(st.th.Limits()); violation != nil {
			if out, settled := r.handleLimit(ctx, st, violation); settled {
				return out
			}
			// a retry hook let the loop continue past the violation
		}

		if _, err := r.journal.Checkpoint(id, st.cost.Turns); err != nil {
			r.logger.Warn("thread %s checkpoint failed: %v", id, err)
		}

		resp, failure := r.callModelWithRetry(ctx, st)
		if failure != nil {
			if out, settled := r.handleFailure(ctx, st, failure); settled {
				return out
			}
			continue
		}

		st.cost.InputTokens += resp.Usage.InputTokens
		st.cost.OutputTokens += resp.Usage.OutputTokens
		st.cost.Spend += resp.Usage.Spend
		st.cost.Turns++
		r.snapshotCost(ctx, st)

		r.appendEvent(id, output.JournalEvent{
			Type: output.EventCognitionOut,
			Turn: st.cost.Turns,
			Payload: map[string]interface{}{
				"text":       resp.Text,
				"tool_calls": len(resp.ToolCalls),
			},
		})

		if len(resp.ToolCalls) == 0 {
			return r.finalize(ctx, st, thread.StatusCompleted, resp.Text, "")
		}

		result, done, err := r.dispatchToolCalls(ctx, st, resp.ToolCalls)
		if err != nil {
			return r.finalize(ctx, st, thread.StatusError, "", err.Error())
		}
		if done {
			return r.finalize(ctx, st, thread.StatusCompleted, result, "")
		}
	}
}

// callModelWithRetry performs one model call, retrying transient
// classes locally per the retry policy. A non-retryable failure is
// returned for hook evaluation.
func (r *Runner) callModelWithRetry(ctx context.Context, st *runState) (*output.ModelResponse, *classify.Failure) {
	id := st.th.ID()
	for attempt := 0; ; attempt++ {
		r.appendEvent(id, output.JournalEvent{
			Type: output.EventCognitionIn,
			Turn: st.cost.Turns,
			Payload: map[string]interface{}{
				"messages": len(st.messages),
				"attempt":  attempt,
			},
		})

		resp, err := r.provider.CallModel(ctx, output.ModelRequest{
			ThreadID: id,
			Messages: st.messages,
			Actions:  st.actions,
		})
		if err == nil {
			return resp, nil
		}

		failure := toFailure(err)
		c := classify.Classify(failure)
		delay, retry := r.retry.Delay(failure, c, attempt)
		if !retry {
			return nil, &failure
		}
		r.logger.Debug("thread %s retrying %s failure in %s (attempt %d)", id, c.Category, delay, attempt+1)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			cancelled := classify.Failure{Message: "context canceled"}
			return nil, &cancelled
		}
	}
}

func toFailure(err error) classify.Failure {
	var pe *output.ProviderError
	if errors.As(err, &pe) {
		return classify.Failure{StatusCode: pe.StatusCode, Message: pe.Message, RetryAfter: pe.RetryAfter}
	}
	return classify.Failure{Message: err.Error()}
}

// handleLimit routes a limit violation through the hook layer.
// Returns the settled outcome, or settled=false when a retry hook
// chose to let the loop continue.
func (r *Runner) handleLimit(ctx context.Context, st *runState, violation *thread.LimitViolation) (service.Outcome, bool) {
	action, matched := r.hooks.Evaluate(classify.EventLimit, violation.Code)
	if !matched {
		action = classify.ActionSuspend
	}
	switch action {
	case classify.ActionRetry:
		return service.Outcome{}, false
	case classify.ActionFail, classify.ActionAbort:
		return r.finalize(ctx, st, thread.StatusError, "", violation.Code), true
	default: // suspend or escalate
		return r.suspend(ctx, st, violation), true
	}
}

// handleFailure routes a non-retryable classified failure through the
// hook layer.
func (r *Runner) handleFailure(ctx context.Context, st *runState, failure *classify.Failure) (service.Outcome, bool) {
	c := classify.Classify(*failure)
	if c.Category == classify.Cancelled {
		return r.finalize(ctx, st, thread.StatusCancelled, "", failure.Message), true
	}

	action, _ := r.hooks.Evaluate(classify.EventError, string(c.Category))
	switch action {
	case classify.ActionRetry:
		return service.Outcome{}, false
	case classify.ActionSuspend, classify.ActionEscalate:
		violation := &thread.LimitViolation{Code: strings.ToLower(string(c.Category)), Current: 0, Max: 0}
		out := r.suspendWithReason(ctx, st, violation, thread.SuspendReasonError, failure.Message)
		return out, true
	default:
		return r.finalize(ctx, st, thread.StatusError, "", failure.Message), true
	}
}

// dispatchToolCalls resolves and runs a turn's tool calls. Returns
// (result, true, nil) when the structured return call completed the
// thread.
func (r *Runner) dispatchToolCalls(ctx context.Context, st *runState, calls []output.ToolCallRequest) (string, bool, error) {
	id := st.th.ID()

	// the structured return call settles the thread before dispatch
	for _, call := range calls {
		if call.Name == ReturnAction {
			return parseReturnResult(call.Params), true, nil
		}
	}

	type plan struct {
		call   output.ToolCallRequest
		action *output.ResolvedAction
	}
	plans := make([]plan, 0, len(calls))
	for _, call := range calls {
		action, err := r.resolver.Resolve(ctx, call.Name)
		if err != nil {
			// resolution failures are fatal to the thread
			return "", false, fmt.Errorf("%w: %s: %v", output.ErrResolution, call.Name, err)
		}
		plans = append(plans, plan{call: call, action: action})
	}

	reqs := make([]service.DispatchRequest, len(plans))
	for i, p := range plans {
		p := p
		reqs[i] = service.DispatchRequest{
			CallID:   p.call.CallID,
			Resource: p.action.Resource,
			Run: func(ctx context.Context) (string, error) {
				return r.runAction(ctx, st, p.call, p.action)
			},
		}
	}

	now := time.Now()
	for _, p := range plans {
		r.appendEvent(id, output.JournalEvent{
			Type: output.EventToolCallStart,
			Turn: st.cost.Turns,
			TS:   now.UTC().Format(time.RFC3339Nano),
			Payload: map[string]interface{}{
				"call_id": p.call.CallID,
				"name":    p.call.Name,
				"kind":    string(p.action.Kind),
			},
		})
	}

	results := r.dispatcher.Dispatch(ctx, reqs)
	for _, res := range results {
		text := res.Result
		if res.Err != nil {
			// per-action failures (permission denials included) surface
			// as that call's result so the model can adapt
			text = "error: " + res.Err.Error()
		}
		r.appendEvent(id, output.JournalEvent{
			Type: output.EventToolCallResult,
			Turn: st.cost.Turns,
			Payload: map[string]interface{}{
				"call_id": res.CallID,
				"is_error": res.Err != nil,
			},
		})
		st.messages = append(st.messages, output.Message{
			Role:       "tool",
			Content:    text,
			ToolCallID: res.CallID,
		})
	}
	return "", false, nil
}

// runAction executes one resolved action under the thread's token.
func (r *Runner) runAction(ctx context.Context, st *runState, call output.ToolCallRequest, action *output.ResolvedAction) (string, error) {
	now := time.Now()
	for _, required := range action.RequiredCaps {
		if err := r.caps.CheckAction(st.token, required, now); err != nil {
			return "", err
		}
	}

	if action.Kind == output.KindSubworkflow {
		return r.runSubworkflow(ctx, st, call, action)
	}
	return r.resolver.Execute(ctx, action, call.Params)
}

// runSubworkflow spawns a child thread with the parent token injected
// and waits for its outcome.
func (r *Runner) runSubworkflow(ctx context.Context, st *runState, call output.ToolCallRequest, action *output.ResolvedAction) (string, error) {
	if r.spawner == nil {
		return "", fmt.Errorf("subworkflow calls are not available in this session")
	}

	var params struct {
		Prompt string         `json:"prompt"`
		Limits *thread.Limits `json:"limits,omitempty"`
	}
	if call.Params != "" {
		if err := json.Unmarshal([]byte(call.Params), &params); err != nil {
			return "", fmt.Errorf("parse subworkflow params: %w", err)
		}
	}
	limits := thread.Limits{}
	if params.Limits != nil {
		limits = *params.Limits
	}

	token := st.token
	childID, err := r.spawner.SpawnChild(ctx, action.Directive, limits, action.RequiredCaps, st.th.ID(), &token, params.Prompt)
	if err != nil {
		return "", err
	}
	st.cost.SpawnCount++
	r.snapshotCost(ctx, st)

	out, err := r.spawner.WaitChild(ctx, childID)
	if err != nil {
		return "", err
	}
	if out.Error != "" {
		return "", fmt.Errorf("subworkflow %s %s: %s", childID, out.Status, out.Error)
	}
	return truncateResult(out.Result), nil
}

// suspend settles the thread in the suspended state with an escalation
// record proposing a doubled limit.
func (r *Runner) suspend(ctx context.Context, st *runState, violation *thread.LimitViolation) service.Outcome {
	return r.suspendWithReason(ctx, st, violation, thread.SuspendReasonLimit,
		fmt.Sprintf("%s: %.2f of %.2f", violation.Code, violation.Current, violation.Max))
}

func (r *Runner) suspendWithReason(ctx context.Context, st *runState, violation *thread.LimitViolation, reason thread.SuspendReason, message string) service.Outcome {
	id := st.th.ID()
	now := time.Now()
	esc := thread.NewEscalation(*violation, message, now)

	if err := st.th.ReportCost(st.cost, now); err != nil {
		r.logger.Warn("thread %s cost report on suspend failed: %v", id, err)
	}
	if err := st.th.Suspend(reason, &esc, now); err != nil {
		r.logger.Error("thread %s suspend transition failed: %v", id, err)
		return r.finalize(ctx, st, thread.StatusError, "", message)
	}
	if err := r.registry.Save(ctx, st.th); err != nil {
		r.logger.Error("thread %s suspend save failed: %v", id, err)
	}
	if _, err := r.ledger.ReportActual(ctx, id, st.cost.Spend); err != nil {
		r.logger.Warn("thread %s spend report on suspend failed: %v", id, err)
	}
	r.saveMeta(st)

	r.appendEvent(id, output.JournalEvent{
		Type: output.EventThreadSuspended,
		Turn: st.cost.Turns,
		Payload: map[string]interface{}{
			"reason":       string(reason),
			"limit_code":   esc.LimitCode,
			"proposed_max": esc.ProposedMax,
		},
	})
	if _, err := r.journal.Checkpoint(id, st.cost.Turns); err != nil {
		r.logger.Warn("thread %s suspend checkpoint failed: %v", id, err)
	}

	r.logger.Info("thread %s suspended (%s), proposing max %.2f", id, esc.LimitCode, esc.ProposedMax)
	return service.Outcome{
		ThreadID: id,
		Status:   string(thread.StatusSuspended),
		Cost:     st.cost,
		Error:    message,
	}
}

// finalize is the guaranteed terminal path: actual spend reported and
// clamped, cascaded to the parent, the reservation released, the
// registry updated, the metadata record signed, and a final checkpoint
// written.
func (r *Runner) finalize(ctx context.Context, st *runState, status thread.Status, result, errorText string) service.Outcome {
	id := st.th.ID()
	now := time.Now()
	st.cost.ElapsedSeconds = time.Since(st.started).Seconds()

	recorded, err := r.ledger.ReportActual(ctx, id, st.cost.Spend)
	if err != nil {
		r.logger.Warn("thread %s final spend report failed: %v", id, err)
		recorded = st.cost.Spend
	}
	st.cost.Spend = recorded

	// fold finished children into this entry before release, so the
	// released actual covers the whole subtree and the parent's
	// finished-children accounting sees it exactly once
	if children, err := r.registry.ListChildren(ctx, id); err == nil {
		for _, ch := range children {
			entry, err := r.ledger.Get(ctx, ch.ID())
			if err != nil || entry.ActualSpend <= 0 {
				continue
			}
			if err := r.ledger.CascadeSpend(ctx, ch.ID(), id, entry.ActualSpend); err != nil {
				r.logger.Warn("thread %s spend fold from %s failed: %v", id, ch.ID(), err)
			}
		}
	}
	if err := r.ledger.Release(ctx, id, status); err != nil {
		r.logger.Warn("thread %s budget release failed: %v", id, err)
	}

	if err := st.th.Finalize(status, st.cost, result, errorText, now); err != nil {
		r.logger.Error("thread %s finalize transition failed: %v", id, err)
	}
	if err := r.registry.Save(ctx, st.th); err != nil {
		r.logger.Error("thread %s final save failed: %v", id, err)
	}
	r.saveMeta(st)

	eventType := output.EventThreadCompleted
	switch status {
	case thread.StatusError:
		eventType = output.EventThreadError
	case thread.StatusCancelled:
		eventType = output.EventThreadCancelled
	}
	r.appendEvent(id, output.JournalEvent{
		Type: eventType,
		Turn: st.cost.Turns,
		Payload: map[string]interface{}{
			"status": string(status),
			"spend":  st.cost.Spend,
		},
	})
	if _, err := r.journal.Checkpoint(id, st.cost.Turns); err != nil {
		r.logger.Warn("thread %s final checkpoint failed: %v", id, err)
	}

	if r.archive != nil {
		if data, err := r.journal.Snapshot(id); err != nil {
			r.logger.Warn("thread %s journal snapshot failed: %v", id, err)
		} else if err := r.archive.Upload(ctx, id+"/journal.ndjson", bytes.NewReader(data)); err != nil {
			r.logger.Warn("thread %s journal archive failed: %v", id, err)
		}
	}

	r.logger.Info("thread %s finished %s after %d turns (spend %.4f)", id, status, st.cost.Turns, st.cost.Spend)
	return service.Outcome{
		ThreadID: id,
		Status:   string(status),
		Cost:     st.cost,
		Result:   truncateResult(result),
		Error:    errorText,
	}
}

// appendEvent writes a journal event. The journal is what the
// checkpoints sign, so a lost event is worth a warning even though it
// never interrupts execution.
func (r *Runner) appendEvent(id string, event output.JournalEvent) {
	if err := r.journal.Append(id, event); err != nil {
		r.logger.Warn("thread %s journal append failed: %v", id, err)
	}
}

// snapshotCost mirrors the running totals into the registry and ledger
// at turn granularity.
func (r *Runner) snapshotCost(ctx context.Context, st *runState) {
	if err := st.th.ReportCost(st.cost, time.Now()); err != nil {
		return
	}
	if err := r.registry.Save(ctx, st.th); err != nil {
		r.logger.Warn("thread %s cost snapshot failed: %v", st.th.ID(), err)
	}
	if _, err := r.ledger.ReportActual(ctx, st.th.ID(), st.cost.Spend); err != nil {
		r.logger.Warn("thread %s spend snapshot failed: %v", st.th.ID(), err)
	}
}

func (r *Runner) saveMeta(st *runState) {
	record := &output.MetaRecord{
		ThreadID:      st.th.ID(),
		Directive:     st.th.Directive(),
		ParentID:      st.th.ParentID(),
		Status:        string(st.th.Status()),
		SuspendReason: string(st.th.SuspendReason()),
		Limits:        st.th.Limits(),
		Cost:          st.th.Cost(),
		Capabilities:  st.th.Capabilities(),
		Result:        st.th.Result(),
		ErrorText:     st.th.ErrorText(),
		Escalation:    st.th.Escalation(),
		UpdatedAt:     st.th.UpdatedAt(),
	}
	if err := r.meta.Save(record); err != nil {
		r.logger.Warn("thread %s metadata save failed: %v", st.th.ID(), err)
	}
}

func parseReturnResult(params string) string {
	var payload struct {
		Result string `json:"result"`
	}
	if err := json.Unmarshal([]byte(params), &payload); err == nil && payload.Result != "" {
		return payload.Result
	}
	return params
}

func truncateResult(s string) string {
	if len(s) <= resultTruncateLen {
		return s
	}
	// back off to a rune boundary so the cut never splits a character
	cut := resultTruncateLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "… [truncated]"
}
