package service

import (
	"context"
	"sync"
)

// DispatchRequest is one action to run in a turn's fan-out. Resource is
// the serialization group key: requests sharing a resource run in their
// original order; different resources run concurrently.
type DispatchRequest struct {
	CallID   string
	Resource string
	Run      func(ctx context.Context) (string, error)
}

// DispatchResult pairs a call with its textual result or error.
type DispatchResult struct {
	CallID string
	Result string
	Err    error
}

// Dispatcher fans tool calls out across resource groups with a bound on
// how many groups run at once. Result ordering always matches request
// ordering regardless of completion order.
type Dispatcher struct {
	groupCap int
}

// NewDispatcher creates a dispatcher. cap <= 0 falls back to 25.
func NewDispatcher(groupCap int) *Dispatcher {
	if groupCap <= 0 {
		groupCap = 25
	}
	return &Dispatcher{groupCap: groupCap}
}

// Dispatch runs the requests and returns results in request order.
// Cancellation is observed between calls within a group, never
// mid-call.
func (d *Dispatcher) Dispatch(ctx context.Context, reqs []DispatchRequest) []DispatchResult {
	results := make([]DispatchResult, len(reqs))

	// group indexes by resource, preserving per-resource order
	order := make([]string, 0, len(reqs))
	groups := make(map[string][]int)
	for i, req := range reqs {
		if _, ok := groups[req.Resource]; !ok {
			order = append(order, req.Resource)
		}
		groups[req.Resource] = append(groups[req.Resource], i)
	}

	sem := make(chan struct{}, d.groupCap)
	var wg sync.WaitGroup
	for _, resource := range order {
		indexes := groups[resource]
		wg.Add(1)
		sem <- struct{}{}
		go func(indexes []int) {
			defer wg.Done()
			defer func() { <-sem }()
			for _, i := range indexes {
				if err := ctx.Err(); err != nil {
					results[i] = DispatchResult{CallID: reqs[i].CallID, Err: err}
					continue
				}
				out, err := reqs[i].Run(ctx)
				results[i] = DispatchResult{CallID: reqs[i].CallID, Result: out, Err: err}
			}
		}(indexes)
	}
	wg.Wait()
	return results
}
