package provider

import (
	"context"
	"sync"

	"github.com/weftworks/weft/internal/application/port/output"
)

// MockTurn scripts one model call: either a response or an error.
type MockTurn struct {
	Response *output.ModelResponse
	Err      error
}

// MockProviderGateway replays a scripted sequence of turns. Once the
// script runs out it keeps returning the last turn.
type MockProviderGateway struct {
	mu    sync.Mutex
	turns []MockTurn
	calls int
}

// NewMockProviderGateway creates a gateway replaying the given turns.
func NewMockProviderGateway(turns ...MockTurn) *MockProviderGateway {
	return &MockProviderGateway{turns: turns}
}

// CallModel returns the next scripted turn.
func (g *MockProviderGateway) CallModel(ctx context.Context, req output.ModelRequest) (*output.ModelResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, &output.ProviderError{Message: "model call cancelled"}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	idx := g.calls
	if idx >= len(g.turns) {
		idx = len(g.turns) - 1
	}
	g.calls++
	if idx < 0 {
		return &output.ModelResponse{Text: "done"}, nil
	}
	turn := g.turns[idx]
	if turn.Err != nil {
		return nil, turn.Err
	}
	return turn.Response, nil
}

// Calls reports how many model calls were made.
func (g *MockProviderGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}
