package storage

import (
	"context"
	"io"
	"sync"
)

// MockStorageGateway keeps uploads in memory. Used by tests and as the
// "none" archive backend.
type MockStorageGateway struct {
	mu      sync.Mutex
	objects map[string][]byte
}

// NewMockStorageGateway creates an empty in-memory gateway.
func NewMockStorageGateway() *MockStorageGateway {
	return &MockStorageGateway{objects: make(map[string][]byte)}
}

// Upload stores the body under key.
func (g *MockStorageGateway) Upload(ctx context.Context, key string, body io.Reader) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.objects[key] = data
	return nil
}

// Exists reports whether an object was uploaded.
func (g *MockStorageGateway) Exists(ctx context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.objects[key]
	return ok, nil
}

// Object returns a stored object's bytes for assertions.
func (g *MockStorageGateway) Object(key string) ([]byte, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	data, ok := g.objects[key]
	return data, ok
}
