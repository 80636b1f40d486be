package output

import (
	"context"
	"io"
)

// StorageGateway archives terminal threads' durable records (journal
// plus metadata) to a configured backend.
type StorageGateway interface {
	// Upload stores the body under key, overwriting any prior object.
	Upload(ctx context.Context, key string, body io.Reader) error

	// Exists reports whether an object is already archived.
	Exists(ctx context.Context, key string) (bool, error)
}
