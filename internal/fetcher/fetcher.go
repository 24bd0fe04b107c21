package fetcher

import (
	"context"

	"github.com/avgs/ljmigrate/internal/types"
)

// Fetcher retrieves a URL and returns the raw response. Implementations do
// not retry: a failed fetch surfaces immediately as a *types.FetchError and
// the caller decides whether the failure is fatal (page-level) or absorbed
// (secondary lookup).
type Fetcher interface {
	// Fetch retrieves rawURL. A non-2xx status is an error.
	Fetch(ctx context.Context, rawURL string) (*types.Response, error)

	// Close releases resources.
	Close() error

	// Type returns the fetcher type identifier.
	Type() string
}
