package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/cuemby/burrow/pkg/errdefs"
)

// Func produces a fixed-dimension embedding for a text. Implementations
// must be safe for concurrent use; the engine calls them from every
// store's write path.
type Func func(ctx context.Context, text string) ([]float32, error)

var (
	mu         sync.RWMutex
	fn         Func
	dim        int
	configured bool
)

// Configure installs the process-global embedding provider. It may be
// called exactly once, before any store is opened; the dimension is fixed
// for the process lifetime.
func Configure(f Func, dimension int) error {
	if f == nil {
		return errdefs.InvalidArgf("embedding function is nil")
	}
	if dimension <= 0 {
		return errdefs.InvalidArgf("embedding dimension %d", dimension)
	}
	mu.Lock()
	defer mu.Unlock()
	if configured {
		return fmt.Errorf("embedding provider already configured")
	}
	fn = f
	dim = dimension
	configured = true
	return nil
}

// Reset clears the provider. Test helper only.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	fn = nil
	dim = 0
	configured = false
}

// Dim returns the configured embedding dimension, or 0 before Configure.
func Dim() int {
	mu.RLock()
	defer mu.RUnlock()
	return dim
}

// Embed produces the embedding for text via the configured provider.
// Operations that need embeddings before Configure fail with
// ErrUnavailable.
func Embed(ctx context.Context, text string) ([]float32, error) {
	mu.RLock()
	f, d, ok := fn, dim, configured
	mu.RUnlock()
	if !ok {
		return nil, errdefs.Unavailablef("embedding provider not configured")
	}
	v, err := f(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed text: %w", err)
	}
	if len(v) != d {
		return nil, fmt.Errorf("embedding provider returned dimension %d, want %d", len(v), d)
	}
	return v, nil
}
