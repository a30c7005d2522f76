package key

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Guard serializes mutating operations for a single operator session.
// At most one create/revoke/rotate is in flight at a time; a later
// mutation queues behind the current one instead of interleaving side
// effects. Refreshes wait for an in-flight mutation to finish but run
// their own I/O outside the lock, so a slow listing never delays a
// mutation, and concurrent identical refreshes collapse into one flight.
type Guard struct {
	mu sync.Mutex
	sf singleflight.Group
}

// Mutate runs fn with the mutation lock held.
func (g *Guard) Mutate(ctx context.Context, fn func(context.Context) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fn(ctx)
}

// Refresh waits until no mutation is in flight, then runs fn, coalescing
// concurrent calls that share a key onto a single execution.
func (g *Guard) Refresh(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	// Barrier only: taking and releasing the lock orders this refresh
	// after the current mutation without holding anything during I/O.
	g.mu.Lock()
	//lint:ignore SA2001 the critical section is intentionally empty
	g.mu.Unlock()

	v, err, _ := g.sf.Do(key, func() (any, error) {
		return fn(ctx)
	})
	return v, err
}
