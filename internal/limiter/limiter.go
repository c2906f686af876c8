// Package limiter defines the per-user draw limiter of the ledger.
package limiter

import (
	"context"
	"time"
)

// Limiter caps how many draws a user may record within a window.
type Limiter interface {
	// Take reserves one draw for userID. When the window allowance is spent
	// nothing is reserved and the wait until the window ends is returned.
	Take(ctx context.Context, userID string) (bool, time.Duration, error)
	// Release hands back a reservation whose draw was not stored.
	Release(ctx context.Context, userID string) error
}
