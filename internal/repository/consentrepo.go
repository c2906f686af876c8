// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/and161185/omikuji/internal/model"
)

// ConsentRepository stores explicit profile-sharing consents.
type ConsentRepository interface {
	// Grant revokes any active consent of c.UserID and inserts c as the active one.
	Grant(ctx context.Context, c *model.Consent) error
	// RevokeActive marks the active consent of userID revoked at the given time.
	// Returns the number of consents revoked.
	RevokeActive(ctx context.Context, userID string, at time.Time) (int64, error)
	// Active loads the active consent of userID.
	Active(ctx context.Context, userID string) (*model.Consent, error)
}
