package repository

import (
	"context"
	"time"

	"github.com/and161185/omikuji/internal/model"
)

// DrawRepository stores fortune draws.
type DrawRepository interface {
	// Create inserts a draw; errs.ErrAlreadyExists when the id was recorded before.
	Create(ctx context.Context, d *model.Draw) error
	// ListByUser returns up to limit draws of userID drawn strictly before the
	// given time, newest first. A zero before means no upper bound.
	ListByUser(ctx context.Context, userID string, before time.Time, limit int) ([]model.Draw, error)
}
