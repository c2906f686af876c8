package postgres

import (
	"context"
	"time"

	"github.com/and161185/omikuji/internal/errs"
	"github.com/and161185/omikuji/internal/model"
)

// DrawRepo implements repository.DrawRepository using PostgreSQL.
type DrawRepo struct{ db *DB }

// NewDrawRepo constructs a draw repository.
func NewDrawRepo(db *DB) *DrawRepo { return &DrawRepo{db: db} }

// Create inserts a draw row.
func (r *DrawRepo) Create(ctx context.Context, d *model.Draw) error {
	const q = `
INSERT INTO draws (id, user_id, deck, title, message, drawn_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.Pool.Exec(ctx, q, d.ID, d.UserID, d.Deck, d.Title, d.Message, d.DrawnAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// ListByUser returns the newest draws of userID before the given time.
func (r *DrawRepo) ListByUser(ctx context.Context, userID string, before time.Time, limit int) ([]model.Draw, error) {
	const q = `
SELECT id, user_id, deck, title, message, drawn_at
FROM draws
WHERE user_id=$1 AND ($2::timestamptz IS NULL OR drawn_at < $2)
ORDER BY drawn_at DESC
LIMIT $3`
	var upper *time.Time
	if !before.IsZero() {
		upper = &before
	}
	rows, err := r.db.Pool.Query(ctx, q, userID, upper, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Draw, 0, limit)
	for rows.Next() {
		var d model.Draw
		if err := rows.Scan(&d.ID, &d.UserID, &d.Deck, &d.Title, &d.Message, &d.DrawnAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
