package limiter

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PG is a PostgreSQL-backed fixed-window draw limiter. The check and the
// increment happen in one statement, so concurrent draws of the same user
// serialize on the row lock and never exceed maxDraws.
type PG struct {
	pool     pgxQuerier
	window   time.Duration
	maxDraws int
	now      func() time.Time
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a limiter allowing maxDraws per window. *pgxpool.Pool satisfies q.
func NewPG(q pgxQuerier, window time.Duration, maxDraws int) *PG {
	return &PG{pool: q, window: window, maxDraws: maxDraws, now: time.Now}
}

// Take counts a draw in the current window, starting a new window when the
// previous one elapsed. The conflict update is skipped when the window is
// still open and already full; no row comes back and the draw is refused.
func (l *PG) Take(ctx context.Context, userID string) (bool, time.Duration, error) {
	const q = `
INSERT INTO draw_limiter (user_id, draw_count, window_start)
VALUES ($1, 1, $2)
ON CONFLICT (user_id) DO UPDATE
SET
  draw_count = CASE WHEN $2 - draw_limiter.window_start >= $3::interval THEN 1 ELSE draw_limiter.draw_count + 1 END,
  window_start = CASE WHEN $2 - draw_limiter.window_start >= $3::interval THEN $2 ELSE draw_limiter.window_start END
WHERE $2 - draw_limiter.window_start >= $3::interval OR draw_limiter.draw_count < $4
RETURNING draw_count`
	now := l.now()
	var count int
	err := l.pool.QueryRow(ctx, q, userID, now, l.window, l.maxDraws).Scan(&count)
	switch {
	case err == nil:
		return true, 0, nil
	case errors.Is(err, pgx.ErrNoRows):
	default:
		return false, 0, err
	}

	const sel = `SELECT window_start FROM draw_limiter WHERE user_id=$1`
	var start time.Time
	if err := l.pool.QueryRow(ctx, sel, userID).Scan(&start); err != nil {
		return false, 0, err
	}
	wait := start.Add(l.window).Sub(now)
	if wait < 0 {
		wait = 0
	}
	return false, wait, nil
}

// Release gives back one draw of the current window.
func (l *PG) Release(ctx context.Context, userID string) error {
	const q = `UPDATE draw_limiter SET draw_count = draw_count - 1 WHERE user_id=$1 AND draw_count > 0`
	_, err := l.pool.Exec(ctx, q, userID)
	return err
}
