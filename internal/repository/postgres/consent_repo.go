package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/omikuji/internal/errs"
	"github.com/and161185/omikuji/internal/model"
)

// ConsentRepo implements repository.ConsentRepository using PostgreSQL.
type ConsentRepo struct{ db *DB }

// NewConsentRepo constructs a consent repository.
func NewConsentRepo(db *DB) *ConsentRepo { return &ConsentRepo{db: db} }

// Grant closes the previous active consent and inserts c in one transaction.
func (r *ConsentRepo) Grant(ctx context.Context, c *model.Consent) error {
	const revoke = `UPDATE consents SET revoked_at=$2 WHERE user_id=$1 AND revoked_at IS NULL`
	const ins = `
INSERT INTO consents (id, user_id, scopes, granted_at)
VALUES ($1, $2, $3, $4)`
	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, revoke, c.UserID, c.GrantedAt); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, ins, c.ID, c.UserID, c.Scopes, c.GrantedAt)
		if isUniqueViolation(err) {
			return errs.ErrAlreadyExists
		}
		return err
	})
}

// RevokeActive sets revoked_at on the active consent of userID.
func (r *ConsentRepo) RevokeActive(ctx context.Context, userID string, at time.Time) (int64, error) {
	const q = `UPDATE consents SET revoked_at=$2 WHERE user_id=$1 AND revoked_at IS NULL`
	tag, err := r.db.Pool.Exec(ctx, q, userID, at)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Active selects the consent of userID that is not revoked.
func (r *ConsentRepo) Active(ctx context.Context, userID string) (*model.Consent, error) {
	const q = `
SELECT id, user_id, scopes, granted_at
FROM consents WHERE user_id=$1 AND revoked_at IS NULL`
	var c model.Consent
	err := r.db.Pool.QueryRow(ctx, q, userID).Scan(&c.ID, &c.UserID, &c.Scopes, &c.GrantedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
