// Package convert maps domain records to the ledger wire messages and back.
package convert

import (
	"fmt"
	"time"

	u "github.com/gofrs/uuid/v5"

	"github.com/and161185/omikuji/internal/api/ledgerv1"
	"github.com/and161185/omikuji/internal/model"
)

// --- helpers ---

func utc(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

// --- Fortune (client -> server) ---

// FortuneToWire converts a drawn fortune into the draw message recorded by the ledger.
func FortuneToWire(f model.Fortune) ledgerv1.Draw {
	return ledgerv1.Draw{
		ID:      f.ID.String(),
		Deck:    f.Deck,
		Title:   f.Title,
		Message: f.Message,
		DrawnAt: utc(f.DrawnAt),
	}
}

// --- Draw ---

// DrawToWire converts a ledger draw to its wire form. The user id is implied by the caller's token.
func DrawToWire(d model.Draw) ledgerv1.Draw {
	return ledgerv1.Draw{
		ID:      d.ID.String(),
		Deck:    d.Deck,
		Title:   d.Title,
		Message: d.Message,
		DrawnAt: utc(d.DrawnAt),
	}
}

// DrawsToWire converts a page of draws.
func DrawsToWire(ds []model.Draw) []ledgerv1.Draw {
	out := make([]ledgerv1.Draw, 0, len(ds))
	for _, d := range ds {
		out = append(out, DrawToWire(d))
	}
	return out
}

// DrawFromWire parses a wire draw for userID.
func DrawFromWire(userID string, in ledgerv1.Draw) (model.Draw, error) {
	var id u.UUID
	if err := id.UnmarshalText([]byte(in.ID)); err != nil {
		return model.Draw{}, fmt.Errorf("invalid id: %w", err)
	}
	return model.Draw{
		ID:      id,
		UserID:  userID,
		Deck:    in.Deck,
		Title:   in.Title,
		Message: in.Message,
		DrawnAt: in.DrawnAt,
	}, nil
}

// DrawsFromWire parses a page of wire draws for userID.
func DrawsFromWire(userID string, in []ledgerv1.Draw) ([]model.Draw, error) {
	out := make([]model.Draw, 0, len(in))
	for i, d := range in {
		m, err := DrawFromWire(userID, d)
		if err != nil {
			return nil, fmt.Errorf("draw[%d]: %w", i, err)
		}
		out = append(out, m)
	}
	return out, nil
}
