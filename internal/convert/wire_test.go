package convert

import (
	"strings"
	"testing"
	"time"

	u "github.com/gofrs/uuid/v5"

	"github.com/and161185/omikuji/internal/api/ledgerv1"
	"github.com/and161185/omikuji/internal/model"
)

func mustUUID(t *testing.T, s string) u.UUID {
	t.Helper()
	id, err := u.FromString(s)
	if err != nil {
		t.Fatalf("bad uuid %q: %v", s, err)
	}
	return id
}

func TestFortuneToWire(t *testing.T) {
	t.Parallel()

	tokyo := time.FixedZone("JST", 9*3600)
	f := model.Fortune{
		ID:      mustUUID(t, "6f1cbe8e-b2e7-4a3b-9f6e-2a2c0f2f9c11"),
		Deck:    "omikuji",
		Title:   "大吉",
		Message: "今日は攻めてOK。",
		DrawnAt: time.Date(2026, 1, 1, 9, 0, 0, 0, tokyo),
	}
	w := FortuneToWire(f)
	if w.ID != "6f1cbe8e-b2e7-4a3b-9f6e-2a2c0f2f9c11" || w.Deck != "omikuji" || w.Title != "大吉" {
		t.Fatalf("unexpected wire draw: %+v", w)
	}
	if w.DrawnAt.Location() != time.UTC || !w.DrawnAt.Equal(f.DrawnAt) {
		t.Fatalf("drawn_at must be the same instant in UTC, got %v", w.DrawnAt)
	}
	if !FortuneToWire(model.Fortune{}).DrawnAt.IsZero() {
		t.Fatalf("zero time must stay zero")
	}
}

func TestDrawFromWire_OK(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	in := ledgerv1.Draw{ID: "6f1cbe8e-b2e7-4a3b-9f6e-2a2c0f2f9c11", Deck: "luckycat", Title: "太っちょの ベンガル", DrawnAt: at}
	got, err := DrawFromWire("U1", in)
	if err != nil {
		t.Fatalf("DrawFromWire: %v", err)
	}
	if got.ID.String() != in.ID || got.UserID != "U1" || got.Deck != "luckycat" || !got.DrawnAt.Equal(at) {
		t.Fatalf("unexpected draw: %+v", got)
	}
	if back := DrawToWire(got); back.ID != in.ID || back.Title != in.Title || !back.DrawnAt.Equal(at) {
		t.Fatalf("DrawToWire mismatch: %+v", back)
	}
}

func TestDrawsFromWire_BadID(t *testing.T) {
	t.Parallel()

	_, err := DrawsFromWire("U1", []ledgerv1.Draw{
		{ID: "6f1cbe8e-b2e7-4a3b-9f6e-2a2c0f2f9c11"},
		{ID: "not-a-uuid"},
	})
	if err == nil || !strings.Contains(err.Error(), "draw[1]") {
		t.Fatalf("want indexed error, got %v", err)
	}
}

func TestDrawsToWire(t *testing.T) {
	t.Parallel()

	if got := DrawsToWire(nil); got == nil || len(got) != 0 {
		t.Fatalf("nil page must give empty, non-nil slice")
	}
	ds := []model.Draw{
		{ID: mustUUID(t, "6f1cbe8e-b2e7-4a3b-9f6e-2a2c0f2f9c11"), Title: "a"},
		{ID: mustUUID(t, "0d4a1c3e-8a0b-4b5e-9b7a-111111111111"), Title: "b"},
	}
	got := DrawsToWire(ds)
	if len(got) != 2 || got[0].Title != "a" || got[1].ID != "0d4a1c3e-8a0b-4b5e-9b7a-111111111111" {
		t.Fatalf("unexpected page: %+v", got)
	}
}
