package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/and161185/omikuji/internal/errs"
	"github.com/and161185/omikuji/internal/model"
)

func TestDrawRepo_Create_OK_and_Duplicate(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewDrawRepo(db)
	ctx := context.Background()
	d := &model.Draw{
		ID:      uuid.Must(uuid.NewV4()),
		UserID:  "U1",
		Deck:    "omikuji",
		Title:   "大吉",
		Message: "Great blessing",
		DrawnAt: time.Now().UTC(),
	}

	mock.ExpectExec(`INSERT INTO draws \(id, user_id, deck, title, message, drawn_at\) VALUES \(\$1, \$2, \$3, \$4, \$5, \$6\)`).
		WithArgs(d.ID, d.UserID, d.Deck, d.Title, d.Message, d.DrawnAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, r.Create(ctx, d))

	mock.ExpectExec(`INSERT INTO draws`).
		WithArgs(d.ID, d.UserID, d.Deck, d.Title, d.Message, d.DrawnAt).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	require.ErrorIs(t, r.Create(ctx, d), errs.ErrAlreadyExists)
}

func TestDrawRepo_ListByUser(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewDrawRepo(db)
	ctx := context.Background()
	id1, id2 := uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4())
	t2 := time.Now().UTC()
	t1 := t2.Add(-time.Hour)

	mock.ExpectQuery(`SELECT id, user_id, deck, title, message, drawn_at FROM draws WHERE user_id=\$1`).
		WithArgs("U1", pgxmock.AnyArg(), 10).
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "deck", "title", "message", "drawn_at"}).
			AddRow(id2, "U1", "omikuji", "吉", "m2", t2).
			AddRow(id1, "U1", "luckycat", "Lucky cat", "m1", t1))

	out, err := r.ListByUser(ctx, "U1", time.Time{}, 10)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, id2, out[0].ID)
	require.Equal(t, "luckycat", out[1].Deck)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDrawRepo_ListByUser_Errors(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewDrawRepo(db)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT id, user_id, deck, title, message, drawn_at FROM draws`).
		WithArgs("U1", pgxmock.AnyArg(), 5).
		WillReturnError(errors.New("db down"))
	_, err := r.ListByUser(ctx, "U1", time.Now(), 5)
	require.Error(t, err)

	mock.ExpectQuery(`SELECT id, user_id, deck, title, message, drawn_at FROM draws`).
		WithArgs("U1", pgxmock.AnyArg(), 5).
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "deck", "title", "message", "drawn_at"}).
			AddRow(uuid.Must(uuid.NewV4()), "U1", "omikuji", "吉", "m", time.Now()).
			RowError(0, errors.New("row broken")))
	_, err = r.ListByUser(ctx, "U1", time.Now(), 5)
	require.Error(t, err)
}
