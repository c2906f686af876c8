// Package service contains the ledger application service.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/omikuji/internal/errs"
	"github.com/and161185/omikuji/internal/fortune"
	"github.com/and161185/omikuji/internal/limiter"
	"github.com/and161185/omikuji/internal/model"
	"github.com/and161185/omikuji/internal/repository"
)

const (
	// DefaultPageSize is used by ListDraws when no limit is given.
	DefaultPageSize = 20
	// MaxPageSize caps ListDraws.
	MaxPageSize = 100
)

// RateLimitError is returned by RecordDraw when the user exhausted the draw allowance.
// It matches errs.ErrRateLimited.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) Unwrap() error { return errs.ErrRateLimited }

// LedgerService records consents and draws of users authenticated by their ID token subject.
type LedgerService interface {
	// RecordConsent stores a new active consent for userID, replacing the previous one.
	RecordConsent(ctx context.Context, userID string, scopes []string) (model.Consent, error)
	// RevokeConsent revokes the active consent; revoking with none active is not an error.
	RevokeConsent(ctx context.Context, userID string) (bool, error)
	// RecordDraw stores a draw of a consenting user, subject to the draw limiter.
	RecordDraw(ctx context.Context, userID string, d model.Draw) (model.Draw, error)
	// ListDraws returns the newest draws of userID before the given time.
	ListDraws(ctx context.Context, userID string, before time.Time, limit int) ([]model.Draw, error)
}

// Hooks observes ledger outcomes; the metrics collector implements it.
type Hooks interface {
	ConsentRecorded()
	ConsentRevoked()
	DrawRecorded(deck string)
	DrawRejected(reason string)
}

type nopHooks struct{}

func (nopHooks) ConsentRecorded()    {}
func (nopHooks) ConsentRevoked()     {}
func (nopHooks) DrawRecorded(string) {}
func (nopHooks) DrawRejected(string) {}

// LedgerServiceImpl is the consent and draw ledger behind the Ledger gRPC
// service. Draws are only accepted from users with an active consent and are
// capped per user by the limiter.
type LedgerServiceImpl struct {
	consents repository.ConsentRepository
	draws    repository.DrawRepository
	lim      limiter.Limiter
	hooks    Hooks
	log      *zap.Logger
	now      func() time.Time
}

// Option customizes LedgerServiceImpl.
type Option func(*LedgerServiceImpl)

// WithHooks installs outcome hooks.
func WithHooks(h Hooks) Option { return func(s *LedgerServiceImpl) { s.hooks = h } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(s *LedgerServiceImpl) { s.log = l } }

// NewLedgerService constructs the ledger with its repositories and limiter.
func NewLedgerService(consents repository.ConsentRepository, draws repository.DrawRepository, lim limiter.Limiter, opts ...Option) *LedgerServiceImpl {
	s := &LedgerServiceImpl{
		consents: consents,
		draws:    draws,
		lim:      lim,
		hooks:    nopHooks{},
		log:      zap.NewNop(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// RecordConsent validates the scopes and stores a fresh consent.
func (s *LedgerServiceImpl) RecordConsent(ctx context.Context, userID string, scopes []string) (model.Consent, error) {
	if userID == "" {
		return model.Consent{}, fmt.Errorf("%w: empty userID", errs.ErrInvalidArgument)
	}
	for i, sc := range scopes {
		if sc == "" {
			return model.Consent{}, fmt.Errorf("%w: scope[%d] empty", errs.ErrInvalidArgument, i)
		}
	}
	id, err := uuid.NewV4()
	if err != nil {
		return model.Consent{}, err
	}
	c := model.Consent{
		ID:        id,
		UserID:    userID,
		Scopes:    append([]string{}, scopes...),
		GrantedAt: s.now().UTC(),
	}
	if err := s.consents.Grant(ctx, &c); err != nil {
		return model.Consent{}, err
	}
	s.hooks.ConsentRecorded()
	s.log.Debug("consent recorded", zap.String("user", userID), zap.Strings("scopes", c.Scopes))
	return c, nil
}

// RevokeConsent reports whether an active consent existed.
func (s *LedgerServiceImpl) RevokeConsent(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, fmt.Errorf("%w: empty userID", errs.ErrInvalidArgument)
	}
	n, err := s.consents.RevokeActive(ctx, userID, s.now().UTC())
	if err != nil {
		return false, err
	}
	if n > 0 {
		s.hooks.ConsentRevoked()
	}
	return n > 0, nil
}

// RecordDraw requires an active consent, reserves a slot in the limiter and
// stores the draw. A draw that is not stored, including a draw id recorded
// before (errs.ErrAlreadyExists), hands its slot back.
func (s *LedgerServiceImpl) RecordDraw(ctx context.Context, userID string, d model.Draw) (model.Draw, error) {
	if userID == "" {
		return model.Draw{}, fmt.Errorf("%w: empty userID", errs.ErrInvalidArgument)
	}
	if d.ID == uuid.Nil {
		return model.Draw{}, fmt.Errorf("%w: empty draw id", errs.ErrInvalidArgument)
	}
	if _, err := fortune.Lookup(d.Deck); err != nil {
		return model.Draw{}, fmt.Errorf("%w: %v", errs.ErrInvalidArgument, err)
	}
	if d.Title == "" {
		return model.Draw{}, fmt.Errorf("%w: empty title", errs.ErrInvalidArgument)
	}
	if _, err := s.consents.Active(ctx, userID); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			s.hooks.DrawRejected("no_consent")
			return model.Draw{}, fmt.Errorf("no active consent: %w", errs.ErrUnauthorized)
		}
		return model.Draw{}, err
	}

	allowed, wait, err := s.lim.Take(ctx, userID)
	if err != nil {
		return model.Draw{}, err
	}
	if !allowed {
		s.hooks.DrawRejected("rate_limited")
		return model.Draw{}, &RateLimitError{RetryAfter: wait}
	}

	d.UserID = userID
	if d.Deck == "" {
		d.Deck = fortune.DeckOmikuji
	}
	if d.DrawnAt.IsZero() {
		d.DrawnAt = s.now()
	}
	d.DrawnAt = d.DrawnAt.UTC()
	if err := s.draws.Create(ctx, &d); err != nil {
		if errors.Is(err, errs.ErrAlreadyExists) {
			s.hooks.DrawRejected("duplicate")
		}
		if rerr := s.lim.Release(ctx, userID); rerr != nil {
			s.log.Warn("limiter release failed", zap.String("user", userID), zap.Error(rerr))
		}
		return model.Draw{}, err
	}
	s.hooks.DrawRecorded(d.Deck)
	return d, nil
}

// ListDraws clamps limit to [1, MaxPageSize], defaulting to DefaultPageSize.
func (s *LedgerServiceImpl) ListDraws(ctx context.Context, userID string, before time.Time, limit int) ([]model.Draw, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: empty userID", errs.ErrInvalidArgument)
	}
	switch {
	case limit <= 0:
		limit = DefaultPageSize
	case limit > MaxPageSize:
		limit = MaxPageSize
	}
	return s.draws.ListByUser(ctx, userID, before, limit)
}
