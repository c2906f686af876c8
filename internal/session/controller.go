// Package session implements the consent-gated session controller.
//
// A host session reported at initialization is never treated as consent:
// the controller parks it in SessionPresentUnconfirmed until the user
// explicitly proceeds, and only then fetches profile and identity token.
// Fortune draw and share are available in Authenticated only.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/and161185/omikuji/internal/errs"
	"github.com/and161185/omikuji/internal/fortune"
	"github.com/and161185/omikuji/internal/idtoken"
	"github.com/and161185/omikuji/internal/model"
)

// Snapshot is a consistent copy of the controller's observable state.
type Snapshot struct {
	State        State
	Profile      *model.Profile
	Claims       *model.TokenClaims
	Capabilities *model.Capabilities
	Fortune      *model.Fortune
	Message      string // single user-visible message slot
	Busy         bool   // an async transition is in flight
}

// Controller owns the session state. It is the only writer of profile,
// claims, capabilities and fortune; all methods are safe for concurrent use.
type Controller struct {
	host    Host
	drawer  Drawer
	journal Journal
	log     *zap.Logger

	mu         sync.Mutex
	state      State
	gen        uint64 // bumped on every state change; stale async results are dropped
	busy       bool
	profile    *model.Profile
	claims     *model.TokenClaims
	idToken    string
	caps       *model.Capabilities
	fortune    *model.Fortune
	message    string
	forceLogin bool // set by logout: ignore lingering host sessions until StartLogin
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger (default: no-op).
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// WithJournal sets the event journal (default: none).
func WithJournal(j Journal) Option {
	return func(c *Controller) {
		if j != nil {
			c.journal = j
		}
	}
}

// New constructs a controller in the Uninitialized state.
func New(host Host, drawer Drawer, opts ...Option) *Controller {
	c := &Controller{
		host:    host,
		drawer:  drawer,
		journal: nopJournal{},
		log:     zap.NewNop(),
		state:   Uninitialized,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns a copy of the observable state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{State: c.state, Message: c.message, Busy: c.busy}
	if c.profile != nil {
		p := *c.profile
		s.Profile = &p
	}
	if c.claims != nil {
		cl := *c.claims
		s.Claims = &cl
	}
	if c.caps != nil {
		cp := *c.caps
		s.Capabilities = &cp
	}
	if c.fortune != nil {
		f := *c.fortune
		s.Fortune = &f
	}
	return s
}

// Init runs an initialization cycle. It is the start-of-visit trigger and the
// re-entry point after the host login redirect returns. An existing host
// session lands in SessionPresentUnconfirmed, never in Authenticated.
func (c *Controller) Init(ctx context.Context) error {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return errs.ErrBusy
	}
	if c.state == InitFailed {
		c.mu.Unlock()
		return fmt.Errorf("%w: initialization failed, reload required", errs.ErrInvalidTransition)
	}
	c.clearIdentity()
	c.caps = nil
	c.message = ""
	c.busy = true
	gen := c.advance(Initializing)
	c.mu.Unlock()

	err := c.host.Initialize(ctx)
	var caps model.Capabilities
	var present bool
	if err == nil {
		caps = model.Capabilities{InClient: c.host.InClient(), CanShare: c.host.ShareCapable()}
		present = c.host.HasExistingSession()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return errs.ErrSuperseded
	}
	c.busy = false
	if err != nil {
		c.advance(InitFailed)
		c.message = msgInitFailed
		c.log.Error("host initialization failed", zap.Error(err))
		return &Error{Kind: KindInitialization, Err: err}
	}
	c.caps = &caps
	switch {
	case present && c.forceLogin:
		c.log.Info("ignoring lingering host session after logout")
		c.advance(NoSession)
	case present:
		c.advance(SessionPresentUnconfirmed)
	default:
		c.advance(NoSession)
	}
	return nil
}

// StartLogin hands off to the host login flow. The session stays in NoSession
// until the flow returns and Init is called again.
func (c *Controller) StartLogin(ctx context.Context) error {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return errs.ErrBusy
	}
	if c.state != NoSession {
		st := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: login from %s", errs.ErrInvalidTransition, st)
	}
	c.forceLogin = false
	c.message = ""
	c.busy = true
	gen := c.gen
	c.mu.Unlock()

	err := c.host.StartLogin(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return errs.ErrSuperseded
	}
	c.busy = false
	if err != nil {
		c.message = msgLoginFailed
		c.log.Warn("start login failed", zap.Error(err))
		return &Error{Kind: KindLogin, Err: err}
	}
	return nil
}

// Proceed is the explicit consent: it fetches profile and identity token and
// promotes SessionPresentUnconfirmed to Authenticated. On any failure the
// session stays unconfirmed.
func (c *Controller) Proceed(ctx context.Context) error {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return errs.ErrBusy
	}
	if c.state != SessionPresentUnconfirmed {
		st := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: proceed from %s", errs.ErrInvalidTransition, st)
	}
	c.message = ""
	c.busy = true
	gen := c.gen
	c.mu.Unlock()

	profile, claims, raw, err := c.retrieveIdentity(ctx)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		c.log.Info("discarding profile retrieval result", zap.Error(errs.ErrSuperseded))
		return errs.ErrSuperseded
	}
	c.busy = false
	if err != nil {
		c.message = msgProfile
		c.mu.Unlock()
		c.log.Warn("profile retrieval failed", zap.Error(err))
		return &Error{Kind: KindProfileFetch, Err: err}
	}
	c.profile = &profile
	c.claims = &claims
	c.idToken = raw
	c.advance(Authenticated)
	c.mu.Unlock()

	if jerr := c.journal.ConsentGranted(ctx, Grant{IDToken: raw, Profile: profile, Claims: claims}); jerr != nil {
		c.log.Warn("journal consent granted", zap.Error(jerr))
	}
	return nil
}

func (c *Controller) retrieveIdentity(ctx context.Context) (model.Profile, model.TokenClaims, string, error) {
	p, err := c.host.FetchProfile(ctx)
	if err != nil {
		return model.Profile{}, model.TokenClaims{}, "", err
	}
	raw := c.host.IDToken()
	claims, err := idtoken.Decode(raw)
	if err != nil {
		return model.Profile{}, model.TokenClaims{}, "", fmt.Errorf("identity token: %w", err)
	}
	if p.UserID == "" || claims.Subject != p.UserID {
		return model.Profile{}, model.TokenClaims{}, "", errors.New("identity token subject does not match profile")
	}
	return p, claims, raw, nil
}

// Logout clears profile, claims and fortune, ends the host session
// best-effort and always finishes in NoSession. It is accepted while a
// proceed or share is in flight and supersedes it.
func (c *Controller) Logout(ctx context.Context) error {
	c.mu.Lock()
	if c.state != Authenticated && c.state != SessionPresentUnconfirmed {
		st := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w: logout from %s", errs.ErrInvalidTransition, st)
	}
	idTok := c.idToken
	c.clearIdentity()
	c.message = ""
	c.busy = true
	gen := c.advance(LoggedOut)
	c.mu.Unlock()

	if idTok != "" {
		if jerr := c.journal.ConsentRevoked(ctx, idTok); jerr != nil {
			c.log.Warn("journal consent revoked", zap.Error(jerr))
		}
	}
	if err := c.host.EndSession(ctx); err != nil {
		c.log.Warn("host logout failed; local session reset anyway",
			zap.Error(&Error{Kind: KindLogout, Err: err}))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen == c.gen {
		c.busy = false
		c.forceLogin = true
		c.advance(NoSession)
	}
	return nil
}

// Draw picks a new fortune. Rejected without side effects unless Authenticated.
func (c *Controller) Draw(ctx context.Context) (model.Fortune, error) {
	c.mu.Lock()
	if c.state != Authenticated {
		c.mu.Unlock()
		return model.Fortune{}, errs.ErrNotAuthenticated
	}
	if c.busy {
		c.mu.Unlock()
		return model.Fortune{}, errs.ErrBusy
	}
	f, err := c.drawer.Draw()
	if err != nil {
		c.mu.Unlock()
		return model.Fortune{}, fmt.Errorf("draw: %w", err)
	}
	c.fortune = &f
	c.message = ""
	tok := c.idToken
	c.mu.Unlock()

	if jerr := c.journal.FortuneDrawn(ctx, tok, f); jerr != nil {
		c.log.Warn("journal fortune drawn", zap.Error(jerr))
	}
	return f, nil
}

// Share posts the current fortune: through the share target picker when
// available, else as a direct message inside the host client, else it
// reports ShareUnsupported without calling the host.
func (c *Controller) Share(ctx context.Context) (ShareMethod, error) {
	c.mu.Lock()
	if c.state != Authenticated {
		c.mu.Unlock()
		return ShareNone, errs.ErrNotAuthenticated
	}
	if c.busy {
		c.mu.Unlock()
		return ShareNone, errs.ErrBusy
	}
	if c.fortune == nil {
		c.mu.Unlock()
		return ShareNone, errs.ErrNoFortune
	}
	var method ShareMethod
	switch {
	case c.caps != nil && c.caps.CanShare:
		method = SharePicker
	case c.caps != nil && c.caps.InClient:
		method = ShareDirect
	default:
		c.message = msgUnsupported
		c.mu.Unlock()
		return ShareUnsupported, nil
	}
	msgs := fortune.Messages(*c.fortune)
	c.message = ""
	c.busy = true
	gen := c.gen
	c.mu.Unlock()

	var err error
	if method == SharePicker {
		err = c.host.ShareViaPicker(ctx, msgs)
	} else {
		err = c.host.SendDirectMessage(ctx, msgs)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return method, errs.ErrSuperseded
	}
	c.busy = false
	if err != nil {
		c.message = msgShareFailed
		c.log.Warn("share failed", zap.Stringer("method", method), zap.Error(err))
		return method, &Error{Kind: KindShare, Err: err}
	}
	return method, nil
}

// advance moves to s and returns the new generation. Caller holds mu.
func (c *Controller) advance(s State) uint64 {
	c.log.Debug("session transition", zap.Stringer("from", c.state), zap.Stringer("to", s))
	c.state = s
	c.gen++
	return c.gen
}

// clearIdentity drops everything derived from the user's consent. Caller holds mu.
func (c *Controller) clearIdentity() {
	c.profile = nil
	c.claims = nil
	c.idToken = ""
	c.fortune = nil
}
