package session

import (
	"context"

	"github.com/and161185/omikuji/internal/model"
)

// Host is the mini-app host SDK as seen by the controller. Every call is
// externally owned and may fail; the controller knows nothing about transport.
type Host interface {
	// Initialize prepares the SDK for this visit.
	Initialize(ctx context.Context) error
	// HasExistingSession reports a host session established outside this visit.
	HasExistingSession() bool
	// StartLogin hands control to the host login flow (redirect).
	StartLogin(ctx context.Context) error
	// EndSession logs the user out of the host.
	EndSession(ctx context.Context) error
	// FetchProfile returns the current user's profile.
	FetchProfile(ctx context.Context) (model.Profile, error)
	// IDToken returns the raw identity token, or "" when none is available.
	IDToken() string
	// InClient reports whether the app runs inside the host messaging client.
	InClient() bool
	// ShareCapable reports whether the share target picker is available.
	ShareCapable() bool
	// ShareViaPicker lets the user pick recipients for msgs.
	ShareViaPicker(ctx context.Context, msgs []model.Message) error
	// SendDirectMessage posts msgs to the chat the app was opened from.
	SendDirectMessage(ctx context.Context, msgs []model.Message) error
}

// Drawer produces fortunes.
type Drawer interface {
	Draw() (model.Fortune, error)
}

// Grant describes a consent that just promoted the session to Authenticated.
type Grant struct {
	IDToken string
	Profile model.Profile
	Claims  model.TokenClaims
}

// Journal receives session events after the matching transition committed.
// Calls are best-effort: errors are logged and never change session state.
type Journal interface {
	ConsentGranted(ctx context.Context, g Grant) error
	ConsentRevoked(ctx context.Context, idToken string) error
	FortuneDrawn(ctx context.Context, idToken string, f model.Fortune) error
}

type nopJournal struct{}

func (nopJournal) ConsentGranted(context.Context, Grant) error               { return nil }
func (nopJournal) ConsentRevoked(context.Context, string) error              { return nil }
func (nopJournal) FortuneDrawn(context.Context, string, model.Fortune) error { return nil }
