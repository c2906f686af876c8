// Package model defines domain entities shared by the controller, the host adapter and the ledger.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Profile is the user profile returned by the host after explicit consent.
type Profile struct {
	UserID        string `json:"userId"`
	DisplayName   string `json:"displayName"`
	PictureURL    string `json:"pictureUrl,omitempty"`
	StatusMessage string `json:"statusMessage,omitempty"`
}

// TokenClaims is the decoded payload of an identity token.
type TokenClaims struct {
	Subject   string
	Email     string
	Name      string
	Picture   string
	Issuer    string
	Audience  []string
	Nonce     string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Extra     map[string]any // claims without a dedicated field
}

// Capabilities describes what the host environment allows; fixed per initialization cycle.
type Capabilities struct {
	InClient bool // running inside the host messaging client
	CanShare bool // share target picker available
}

// Fortune is a single draw result.
type Fortune struct {
	ID      uuid.UUID
	Deck    string
	Title   string
	Message string
	DrawnAt time.Time
}

// Message is a chat message payload handed to the host for share/send.
type Message struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// TextMessage builds a plain text message.
func TextMessage(text string) Message { return Message{Type: "text", Text: text} }

// Consent is a ledger record of an explicit profile-sharing consent.
type Consent struct {
	ID        uuid.UUID
	UserID    string // channel-scoped host user id (token subject)
	Scopes    []string
	GrantedAt time.Time
	RevokedAt *time.Time // nil while active
}

// Draw is a ledger record of a fortune drawn by a consenting user.
type Draw struct {
	ID      uuid.UUID // fortune id, client generated
	UserID  string
	Deck    string
	Title   string
	Message string
	DrawnAt time.Time
}
