// Package idtoken decodes and verifies host identity tokens (LINE Login ID tokens).
package idtoken

import (
	"errors"
	"fmt"
	"time"

	"github.com/and161185/omikuji/internal/errs"
	"github.com/and161185/omikuji/internal/model"
	"github.com/golang-jwt/jwt/v5"
)

// Issuer is the issuer of LINE Login ID tokens.
const Issuer = "https://access.line.me"

var knownClaims = map[string]struct{}{
	"sub": {}, "iss": {}, "aud": {}, "exp": {}, "iat": {},
	"nonce": {}, "email": {}, "name": {}, "picture": {},
}

// Decode parses the token payload without verifying the signature.
// It is meant for display on the client; servers must use Verifier.
func Decode(raw string) (model.TokenClaims, error) {
	if raw == "" {
		return model.TokenClaims{}, errs.ErrInvalidToken
	}
	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, mc); err != nil {
		return model.TokenClaims{}, fmt.Errorf("%w: %v", errs.ErrInvalidToken, err)
	}
	return fromMap(mc)
}

// Verifier checks HS256 ID tokens signed with the channel secret.
type Verifier struct {
	ChannelID     string
	ChannelSecret []byte
	Leeway        time.Duration
}

// NewVerifier constructs a Verifier with a 30s clock leeway.
func NewVerifier(channelID string, channelSecret []byte) *Verifier {
	return &Verifier{ChannelID: channelID, ChannelSecret: channelSecret, Leeway: 30 * time.Second}
}

// Verify validates signature, issuer, audience and lifetime and returns the claims.
func (v *Verifier) Verify(raw string) (model.TokenClaims, error) {
	if raw == "" {
		return model.TokenClaims{}, errs.ErrInvalidToken
	}
	if len(v.ChannelSecret) == 0 || v.ChannelID == "" {
		return model.TokenClaims{}, errors.New("idtoken: verifier not configured")
	}
	mc := jwt.MapClaims{}
	tok, err := jwt.ParseWithClaims(raw, mc, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return v.ChannelSecret, nil
	},
		jwt.WithIssuer(Issuer),
		jwt.WithAudience(v.ChannelID),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(v.Leeway),
	)
	if err != nil || !tok.Valid {
		return model.TokenClaims{}, fmt.Errorf("%w: %v", errs.ErrInvalidToken, err)
	}
	return fromMap(mc)
}

func fromMap(mc jwt.MapClaims) (model.TokenClaims, error) {
	var c model.TokenClaims
	var err error
	if c.Subject, err = mc.GetSubject(); err != nil {
		return model.TokenClaims{}, fmt.Errorf("%w: sub: %v", errs.ErrInvalidToken, err)
	}
	if c.Subject == "" {
		return model.TokenClaims{}, fmt.Errorf("%w: missing sub", errs.ErrInvalidToken)
	}
	c.Issuer, _ = mc.GetIssuer()
	if aud, err := mc.GetAudience(); err == nil {
		c.Audience = []string(aud)
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		c.IssuedAt = iat.Time
	}
	c.Email = str(mc, "email")
	c.Name = str(mc, "name")
	c.Picture = str(mc, "picture")
	c.Nonce = str(mc, "nonce")

	for k, val := range mc {
		if _, ok := knownClaims[k]; ok {
			continue
		}
		if c.Extra == nil {
			c.Extra = map[string]any{}
		}
		c.Extra[k] = val
	}
	return c, nil
}

func str(mc jwt.MapClaims, key string) string {
	s, _ := mc[key].(string)
	return s
}
