package idtoken

import (
	"testing"
	"time"

	"github.com/and161185/omikuji/internal/errs"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, method jwt.SigningMethod, key []byte, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func lineClaims(now time.Time) jwt.MapClaims {
	return jwt.MapClaims{
		"iss":     Issuer,
		"sub":     "U1234567890abcdef",
		"aud":     "1650000000",
		"iat":     now.Unix(),
		"exp":     now.Add(time.Hour).Unix(),
		"nonce":   "n-1",
		"name":    "Alice",
		"email":   "alice@example.com",
		"amr":     []any{"linesso"},
		"picture": "https://profile.example/alice.png",
	}
}

func TestDecode_ReadsClaimsWithoutKey(t *testing.T) {
	t.Parallel()
	now := time.Now().Truncate(time.Second)
	raw := sign(t, jwt.SigningMethodHS256, []byte("whatever"), lineClaims(now))

	c, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, "U1234567890abcdef", c.Subject)
	require.Equal(t, "alice@example.com", c.Email)
	require.Equal(t, "Alice", c.Name)
	require.Equal(t, "n-1", c.Nonce)
	require.Equal(t, Issuer, c.Issuer)
	require.Equal(t, []string{"1650000000"}, c.Audience)
	require.True(t, c.ExpiresAt.Equal(now.Add(time.Hour)))
	require.Contains(t, c.Extra, "amr")
	require.NotContains(t, c.Extra, "sub")
}

func TestDecode_Rejects(t *testing.T) {
	t.Parallel()

	_, err := Decode("")
	require.ErrorIs(t, err, errs.ErrInvalidToken)

	_, err = Decode("not-a-jwt")
	require.ErrorIs(t, err, errs.ErrInvalidToken)

	noSub := sign(t, jwt.SigningMethodHS256, []byte("k"), jwt.MapClaims{"email": "x@example.com"})
	_, err = Decode(noSub)
	require.ErrorIs(t, err, errs.ErrInvalidToken)
}

func TestVerifier_Verify(t *testing.T) {
	t.Parallel()
	secret := []byte("channel-secret")
	v := NewVerifier("1650000000", secret)
	now := time.Now()

	t.Run("valid", func(t *testing.T) {
		c, err := v.Verify(sign(t, jwt.SigningMethodHS256, secret, lineClaims(now)))
		require.NoError(t, err)
		require.Equal(t, "U1234567890abcdef", c.Subject)
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := v.Verify(sign(t, jwt.SigningMethodHS256, []byte("other"), lineClaims(now)))
		require.ErrorIs(t, err, errs.ErrInvalidToken)
	})

	t.Run("wrong alg", func(t *testing.T) {
		_, err := v.Verify(sign(t, jwt.SigningMethodHS384, secret, lineClaims(now)))
		require.ErrorIs(t, err, errs.ErrInvalidToken)
	})

	t.Run("wrong audience", func(t *testing.T) {
		c := lineClaims(now)
		c["aud"] = "999"
		_, err := v.Verify(sign(t, jwt.SigningMethodHS256, secret, c))
		require.ErrorIs(t, err, errs.ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		c := lineClaims(now)
		c["iss"] = "https://evil.example"
		_, err := v.Verify(sign(t, jwt.SigningMethodHS256, secret, c))
		require.ErrorIs(t, err, errs.ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		c := lineClaims(now.Add(-3 * time.Hour))
		_, err := v.Verify(sign(t, jwt.SigningMethodHS256, secret, c))
		require.ErrorIs(t, err, errs.ErrInvalidToken)
	})

	t.Run("missing exp", func(t *testing.T) {
		c := lineClaims(now)
		delete(c, "exp")
		_, err := v.Verify(sign(t, jwt.SigningMethodHS256, secret, c))
		require.ErrorIs(t, err, errs.ErrInvalidToken)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := v.Verify("")
		require.ErrorIs(t, err, errs.ErrInvalidToken)
	})
}

func TestVerifier_NotConfigured(t *testing.T) {
	t.Parallel()
	v := &Verifier{}
	_, err := v.Verify("a.b.c")
	require.Error(t, err)
}
