package grpcserver

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/and161185/omikuji/internal/api/ledgerv1"
	"github.com/and161185/omikuji/internal/idtoken"
)

const (
	testChannelID     = "1650000000"
	testChannelSecret = "channel-secret"
)

func newVerifier() *idtoken.Verifier {
	return idtoken.NewVerifier(testChannelID, []byte(testChannelSecret))
}

// lineIDToken signs an ID token the way the LINE platform does for the test channel.
func lineIDToken(t *testing.T, sub string, key []byte, iat time.Time, ttl time.Duration) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": idtoken.Issuer,
		"sub": sub,
		"aud": testChannelID,
		"iat": iat.Unix(),
		"exp": iat.Add(ttl).Unix(),
	}).SignedString(key)
	require.NoError(t, err)
	return s
}

func ctxAuth(token string) context.Context {
	return metadata.NewIncomingContext(context.Background(),
		metadata.Pairs("authorization", "Bearer "+token))
}

func Test_bearerTokenFromMD_OkAndErrors(t *testing.T) {
	t.Parallel()

	got, err := bearerTokenFromMD(ctxAuth("abc.def.ghi"))
	require.NoError(t, err)
	require.Equal(t, "abc.def.ghi", got)

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Basic foo"))
	_, err = bearerTokenFromMD(ctx)
	require.Error(t, err)

	ctx = metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer   "))
	_, err = bearerTokenFromMD(ctx)
	require.Error(t, err)

	_, err = bearerTokenFromMD(context.Background())
	require.Error(t, err)
}

func Test_bearerTokenFromMD_MultipleHeaders_CaseInsensitive_Spaces(t *testing.T) {
	t.Parallel()
	md := metadata.New(nil)
	md.Append("authorization", "Basic foo")
	md.Append("authorization", "  bearer   tok.part.sig   ")
	got, err := bearerTokenFromMD(metadata.NewIncomingContext(context.Background(), md))
	require.NoError(t, err)
	require.Equal(t, "tok.part.sig", got)
}

func TestAuthUnary(t *testing.T) {
	t.Parallel()
	ic := AuthUnary(newVerifier(), zaptest.NewLogger(t))
	ledger := &grpc.UnaryServerInfo{FullMethod: ledgerv1.RecordDrawMethod}

	var seen string
	h := func(ctx context.Context, _ any) (any, error) {
		seen, _ = UserIDFromCtx(ctx)
		return "ok", nil
	}
	now := time.Now()

	cases := []struct {
		name string
		ctx  context.Context
		code codes.Code
		user string
	}{
		{"valid", ctxAuth(lineIDToken(t, "U1", []byte(testChannelSecret), now, time.Hour)), codes.OK, "U1"},
		{"no metadata", context.Background(), codes.Unauthenticated, ""},
		{"wrong secret", ctxAuth(lineIDToken(t, "U1", []byte("other"), now, time.Hour)), codes.Unauthenticated, ""},
		{"expired", ctxAuth(lineIDToken(t, "U1", []byte(testChannelSecret), now.Add(-2*time.Hour), time.Hour)), codes.Unauthenticated, ""},
		{"garbage", ctxAuth("not-a-jwt"), codes.Unauthenticated, ""},
	}
	for _, tc := range cases {
		seen = ""
		_, err := ic(tc.ctx, nil, ledger, h)
		require.Equal(t, tc.code, status.Code(err), tc.name)
		require.Equal(t, tc.user, seen, tc.name)
	}
}

func TestAuthUnary_OtherServicesPassThrough(t *testing.T) {
	t.Parallel()
	ic := AuthUnary(newVerifier(), zaptest.NewLogger(t))
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	resp, err := ic(context.Background(), nil, info, func(context.Context, any) (any, error) { return "up", nil })
	require.NoError(t, err)
	require.Equal(t, "up", resp)
}
