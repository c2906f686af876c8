package grpcserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/and161185/omikuji/internal/api/ledgerv1"
	"github.com/and161185/omikuji/internal/errs"
	"github.com/and161185/omikuji/internal/model"
	"github.com/and161185/omikuji/internal/service"
)

type fakeLedger struct {
	consentUser   string
	consentScopes []string
	revoked       bool

	drawIn  model.Draw
	drawErr error

	listBefore time.Time
	listLimit  int
	listOut    []model.Draw
}

var _ service.LedgerService = (*fakeLedger)(nil)

func (f *fakeLedger) RecordConsent(_ context.Context, userID string, scopes []string) (model.Consent, error) {
	f.consentUser, f.consentScopes = userID, scopes
	return model.Consent{ID: uuid.Must(uuid.NewV4()), UserID: userID, Scopes: scopes, GrantedAt: time.Now().UTC()}, nil
}

func (f *fakeLedger) RevokeConsent(context.Context, string) (bool, error) { return f.revoked, nil }

func (f *fakeLedger) RecordDraw(_ context.Context, userID string, d model.Draw) (model.Draw, error) {
	if f.drawErr != nil {
		return model.Draw{}, f.drawErr
	}
	d.UserID = userID
	f.drawIn = d
	return d, nil
}

func (f *fakeLedger) ListDraws(_ context.Context, _ string, before time.Time, limit int) ([]model.Draw, error) {
	f.listBefore, f.listLimit = before, limit
	return f.listOut, nil
}

const bufSize = 1 << 20

func startBufGRPC(t *testing.T, srv *Server, obs RPCObserver) *grpc.ClientConn {
	t.Helper()
	log := zaptest.NewLogger(t)
	lis := bufconn.Listen(bufSize)
	gs := grpc.NewServer(grpc.ChainUnaryInterceptor(
		RecoverUnary(log),
		LoggingUnary(log),
		MetricsUnary(obs),
		AuthUnary(newVerifier(), log),
	))
	ledgerv1.RegisterLedgerServer(gs, srv)
	healthpb.RegisterHealthServer(gs, health.NewServer())
	go func() { _ = gs.Serve(lis) }()

	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return lis.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cc.Close(); gs.Stop(); _ = lis.Close() })
	return cc
}

func outgoing(t *testing.T, sub string) context.Context {
	tok := lineIDToken(t, sub, []byte(testChannelSecret), time.Now(), time.Hour)
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+tok)
}

func TestServer_E2E_Flow(t *testing.T) {
	t.Parallel()
	fl := &fakeLedger{revoked: true}
	obs := &recordingObserver{}
	cl := ledgerv1.NewLedgerClient(startBufGRPC(t, New(fl), obs))
	ctx := outgoing(t, "U1")

	cr, err := cl.RecordConsent(ctx, &ledgerv1.RecordConsentRequest{Scopes: []string{"profile", "openid"}})
	require.NoError(t, err)
	require.NotEmpty(t, cr.ConsentID)
	require.Equal(t, "U1", fl.consentUser)
	require.Equal(t, []string{"profile", "openid"}, fl.consentScopes)

	id := uuid.Must(uuid.NewV4())
	drawnAt := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	dr, err := cl.RecordDraw(ctx, &ledgerv1.RecordDrawRequest{Draw: ledgerv1.Draw{
		ID: id.String(), Deck: "omikuji", Title: "大吉", Message: "Great blessing", DrawnAt: drawnAt,
	}})
	require.NoError(t, err)
	require.Equal(t, id.String(), dr.Draw.ID)
	require.Equal(t, "大吉", fl.drawIn.Title)
	require.True(t, fl.drawIn.DrawnAt.Equal(drawnAt))

	fl.listOut = []model.Draw{{ID: id, Deck: "omikuji", Title: "大吉", DrawnAt: drawnAt}}
	before := drawnAt.Add(time.Hour)
	lr, err := cl.ListDraws(ctx, &ledgerv1.ListDrawsRequest{Before: &before, Limit: 5})
	require.NoError(t, err)
	require.Len(t, lr.Draws, 1)
	require.True(t, fl.listBefore.Equal(before))
	require.Equal(t, 5, fl.listLimit)

	rr, err := cl.RevokeConsent(ctx, &ledgerv1.RevokeConsentRequest{})
	require.NoError(t, err)
	require.True(t, rr.Revoked)
	require.Equal(t, ledgerv1.RevokeConsentMethod, obs.method)
}

func TestServer_E2E_Unauthenticated(t *testing.T) {
	t.Parallel()
	cl := ledgerv1.NewLedgerClient(startBufGRPC(t, New(&fakeLedger{}), &recordingObserver{}))

	_, err := cl.ListDraws(context.Background(), &ledgerv1.ListDrawsRequest{})
	require.Equal(t, codes.Unauthenticated, status.Code(err))

	ctx := metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer forged")
	_, err = cl.RecordConsent(ctx, &ledgerv1.RecordConsentRequest{})
	require.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestServer_E2E_RateLimitedCarriesRetryInfo(t *testing.T) {
	t.Parallel()
	fl := &fakeLedger{drawErr: fmt.Errorf("record: %w", &service.RateLimitError{RetryAfter: 42 * time.Second})}
	cl := ledgerv1.NewLedgerClient(startBufGRPC(t, New(fl), &recordingObserver{}))

	_, err := cl.RecordDraw(outgoing(t, "U1"), &ledgerv1.RecordDrawRequest{Draw: ledgerv1.Draw{
		ID: uuid.Must(uuid.NewV4()).String(), Deck: "omikuji", Title: "吉",
	}})
	require.Equal(t, codes.ResourceExhausted, status.Code(err))
	wait, ok := ledgerv1.RetryDelay(err)
	require.True(t, ok)
	require.Equal(t, 42*time.Second, wait)
}

func TestServer_E2E_HealthNeedsNoAuth(t *testing.T) {
	t.Parallel()
	cc := startBufGRPC(t, New(&fakeLedger{}), &recordingObserver{})
	resp, err := healthpb.NewHealthClient(cc).Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestServer_HandlersRequireUser(t *testing.T) {
	t.Parallel()
	s := New(&fakeLedger{})
	ctx := context.Background()

	_, err := s.RecordConsent(ctx, &ledgerv1.RecordConsentRequest{})
	require.Equal(t, codes.Unauthenticated, status.Code(err))
	_, err = s.RevokeConsent(ctx, &ledgerv1.RevokeConsentRequest{})
	require.Equal(t, codes.Unauthenticated, status.Code(err))
	_, err = s.RecordDraw(ctx, &ledgerv1.RecordDrawRequest{})
	require.Equal(t, codes.Unauthenticated, status.Code(err))
	_, err = s.ListDraws(ctx, &ledgerv1.ListDrawsRequest{})
	require.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestServer_BadArguments(t *testing.T) {
	t.Parallel()
	s := New(&fakeLedger{})
	ctx := WithUserID(context.Background(), "U1")

	_, err := s.RecordDraw(ctx, &ledgerv1.RecordDrawRequest{Draw: ledgerv1.Draw{ID: "not-a-uuid"}})
	require.Equal(t, codes.InvalidArgument, status.Code(err))
	_, err = s.ListDraws(ctx, &ledgerv1.ListDrawsRequest{Limit: -1})
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

func Test_toStatus(t *testing.T) {
	t.Parallel()
	cases := []struct {
		err  error
		code codes.Code
	}{
		{fmt.Errorf("%w: empty title", errs.ErrInvalidArgument), codes.InvalidArgument},
		{fmt.Errorf("no active consent: %w", errs.ErrUnauthorized), codes.PermissionDenied},
		{errs.ErrAlreadyExists, codes.AlreadyExists},
		{errs.ErrNotFound, codes.NotFound},
		{&service.RateLimitError{RetryAfter: time.Minute}, codes.ResourceExhausted},
		{context.Canceled, codes.Canceled},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{errors.New("db down"), codes.Internal},
	}
	for _, tc := range cases {
		require.Equal(t, tc.code, status.Code(toStatus("op", tc.err)), tc.err.Error())
	}
}
