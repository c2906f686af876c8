// Package journal forwards session events to the ledger server.
package journal

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/and161185/omikuji/internal/api/ledgerv1"
	"github.com/and161185/omikuji/internal/convert"
	"github.com/and161185/omikuji/internal/errs"
	"github.com/and161185/omikuji/internal/model"
	"github.com/and161185/omikuji/internal/session"
)

const defaultTimeout = 5 * time.Second

// Client implements session.Journal over the omikuji.v1.Ledger API.
// Every call is authenticated with the user's ID token.
type Client struct {
	ledger  *ledgerv1.LedgerClient
	scopes  []string
	timeout time.Duration
	log     *zap.Logger
}

var _ session.Journal = (*Client)(nil)

// Option customizes Client.
type Option func(*Client)

// WithTimeout bounds each ledger call.
func WithTimeout(d time.Duration) Option { return func(c *Client) { c.timeout = d } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(c *Client) { c.log = l } }

// New wraps an existing connection. scopes are recorded with every consent.
func New(cc grpc.ClientConnInterface, scopes []string, opts ...Option) *Client {
	c := &Client{
		ledger:  ledgerv1.NewLedgerClient(cc),
		scopes:  append([]string(nil), scopes...),
		timeout: defaultTimeout,
		log:     zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Dial connects to the ledger at target, over TLS with the system roots when
// useTLS is set. The returned connection must be closed by the caller.
func Dial(target string, useTLS bool, scopes []string, opts ...Option) (*Client, *grpc.ClientConn, error) {
	creds := insecure.NewCredentials()
	if useTLS {
		creds = credentials.NewClientTLSFromCert(nil, "")
	}
	cc, err := grpc.NewClient(target, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, nil, fmt.Errorf("dial ledger %s: %w", target, err)
	}
	return New(cc, scopes, opts...), cc, nil
}

// ConsentGranted records the consent of the token subject.
func (c *Client) ConsentGranted(ctx context.Context, g session.Grant) error {
	ctx, cancel := c.callCtx(ctx, g.IDToken)
	defer cancel()
	resp, err := c.ledger.RecordConsent(ctx, &ledgerv1.RecordConsentRequest{Scopes: c.scopes})
	if err != nil {
		return mapErr("record consent", err)
	}
	c.log.Debug("consent journaled", zap.String("consent_id", resp.ConsentID))
	return nil
}

// ConsentRevoked closes the active consent of the token subject.
func (c *Client) ConsentRevoked(ctx context.Context, idToken string) error {
	ctx, cancel := c.callCtx(ctx, idToken)
	defer cancel()
	resp, err := c.ledger.RevokeConsent(ctx, &ledgerv1.RevokeConsentRequest{})
	if err != nil {
		return mapErr("revoke consent", err)
	}
	if !resp.Revoked {
		c.log.Debug("no active consent to revoke")
	}
	return nil
}

// FortuneDrawn records a draw.
func (c *Client) FortuneDrawn(ctx context.Context, idToken string, f model.Fortune) error {
	ctx, cancel := c.callCtx(ctx, idToken)
	defer cancel()
	_, err := c.ledger.RecordDraw(ctx, &ledgerv1.RecordDrawRequest{Draw: convert.FortuneToWire(f)})
	if err != nil {
		return mapErr("record draw", err)
	}
	return nil
}

// History lists the most recent draws of the token subject.
func (c *Client) History(ctx context.Context, idToken string, limit int) ([]model.Draw, error) {
	ctx, cancel := c.callCtx(ctx, idToken)
	defer cancel()
	resp, err := c.ledger.ListDraws(ctx, &ledgerv1.ListDrawsRequest{Limit: limit})
	if err != nil {
		return nil, mapErr("list draws", err)
	}
	out, err := convert.DrawsFromWire("", resp.Draws)
	if err != nil {
		return nil, fmt.Errorf("list draws: %w", err)
	}
	return out, nil
}

func (c *Client) callCtx(ctx context.Context, idToken string) (context.Context, context.CancelFunc) {
	ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+idToken)
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// mapErr translates ledger statuses back to the shared sentinels.
func mapErr(op string, err error) error {
	switch status.Code(err) {
	case codes.ResourceExhausted:
		if wait, ok := ledgerv1.RetryDelay(err); ok {
			return fmt.Errorf("%s: retry in %s: %w", op, wait, errs.ErrRateLimited)
		}
		return fmt.Errorf("%s: %w", op, errs.ErrRateLimited)
	case codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("%s: %s: %w", op, status.Convert(err).Message(), errs.ErrUnauthorized)
	case codes.AlreadyExists:
		return fmt.Errorf("%s: %w", op, errs.ErrAlreadyExists)
	case codes.InvalidArgument:
		return fmt.Errorf("%s: %s: %w", op, status.Convert(err).Message(), errs.ErrInvalidArgument)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
