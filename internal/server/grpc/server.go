// Package grpcserver exposes the omikuji.v1.Ledger gRPC API handlers.
package grpcserver

import (
	"context"
	"errors"
	"time"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/and161185/omikuji/internal/api/ledgerv1"
	"github.com/and161185/omikuji/internal/convert"
	"github.com/and161185/omikuji/internal/errs"
	"github.com/and161185/omikuji/internal/service"
)

// Server wires the ledger service into gRPC handlers.
type Server struct {
	ledger service.LedgerService
}

var _ ledgerv1.LedgerServer = (*Server)(nil)

// New constructs the handlers.
func New(ledger service.LedgerService) *Server {
	return &Server{ledger: ledger}
}

// RecordConsent stores the consent the caller just gave.
func (s *Server) RecordConsent(ctx context.Context, req *ledgerv1.RecordConsentRequest) (*ledgerv1.RecordConsentResponse, error) {
	userID, ok := UserIDFromCtx(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	c, err := s.ledger.RecordConsent(ctx, userID, req.Scopes)
	if err != nil {
		return nil, toStatus("record consent", err)
	}
	return &ledgerv1.RecordConsentResponse{ConsentID: c.ID.String(), GrantedAt: c.GrantedAt}, nil
}

// RevokeConsent closes the caller's active consent.
func (s *Server) RevokeConsent(ctx context.Context, _ *ledgerv1.RevokeConsentRequest) (*ledgerv1.RevokeConsentResponse, error) {
	userID, ok := UserIDFromCtx(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	revoked, err := s.ledger.RevokeConsent(ctx, userID)
	if err != nil {
		return nil, toStatus("revoke consent", err)
	}
	return &ledgerv1.RevokeConsentResponse{Revoked: revoked}, nil
}

// RecordDraw stores a draw of the caller.
func (s *Server) RecordDraw(ctx context.Context, req *ledgerv1.RecordDrawRequest) (*ledgerv1.RecordDrawResponse, error) {
	userID, ok := UserIDFromCtx(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	in, err := convert.DrawFromWire(userID, req.Draw)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "bad draw id")
	}
	d, err := s.ledger.RecordDraw(ctx, userID, in)
	if err != nil {
		return nil, toStatus("record draw", err)
	}
	return &ledgerv1.RecordDrawResponse{Draw: convert.DrawToWire(d)}, nil
}

// ListDraws pages through the caller's draws, newest first.
func (s *Server) ListDraws(ctx context.Context, req *ledgerv1.ListDrawsRequest) (*ledgerv1.ListDrawsResponse, error) {
	userID, ok := UserIDFromCtx(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "no auth")
	}
	if req.Limit < 0 {
		return nil, status.Error(codes.InvalidArgument, "negative limit")
	}
	var before time.Time
	if req.Before != nil {
		before = *req.Before
	}
	ds, err := s.ledger.ListDraws(ctx, userID, before, req.Limit)
	if err != nil {
		return nil, toStatus("list draws", err)
	}
	return &ledgerv1.ListDrawsResponse{Draws: convert.DrawsToWire(ds)}, nil
}

// toStatus maps service errors to gRPC statuses.
func toStatus(op string, err error) error {
	var rl *service.RateLimitError
	switch {
	case errors.As(err, &rl):
		return rateLimited(rl.RetryAfter)
	case errors.Is(err, errs.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, errs.ErrUnauthorized):
		return status.Error(codes.PermissionDenied, "no active consent")
	case errors.Is(err, errs.ErrAlreadyExists):
		return status.Error(codes.AlreadyExists, "already recorded")
	case errors.Is(err, errs.ErrNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, op+": canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, op+": deadline exceeded")
	default:
		return status.Errorf(codes.Internal, "%s: %v", op, err)
	}
}

// rateLimited builds ResourceExhausted with a RetryInfo detail.
func rateLimited(wait time.Duration) error {
	st := status.New(codes.ResourceExhausted, "draw allowance exhausted")
	withInfo, err := st.WithDetails(&errdetails.RetryInfo{RetryDelay: durationpb.New(wait)})
	if err != nil {
		return st.Err()
	}
	return withInfo.Err()
}
