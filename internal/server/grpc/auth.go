package grpcserver

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/and161185/omikuji/internal/api/ledgerv1"
	"github.com/and161185/omikuji/internal/model"
)

// TokenVerifier validates a LINE ID token; *idtoken.Verifier implements it.
type TokenVerifier interface {
	Verify(raw string) (model.TokenClaims, error)
}

// AuthUnary authenticates ledger calls with "authorization: Bearer <ID token>"
// and stores the token subject in context. Other services (health, reflection)
// pass through.
func AuthUnary(v TokenVerifier, log *zap.Logger) grpc.UnaryServerInterceptor {
	prefix := "/" + ledgerv1.ServiceName + "/"
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		if !strings.HasPrefix(info.FullMethod, prefix) {
			return next(ctx, req)
		}
		tok, err := bearerTokenFromMD(ctx)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "no auth")
		}
		claims, err := v.Verify(tok)
		if err != nil {
			log.Debug("id token rejected", zap.String("method", info.FullMethod), zap.Error(err))
			return nil, status.Error(codes.Unauthenticated, "invalid id token")
		}
		return next(WithUserID(ctx, claims.Subject), req)
	}
}

func bearerTokenFromMD(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", errors.New("no metadata")
	}
	for _, v := range md.Get("authorization") {
		v = strings.TrimSpace(v)
		if len(v) >= 7 && strings.EqualFold(v[:7], "bearer ") {
			if t := strings.TrimSpace(v[7:]); t != "" {
				return t, nil
			}
		}
	}
	return "", errors.New("no bearer token")
}
