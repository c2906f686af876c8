package grpcserver

import "context"

type ctxKey string

const userIDKey ctxKey = "omikuji.userID"

// WithUserID stores the authenticated user id (ID token subject) in context.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserIDFromCtx fetches the user id from context.
func UserIDFromCtx(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}
