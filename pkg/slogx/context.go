package slogx

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := fromContext(ctx); ok {
		return l
	}
	return slog.Default()
}

func fromContext(ctx context.Context) (*slog.Logger, bool) {
	l, ok := ctx.Value(ctxKey{}).(*slog.Logger)
	return l, ok && l != nil
}

// WithRoom returns ctx with a logger scoped to a chat room. Requests sent
// through a Transport with this ctx log with it.
func WithRoom(ctx context.Context, roomID int64) context.Context {
	l := FromContext(ctx)
	return WithContext(ctx, l.With("room_id", roomID))
}
