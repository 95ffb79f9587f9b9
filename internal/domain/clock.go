package domain

import (
	"context"
	"time"
)

type Clock interface {
	Today() time.Time
}

type SystemClock struct{}

func (SystemClock) Today() time.Time {
	return DateOf(time.Now().UTC())
}

// FixedClock always reports the same day.
type FixedClock struct {
	Day time.Time
}

func (c FixedClock) Today() time.Time {
	return DateOf(c.Day)
}

type actorKey struct{}

// WithActor attaches the acting user id used for audit attribution.
func WithActor(ctx context.Context, actorID string) context.Context {
	if actorID == "" {
		return ctx
	}
	return context.WithValue(ctx, actorKey{}, actorID)
}

// ActorFrom returns nil for system-initiated actions.
func ActorFrom(ctx context.Context) *string {
	v, ok := ctx.Value(actorKey{}).(string)
	if !ok || v == "" {
		return nil
	}
	return &v
}
