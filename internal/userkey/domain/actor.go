package domain

import "context"

type actorKey struct{}

// Actor identifies who triggered an operation, for the audit trail.
type Actor struct {
	PerformedBy   string
	SourceAddress string
}

// WithActor attaches actor to ctx. Operations audited under ctx record it.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the actor attached by WithActor.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok
}
