package audit

import "context"

type ctxKeyActor struct{}

// Actor identifies who triggered an audited action.
type Actor struct {
	Source  string
	Subject string
}

// WithActor returns a context carrying the actor for audit entries created
// further down the call chain.
func WithActor(ctx context.Context, source, subject string) context.Context {
	return context.WithValue(ctx, ctxKeyActor{}, Actor{Source: source, Subject: subject})
}

// ActorFrom returns the actor stored in ctx, or SourceBridge when none is.
func ActorFrom(ctx context.Context) Actor {
	if a, ok := ctx.Value(ctxKeyActor{}).(Actor); ok {
		return a
	}
	return Actor{Source: SourceBridge}
}
