package repositories

import "context"

type commitHooksKey struct{}

type commitHooks struct {
	fns []func(ctx context.Context)
}

// WithCommitHooks returns a context collecting AfterCommit callbacks and a
// function that runs them in registration order
func WithCommitHooks(ctx context.Context) (context.Context, func(ctx context.Context)) {
	hooks := &commitHooks{}
	run := func(ctx context.Context) {
		for _, fn := range hooks.fns {
			fn(ctx)
		}
	}
	return context.WithValue(ctx, commitHooksKey{}, hooks), run
}

// AfterCommit defers fn until the enclosing transaction commits. Callbacks
// are dropped on rollback. Outside a transaction fn runs immediately.
func AfterCommit(ctx context.Context, fn func(ctx context.Context)) {
	if hooks, ok := ctx.Value(commitHooksKey{}).(*commitHooks); ok {
		hooks.fns = append(hooks.fns, fn)
		return
	}
	fn(ctx)
}
