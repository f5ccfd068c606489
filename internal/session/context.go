package session

import "context"

type stateContextKey struct{}

// ContextWithState stores the visitor state in context.
func ContextWithState(ctx context.Context, st *State) context.Context {
	return context.WithValue(ctx, stateContextKey{}, st)
}

// StateFromContext extracts the visitor state from context.
func StateFromContext(ctx context.Context) *State {
	st, _ := ctx.Value(stateContextKey{}).(*State)
	return st
}
