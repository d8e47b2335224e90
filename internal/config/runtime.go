package config

import "context"

// Runtime carries switches that are read per request instead of from a
// process global, so concurrent requests (and tests) can see different
// values.
type Runtime struct {
	MaintenanceMode bool
}

type runtimeKey struct{}

func WithRuntime(ctx context.Context, rt Runtime) context.Context {
	return context.WithValue(ctx, runtimeKey{}, rt)
}

// RuntimeFrom returns the runtime attached to ctx, or the zero value.
func RuntimeFrom(ctx context.Context) Runtime {
	rt, _ := ctx.Value(runtimeKey{}).(Runtime)
	return rt
}
