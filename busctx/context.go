package busctx

import "context"

type ctxIndex int

const (
	ctxIndexVerbose ctxIndex = iota
	ctxIndexBurstID
)

// IsVerbose tells transports to dump raw frames.
func IsVerbose(ctx context.Context) bool {
	val, ok := ctx.Value(ctxIndexVerbose).(bool)
	return ok && val
}

func SetVerbose(ctx context.Context, value bool) context.Context {
	return context.WithValue(ctx, ctxIndexVerbose, value)
}

// BurstID returns the id of the burst the call runs in, if any.
func BurstID(ctx context.Context) string {
	val, _ := ctx.Value(ctxIndexBurstID).(string)
	return val
}

func WithBurstID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxIndexBurstID, id)
}
