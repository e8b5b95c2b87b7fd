package query

import "context"

// Mutation is a server write. It runs exactly once and, on success,
// invalidates the keys returned by Invalidates. It never writes the cache.
type Mutation[In, Out any] struct {
	Fn          func(context.Context, In) (Out, error)
	Invalidates func(In, Out) []Key
}

// Mutate runs m with in and invalidates its related keys on success.
func Mutate[In, Out any](ctx context.Context, c *Client, m Mutation[In, Out], in In) (Out, error) {
	out, err := m.Fn(ctx, in)
	if err != nil {
		return out, err
	}
	if m.Invalidates != nil {
		for _, k := range m.Invalidates(in, out) {
			c.Invalidate(k)
		}
	}
	return out, nil
}
