package query

import (
	"context"
	"fmt"
)

// Query describes how to load one cached resource.
type Query[T any] struct {
	Key     Key
	Fn      func(context.Context) (T, error)
	Options Options
}

func (q Query[T]) fetchFunc() fetchFunc {
	return func(ctx context.Context) (any, error) { return q.Fn(ctx) }
}

// Get returns cached data when fresh. Missing data is fetched and awaited;
// stale data is returned at once while a background refetch runs.
func Get[T any](ctx context.Context, c *Client, q Query[T]) (T, error) {
	return get(ctx, c, q, false)
}

// Fetch is Get that always waits for a fresh value when the entry is stale.
func Fetch[T any](ctx context.Context, c *Client, q Query[T]) (T, error) {
	return get(ctx, c, q, true)
}

// Peek returns the cached value for key without fetching.
func Peek[T any](c *Client, key Key) (T, bool) {
	var zero T
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.id()]
	if !ok || !e.hasData {
		return zero, false
	}
	v, ok := e.data.(T)
	return v, ok
}

func get[T any](ctx context.Context, c *Client, q Query[T], wait bool) (T, error) {
	var zero T
	if !q.Options.enabled() {
		return zero, ErrDisabled
	}
	s := c.snapshot(q.Key, q.Options)
	if s.hasData && !s.stale {
		return cast[T](q.Key, s.data)
	}
	ch := c.start(ctx, q.Key, q.fetchFunc(), q.Options)
	if s.hasData && !wait {
		return cast[T](q.Key, s.data)
	}
	select {
	case r := <-ch:
		if r.Err != nil {
			return zero, r.Err
		}
		return cast[T](q.Key, r.Val)
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func cast[T any](key Key, v any) (T, error) {
	out, ok := v.(T)
	if !ok && v != nil {
		var zero T
		return zero, fmt.Errorf("query %s: cached %T is not %T", key, v, zero)
	}
	return out, nil
}
