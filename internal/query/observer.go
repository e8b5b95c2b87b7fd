package query

import (
	"context"
	"sync"
	"time"
)

// Result is one observed state of a query.
type Result[T any] struct {
	Data       T
	HasData    bool
	Err        error
	Status     Status
	IsFetching bool
	UpdatedAt  time.Time
}

// Observer keeps a query mounted: it fetches on mount when stale, polls on
// the refetch interval and refetches when the key is invalidated.
type Observer[T any] struct {
	c       *Client
	q       Query[T]
	sub     *subscriber
	updates chan Result[T]
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
}

// Watch mounts q. Call Close to unmount.
func Watch[T any](ctx context.Context, c *Client, q Query[T]) *Observer[T] {
	ctx, cancel := context.WithCancel(ctx)
	o := &Observer[T]{
		c:       c,
		q:       q,
		sub:     c.subscribe(q.Key),
		updates: make(chan Result[T], 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go o.loop(ctx)
	return o
}

// Updates delivers the latest state; intermediate states may be skipped.
// The channel is closed after Close.
func (o *Observer[T]) Updates() <-chan Result[T] { return o.updates }

// Current returns the present state without waiting.
func (o *Observer[T]) Current() Result[T] { return o.result(o.c.snapshot(o.q.Key, o.q.Options)) }

// Refetch starts a fetch now regardless of staleness.
func (o *Observer[T]) Refetch(ctx context.Context) {
	o.c.start(ctx, o.q.Key, o.q.fetchFunc(), o.q.Options)
}

// Close stops polling. A fetch already in flight still completes and
// updates the cache.
func (o *Observer[T]) Close() {
	o.once.Do(func() {
		o.cancel()
		<-o.done
		o.c.unsubscribe(o.q.Key, o.sub)
	})
}

func (o *Observer[T]) loop(ctx context.Context) {
	defer close(o.done)
	defer close(o.updates)

	var tick <-chan time.Time
	if iv := o.q.Options.RefetchInterval; iv > 0 {
		t := time.NewTicker(iv)
		defer t.Stop()
		tick = t.C
	}

	o.sync(ctx, true)
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			if o.q.Options.enabled() {
				o.c.start(ctx, o.q.Key, o.q.fetchFunc(), o.q.Options)
			}
		case <-o.sub.ch:
			o.sync(ctx, false)
		}
	}
}

// sync publishes the current state and starts a fetch when one is due.
func (o *Observer[T]) sync(ctx context.Context, mount bool) {
	s := o.c.snapshot(o.q.Key, o.q.Options)
	if o.q.Options.enabled() && !s.fetching {
		due := s.invalidated ||
			(s.status == StatusIdle && !s.hasData) ||
			(mount && s.stale)
		if due {
			o.c.start(ctx, o.q.Key, o.q.fetchFunc(), o.q.Options)
		}
	}
	o.publish(o.result(s))
}

func (o *Observer[T]) result(s snapshot) Result[T] {
	r := Result[T]{
		HasData:    s.hasData,
		Err:        s.err,
		Status:     s.status,
		IsFetching: s.fetching,
		UpdatedAt:  s.updatedAt,
	}
	if v, ok := s.data.(T); ok {
		r.Data = v
	}
	return r
}

func (o *Observer[T]) publish(r Result[T]) {
	select {
	case o.updates <- r:
		return
	default:
	}
	select {
	case <-o.updates:
	default:
	}
	select {
	case o.updates <- r:
	default:
	}
}
