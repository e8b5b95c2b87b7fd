// Package query is a keyed cache of server state with staleness, polling
// observers, request de-duplication, prefix invalidation and retries.
package query

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/and161185/c3ds-console/internal/errs"
)

// Defaults applied when Options leave a field zero.
const (
	DefaultStaleTime = 5 * time.Minute
	DefaultGCTime    = 10 * time.Minute
	DefaultRetries   = 3
	DefaultBackoff   = 500 * time.Millisecond
)

var (
	// ErrCleared is returned to waiters whose fetch belonged to a cache
	// generation that was cleared while it was in flight.
	ErrCleared = errors.New("query: cache cleared")

	// ErrDisabled is returned by Get and Fetch for a disabled query.
	ErrDisabled = errors.New("query: disabled")
)

// Status is the lifecycle state of a cache entry.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusError
	StatusSuccess
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusError:
		return "error"
	case StatusSuccess:
		return "success"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// RetryMode selects the retry behavior of a read.
type RetryMode int

const (
	RetryDefault RetryMode = iota // client-wide setting
	RetryNever
)

// Options tune a single query.
type Options struct {
	StaleTime       time.Duration // zero means DefaultStaleTime
	RefetchInterval time.Duration // zero disables polling
	Retry           RetryMode
	Enabled         func() bool // nil means always enabled
}

func (o Options) staleTime() time.Duration {
	if o.StaleTime <= 0 {
		return DefaultStaleTime
	}
	return o.StaleTime
}

func (o Options) enabled() bool { return o.Enabled == nil || o.Enabled() }

type fetchFunc func(context.Context) (any, error)

type entry struct {
	key       Key
	data      any
	hasData   bool
	err       error
	status    Status
	updatedAt time.Time
	lastUsed  time.Time
	staleTime time.Duration

	invalidated bool
	seq         uint64 // last issued fetch
	applied     uint64 // last fetch whose result reached the entry
	minSeq      uint64 // first fetch allowed to clear invalidated
	inflight    int
}

type subscriber struct {
	ch chan struct{}
}

// Client holds every cache entry. Create one per application.
type Client struct {
	mu      sync.Mutex
	entries map[string]*entry
	subs    map[string]map[*subscriber]struct{}
	gen     uint64
	flights singleflight.Group
	busy    map[string]chan struct{} // key id -> closed when its request ends

	log     *zap.Logger
	retries int
	backoff time.Duration
	gcTime  time.Duration
	now     func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) Option { return func(c *Client) { c.log = l } }

// WithRetry sets the retry count and base backoff for transient read failures.
// Zero retries disables retrying, which is what development mode uses.
func WithRetry(max int, base time.Duration) Option {
	return func(c *Client) {
		c.retries = max
		c.backoff = base
	}
}

// WithGCTime sets how long an unobserved entry survives after its last use.
func WithGCTime(d time.Duration) Option { return func(c *Client) { c.gcTime = d } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(c *Client) { c.now = now } }

// New returns an empty cache.
func New(opts ...Option) *Client {
	c := &Client{
		entries: map[string]*entry{},
		subs:    map[string]map[*subscriber]struct{}{},
		busy:    map[string]chan struct{}{},
		log:     zap.NewNop(),
		retries: DefaultRetries,
		backoff: DefaultBackoff,
		gcTime:  DefaultGCTime,
		now:     time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Invalidate marks every entry whose key starts with prefix as stale and
// wakes its observers so they refetch immediately.
func (c *Client) Invalidate(prefix Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.entries {
		if !e.key.HasPrefix(prefix) {
			continue
		}
		e.invalidated = true
		e.minSeq = e.seq + 1
		c.notifyLocked(e.key)
		n++
	}
	c.log.Debug("invalidate", zap.Stringer("prefix", prefix), zap.Int("entries", n))
}

// Clear drops every entry and starts a new generation. Results of fetches
// started before Clear are never written to the cache; their waiters get
// ErrCleared, or the fetch error if it failed.
func (c *Client) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.entries = map[string]*entry{}
	for id := range c.subs {
		c.notifyID(id)
	}
	c.log.Debug("cache cleared", zap.Uint64("generation", c.gen))
}

// GC evicts entries that have no observers, no fetch in flight and were
// last used longer than the GC time ago. It returns the number evicted.
func (c *Client) GC() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := c.now().Add(-c.gcTime)
	n := 0
	for id, e := range c.entries {
		if len(c.subs[id]) > 0 || e.inflight > 0 || e.lastUsed.After(cutoff) {
			continue
		}
		delete(c.entries, id)
		n++
	}
	return n
}

// Run calls GC periodically until ctx is done.
func (c *Client) Run(ctx context.Context) {
	interval := c.gcTime / 10
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := c.GC(); n > 0 {
				c.log.Debug("cache gc", zap.Int("evicted", n))
			}
		}
	}
}

// Len returns the number of cached entries.
func (c *Client) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Client) entryLocked(key Key, opts Options) *entry {
	id := key.id()
	e, ok := c.entries[id]
	if !ok {
		e = &entry{key: append(Key(nil), key...)}
		c.entries[id] = e
	}
	e.staleTime = opts.staleTime()
	e.lastUsed = c.now()
	return e
}

func (c *Client) staleLocked(e *entry) bool {
	return e.invalidated || !e.hasData || c.now().Sub(e.updatedAt) >= e.staleTime
}

func (c *Client) notifyLocked(key Key) { c.notifyID(key.id()) }

func (c *Client) notifyID(id string) {
	for s := range c.subs[id] {
		select {
		case s.ch <- struct{}{}:
		default:
		}
	}
}

func (c *Client) subscribe(key Key) *subscriber {
	s := &subscriber{ch: make(chan struct{}, 1)}
	c.mu.Lock()
	defer c.mu.Unlock()
	id := key.id()
	if c.subs[id] == nil {
		c.subs[id] = map[*subscriber]struct{}{}
	}
	c.subs[id][s] = struct{}{}
	return s
}

func (c *Client) unsubscribe(key Key, s *subscriber) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := key.id()
	delete(c.subs[id], s)
	if len(c.subs[id]) == 0 {
		delete(c.subs, id)
	}
	if e, ok := c.entries[id]; ok {
		e.lastUsed = c.now()
	}
}

// start joins or begins the fetch for key. Callers in one generation share
// a flight, and requests for one key never overlap, even across Clear. An
// Invalidate during the flight makes it fetch again before it returns, so
// every waiter sees data requested after the invalidation. The fetch
// outlives ctx cancellation.
func (c *Client) start(ctx context.Context, key Key, fn fetchFunc, opts Options) <-chan singleflight.Result {
	id := key.id()
	c.mu.Lock()
	gen := c.gen
	c.entryLocked(key, opts)
	c.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	return c.flights.DoChan(fmt.Sprintf("%d/%s", gen, id), func() (any, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.acquireLocked(id)
		defer c.releaseLocked(id)

		for {
			if gen != c.gen {
				return nil, ErrCleared
			}
			e := c.entryLocked(key, opts)
			e.seq++
			seq := e.seq
			e.inflight++
			if !e.hasData {
				e.status = StatusLoading
			}
			c.notifyLocked(key)
			c.mu.Unlock()

			v, err := c.run(ctx, fn, opts)

			c.mu.Lock()
			e.inflight--
			if gen != c.gen {
				c.log.Debug("discard result from cleared generation", zap.Stringer("key", key))
				if err != nil {
					return nil, err
				}
				return nil, ErrCleared
			}
			c.notifyLocked(key)
			if seq <= e.applied {
				c.log.Debug("discard out-of-order result", zap.Stringer("key", key), zap.Uint64("seq", seq))
				return v, err
			}
			e.applied = seq
			if err != nil {
				e.err = err
				e.status = StatusError
			} else {
				e.data, e.hasData, e.err = v, true, nil
				e.status = StatusSuccess
				e.updatedAt = c.now()
			}
			if seq < e.minSeq {
				c.log.Debug("refetch after invalidation", zap.Stringer("key", key))
				continue
			}
			e.invalidated = false
			return v, err
		}
	})
}

// acquireLocked waits until no request for id is running in any
// generation, then claims id. c.mu is released while waiting.
func (c *Client) acquireLocked(id string) {
	for {
		done, ok := c.busy[id]
		if !ok {
			break
		}
		c.mu.Unlock()
		<-done
		c.mu.Lock()
	}
	c.busy[id] = make(chan struct{})
}

func (c *Client) releaseLocked(id string) {
	close(c.busy[id])
	delete(c.busy, id)
}

func (c *Client) run(ctx context.Context, fn fetchFunc, opts Options) (any, error) {
	if c.retries <= 0 || opts.Retry == RetryNever {
		return fn(ctx)
	}
	b := retry.WithMaxRetries(uint64(c.retries), retry.NewExponential(c.backoff))
	var out any
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			if errs.Transient(err) {
				c.log.Debug("retrying transient failure", zap.Error(err))
				return retry.RetryableError(err)
			}
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// snapshot is a consistent copy of an entry's observable state.
type snapshot struct {
	data        any
	hasData     bool
	err         error
	status      Status
	updatedAt   time.Time
	fetching    bool
	stale       bool
	invalidated bool
}

func (c *Client) snapshot(key Key, opts Options) snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entryLocked(key, opts)
	return snapshot{
		data:        e.data,
		hasData:     e.hasData,
		err:         e.err,
		status:      e.status,
		updatedAt:   e.updatedAt,
		fetching:    e.inflight > 0,
		stale:       c.staleLocked(e),
		invalidated: e.invalidated,
	}
}
