// Package archive copies the polled message feed into durable storage.
package archive

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/c3ds-console/internal/errs"
	"github.com/and161185/c3ds-console/internal/model"
	"github.com/and161185/c3ds-console/internal/query"
	"github.com/and161185/c3ds-console/internal/session"
)

// expiryWait bounds how long a relogin waits for the rejected session to
// be expired locally.
const expiryWait = 5 * time.Second

// Repository stores messages.
type Repository interface {
	SaveMessages(ctx context.Context, ms []model.Message) (int, error)
	LatestID(ctx context.Context) (int64, error)
}

// Feed provides the message query for a filter.
type Feed interface {
	MessagesQuery(f model.MessageFilter) query.Query[[]model.Message]
}

// Session reports the local session state.
type Session interface {
	IsAuthenticated() bool
	Changes() (<-chan session.Snapshot, func())
}

// Archiver watches one feed filter through the cache and saves every
// message it has not seen.
type Archiver struct {
	cache    *query.Client
	feed     Feed
	repo     Repository
	filter   model.MessageFilter
	interval time.Duration
	relogin  func(ctx context.Context) error
	session  Session
	log      *zap.Logger

	mu     sync.Mutex
	lastID int64
	saved  int
}

// Option configures an Archiver.
type Option func(*Archiver)

// WithInterval overrides the feed polling interval.
func WithInterval(d time.Duration) Option { return func(a *Archiver) { a.interval = d } }

// WithRelogin sets the hook run when the backend rejects the session.
func WithRelogin(fn func(ctx context.Context) error) Option {
	return func(a *Archiver) { a.relogin = fn }
}

// WithSession makes a relogin wait until the rejected session has left
// the authenticated state, so a late expiry cannot drop the new cookies.
func WithSession(s Session) Option { return func(a *Archiver) { a.session = s } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(a *Archiver) { a.log = l } }

// New returns an Archiver for filter f.
func New(cache *query.Client, feed Feed, repo Repository, f model.MessageFilter, opts ...Option) *Archiver {
	a := &Archiver{cache: cache, feed: feed, repo: repo, filter: f.Normalize(), log: zap.NewNop()}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Saved returns how many messages were stored since start.
func (a *Archiver) Saved() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.saved
}

// Run archives until ctx is done.
func (a *Archiver) Run(ctx context.Context) error {
	last, err := a.repo.LatestID(ctx)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.lastID = last
	a.mu.Unlock()
	a.log.Info("archiver started", zap.Int64("after_id", last), zap.String("window", string(a.filter.TimeWindow)))

	q := a.feed.MessagesQuery(a.filter)
	if a.interval > 0 {
		q.Options.RefetchInterval = a.interval
		q.Options.StaleTime = a.interval / 2
	}
	obs := query.Watch(ctx, a.cache, q)
	defer obs.Close()

	var seen time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case r, ok := <-obs.Updates():
			if !ok {
				return nil
			}
			if r.Err != nil && r.Status == query.StatusError && !r.IsFetching {
				a.onError(ctx, obs, r.Err)
				continue
			}
			if !r.HasData || !r.UpdatedAt.After(seen) {
				continue
			}
			seen = r.UpdatedAt
			if _, err := a.Sync(ctx, r.Data); err != nil && ctx.Err() == nil {
				a.log.Warn("archive batch failed", zap.Error(err))
			}
		}
	}
}

func (a *Archiver) onError(ctx context.Context, obs *query.Observer[[]model.Message], err error) {
	if !errors.Is(err, errs.ErrUnauthorized) || a.relogin == nil {
		a.log.Warn("feed poll failed", zap.Error(err))
		return
	}
	a.log.Info("session rejected, logging in again")
	a.awaitExpiry(ctx)
	if err := a.relogin(ctx); err != nil {
		a.log.Error("relogin failed", zap.Error(err))
		return
	}
	obs.Refetch(ctx)
}

func (a *Archiver) awaitExpiry(ctx context.Context) {
	if a.session == nil {
		return
	}
	changes, stop := a.session.Changes()
	defer stop()
	if !a.session.IsAuthenticated() {
		return
	}
	t := time.NewTimer(expiryWait)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.log.Warn("session still authenticated after rejection")
			return
		case snap := <-changes:
			if !snap.IsAuthenticated() {
				return
			}
		}
	}
}

// Sync saves the messages of ms newer than the last archived one, oldest
// first, and returns how many were new.
func (a *Archiver) Sync(ctx context.Context, ms []model.Message) (int, error) {
	a.mu.Lock()
	last := a.lastID
	a.mu.Unlock()

	fresh := make([]model.Message, 0, len(ms))
	for _, m := range ms {
		if m.ID > last {
			fresh = append(fresh, m)
		}
	}
	if len(fresh) == 0 {
		return 0, nil
	}
	sort.Slice(fresh, func(i, j int) bool { return fresh[i].ID < fresh[j].ID })

	n, err := a.repo.SaveMessages(ctx, fresh)
	if err != nil {
		return 0, err
	}
	a.mu.Lock()
	if top := fresh[len(fresh)-1].ID; top > a.lastID {
		a.lastID = top
	}
	a.saved += n
	a.mu.Unlock()
	a.log.Info("archived messages", zap.Int("new", n), zap.Int64("last_id", fresh[len(fresh)-1].ID))
	return n, nil
}
