package archive

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/c3ds-console/internal/errs"
	"github.com/and161185/c3ds-console/internal/model"
	"github.com/and161185/c3ds-console/internal/query"
	"github.com/and161185/c3ds-console/internal/session"
)

type fakeRepo struct {
	mu     sync.Mutex
	latest int64
	ids    []int64
}

var _ Repository = (*fakeRepo)(nil)

func (r *fakeRepo) SaveMessages(_ context.Context, ms []model.Message) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range ms {
		r.ids = append(r.ids, m.ID)
	}
	return len(ms), nil
}

func (r *fakeRepo) LatestID(context.Context) (int64, error) { return r.latest, nil }

func (r *fakeRepo) saved() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.ids...)
}

type fakeFeed struct {
	mu    sync.Mutex
	pages [][]model.Message
	err   error
	calls int
}

var _ Feed = (*fakeFeed)(nil)

func (f *fakeFeed) MessagesQuery(mf model.MessageFilter) query.Query[[]model.Message] {
	return query.Query[[]model.Message]{
		Key: query.K("messages", string(mf.TimeWindow)),
		Fn: func(context.Context) ([]model.Message, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.calls++
			if f.err != nil {
				return nil, f.err
			}
			p := f.pages[0]
			if len(f.pages) > 1 {
				f.pages = f.pages[1:]
			}
			return p, nil
		},
	}
}

func (f *fakeFeed) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeFeed) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func ids(xs ...int64) []model.Message {
	out := make([]model.Message, len(xs))
	for i, x := range xs {
		out[i] = model.Message{ID: x, Type: model.MessageHeartbeat}
	}
	return out
}

func TestSync_SavesOnlyNewerOldestFirst(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	a := New(query.New(), &fakeFeed{}, repo, model.DefaultMessageFilter())
	a.lastID = 5

	n, err := a.Sync(context.Background(), ids(8, 7, 5, 3))
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, []int64{7, 8}, repo.saved())

	n, err = a.Sync(context.Background(), ids(8, 7))
	require.NoError(t, err)
	require.Zero(t, n)
	require.Equal(t, 2, a.Saved())
}

func TestRun_ArchivesEachPoll(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{latest: 5}
	feed := &fakeFeed{pages: [][]model.Message{ids(7, 6, 5, 4), ids(9, 8, 7)}}
	cache := query.New(query.WithRetry(0, 0), query.WithLogger(zaptest.NewLogger(t)))
	a := New(cache, feed, repo, model.DefaultMessageFilter(), WithInterval(20*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool { return len(repo.saved()) == 4 }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, []int64{6, 7, 8, 9}, repo.saved())

	cancel()
	require.NoError(t, <-done)
}

func TestRun_ReloginOnUnauthorized(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	feed := &fakeFeed{pages: [][]model.Message{ids(1)}}
	feed.setErr(&errs.APIError{Status: 401, Message: "Authentication credentials were not provided."})
	cache := query.New(query.WithRetry(0, 0))

	var relogins atomic.Int32
	a := New(cache, feed, repo, model.DefaultMessageFilter(),
		WithInterval(time.Hour),
		WithRelogin(func(context.Context) error {
			relogins.Add(1)
			feed.setErr(nil)
			return nil
		}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = a.Run(ctx) }()

	require.Eventually(t, func() bool { return len(repo.saved()) == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, int32(1), relogins.Load())
}

type fakeSession struct {
	authed  atomic.Bool
	changes chan session.Snapshot
}

var _ Session = (*fakeSession)(nil)

func (s *fakeSession) IsAuthenticated() bool { return s.authed.Load() }

func (s *fakeSession) Changes() (<-chan session.Snapshot, func()) { return s.changes, func() {} }

func (s *fakeSession) expire() {
	s.authed.Store(false)
	s.changes <- session.Snapshot{State: session.Unauthenticated}
}

func TestRun_ReloginWaitsForExpiry(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	feed := &fakeFeed{pages: [][]model.Message{ids(1)}}
	feed.setErr(&errs.APIError{Status: 401})
	cache := query.New(query.WithRetry(0, 0))
	sess := &fakeSession{changes: make(chan session.Snapshot, 1)}
	sess.authed.Store(true)

	var expiredFirst atomic.Bool
	a := New(cache, feed, repo, model.DefaultMessageFilter(),
		WithInterval(time.Hour),
		WithSession(sess),
		WithLogger(zaptest.NewLogger(t)),
		WithRelogin(func(context.Context) error {
			expiredFirst.Store(!sess.IsAuthenticated())
			feed.setErr(nil)
			return nil
		}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = a.Run(ctx) }()

	require.Eventually(t, func() bool { return feed.callCount() >= 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	require.Empty(t, repo.saved(), "no relogin before the session expires")
	sess.expire()

	require.Eventually(t, func() bool { return len(repo.saved()) == 1 }, 2*time.Second, 5*time.Millisecond)
	require.True(t, expiredFirst.Load())
}
