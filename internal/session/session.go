// Package session is the authentication state machine derived from the
// cached identity query.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/and161185/c3ds-console/internal/errs"
	"github.com/and161185/c3ds-console/internal/model"
	"github.com/and161185/c3ds-console/internal/nav"
	"github.com/and161185/c3ds-console/internal/query"
)

// State of the session.
type State int

const (
	Unknown State = iota
	Authenticated
	Unauthenticated
)

func (s State) String() string {
	switch s {
	case Unknown:
		return "unknown"
	case Authenticated:
		return "authenticated"
	case Unauthenticated:
		return "unauthenticated"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Snapshot is an immutable view of the session.
type Snapshot struct {
	State State
	User  model.User
}

func (s Snapshot) IsAuthenticated() bool { return s.State == Authenticated }
func (s Snapshot) IsParticipant() bool   { return s.IsAuthenticated() && s.User.IsParticipant() }
func (s Snapshot) IsAdmin() bool         { return s.IsAuthenticated() && s.User.IsAdmin() }

// Backend is the session resource.
type Backend interface {
	MeQuery() query.Query[model.User]
	Login(ctx context.Context, cr model.Credentials) error
	Logout(ctx context.Context) error
	Register(ctx context.Context, r model.Registration) error
}

// CookieJar forgets persisted credentials.
type CookieJar interface {
	Clear() error
}

// Store owns the session state. Create one per application.
type Store struct {
	api     Backend
	cache   *query.Client
	nav     nav.Navigator
	cookies CookieJar
	log     *zap.Logger

	mu       sync.Mutex
	snap     Snapshot
	resolved chan struct{}
	subs     map[chan Snapshot]struct{}
}

// New creates a store in the Unknown state. cookies may be nil.
func New(api Backend, cache *query.Client, n nav.Navigator, cookies CookieJar, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		api:      api,
		cache:    cache,
		nav:      n,
		cookies:  cookies,
		log:      log,
		resolved: make(chan struct{}),
		subs:     map[chan Snapshot]struct{}{},
	}
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *Store) State() State          { return s.Snapshot().State }
func (s *Store) User() model.User      { return s.Snapshot().User }
func (s *Store) IsAuthenticated() bool { return s.Snapshot().IsAuthenticated() }
func (s *Store) IsParticipant() bool   { return s.Snapshot().IsParticipant() }
func (s *Store) IsAdmin() bool         { return s.Snapshot().IsAdmin() }

// Wait blocks while the state is Unknown.
func (s *Store) Wait(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	ch := s.resolved
	s.mu.Unlock()
	select {
	case <-ch:
		return s.Snapshot(), nil
	case <-ctx.Done():
		return s.Snapshot(), ctx.Err()
	}
}

// Changes subscribes to state changes. Only the latest snapshot is kept
// for a slow reader. Call the returned func to unsubscribe.
func (s *Store) Changes() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()
	return ch, func() {
		s.mu.Lock()
		delete(s.subs, ch)
		s.mu.Unlock()
	}
}

// Check resolves the identity through the cache. Fresh cached identity is
// reused; otherwise the backend is asked.
func (s *Store) Check(ctx context.Context) (Snapshot, error) {
	u, err := query.Get(ctx, s.cache, s.api.MeQuery())
	return s.resolve(ctx, u, err)
}

// Refresh forces a fresh identity check.
func (s *Store) Refresh(ctx context.Context) (Snapshot, error) {
	u, err := query.Fetch(ctx, s.cache, s.api.MeQuery())
	return s.resolve(ctx, u, err)
}

func (s *Store) resolve(ctx context.Context, u model.User, err error) (Snapshot, error) {
	switch {
	case err == nil && u.Username != "":
		return s.set(Snapshot{State: Authenticated, User: u}), nil
	case err == nil:
		return s.set(Snapshot{State: Unauthenticated}), nil
	case ctx.Err() != nil:
		return s.Snapshot(), ctx.Err()
	case errors.Is(err, query.ErrCleared):
		return s.Snapshot(), nil
	}
	if !errors.Is(err, errs.ErrUnauthorized) {
		s.log.Warn("identity check failed", zap.Error(err))
	}
	return s.set(Snapshot{State: Unauthenticated}), nil
}

// Login opens a session, re-checks the identity and, once authenticated,
// navigates to the dashboard. Backend rejections are returned unchanged.
func (s *Store) Login(ctx context.Context, cr model.Credentials) (Snapshot, error) {
	if err := s.api.Login(ctx, cr); err != nil {
		return s.Snapshot(), err
	}
	s.cache.Invalidate(s.api.MeQuery().Key)
	snap, err := s.Refresh(ctx)
	if err != nil {
		return snap, err
	}
	if !snap.IsAuthenticated() {
		return snap, fmt.Errorf("login accepted but no session was established: %w", errs.ErrUnauthorized)
	}
	s.log.Info("logged in", zap.String("user", snap.User.Username))
	s.nav.Navigate(nav.Dashboard)
	return snap, nil
}

// Logout closes the session, drops every cached entry and persisted
// cookie, and navigates home. The backend call may fail; local state is
// cleared regardless.
func (s *Store) Logout(ctx context.Context) {
	if err := s.api.Logout(ctx); err != nil {
		s.log.Warn("logout request failed", zap.Error(err))
	}
	s.reset()
	s.nav.Navigate(nav.Home)
}

// Expire handles a lost session. It clears all local state and reports
// whether the session had been authenticated.
func (s *Store) Expire() bool {
	was := s.State()
	s.reset()
	if was == Authenticated {
		s.log.Info("session expired")
	}
	return was == Authenticated
}

// Register creates an account without logging in.
func (s *Store) Register(ctx context.Context, r model.Registration) error {
	return s.api.Register(ctx, r)
}

func (s *Store) reset() {
	s.cache.Clear()
	if s.cookies != nil {
		if err := s.cookies.Clear(); err != nil {
			s.log.Warn("clear persisted cookies", zap.Error(err))
		}
	}
	s.set(Snapshot{State: Unauthenticated})
}

func (s *Store) set(snap Snapshot) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := s.snap != snap
	s.snap = snap
	if snap.State != Unknown {
		select {
		case <-s.resolved:
		default:
			close(s.resolved)
		}
	}
	if changed {
		for ch := range s.subs {
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
	return snap
}
