// Package app wires the console: one cache, one session store and one
// navigator per process, plus the listener that turns transport 401s into
// a single redirect to the login route.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/and161185/c3ds-console/internal/api"
	"github.com/and161185/c3ds-console/internal/config"
	"github.com/and161185/c3ds-console/internal/crypto/clientcrypto"
	"github.com/and161185/c3ds-console/internal/download"
	"github.com/and161185/c3ds-console/internal/httpclient"
	"github.com/and161185/c3ds-console/internal/nav"
	"github.com/and161185/c3ds-console/internal/query"
	"github.com/and161185/c3ds-console/internal/session"
	"github.com/and161185/c3ds-console/internal/storage/bolt"
)

// ErrCrashed is returned by a command that panicked.
var ErrCrashed = errors.New("unexpected failure")

// App is the application root.
type App struct {
	Config    *config.Config
	Log       *zap.Logger
	HTTP      *httpclient.Client
	API       *api.Client
	Cache     *query.Client
	Session   *session.Store
	Nav       *nav.Router
	Downloads *download.Downloader

	store   *bolt.Store
	persist bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// Option configures New.
type Option func(*App)

// WithLogger sets the root logger.
func WithLogger(l *zap.Logger) Option { return func(a *App) { a.Log = l } }

// Ephemeral keeps cookies in memory only.
func Ephemeral() Option { return func(a *App) { a.persist = false } }

// New builds the object graph from cfg. Nothing runs until Start.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{Config: cfg, Log: zap.NewNop(), persist: true}
	for _, o := range opts {
		o(a)
	}

	var store httpclient.CookieStore
	if a.persist {
		master, err := clientcrypto.LoadOrCreateKey(cfg.KeyPath())
		if err != nil {
			return nil, fmt.Errorf("load master key: %w", err)
		}
		a.store, err = bolt.New(cfg.CookiePath(), master, strings.TrimSuffix(cfg.API.BaseURL, "/"))
		if err != nil {
			return nil, fmt.Errorf("open session store: %w", err)
		}
		store = a.store
	}

	jar, err := httpclient.NewJar(store, a.Log.Named("jar"))
	if err != nil {
		a.closeStore()
		return nil, err
	}
	a.HTTP, err = httpclient.New(cfg.API.BaseURL, cfg.API.Timeout,
		httpclient.WithLogger(a.Log.Named("http")),
		httpclient.WithJar(jar),
		httpclient.WithPrefix(cfg.API.Prefix),
		httpclient.WithStrictCSRF(cfg.CSRF.Strict),
	)
	if err != nil {
		a.closeStore()
		return nil, err
	}

	a.API = api.New(a.HTTP)
	a.Cache = query.New(
		query.WithLogger(a.Log.Named("cache")),
		query.WithRetry(cfg.Retries(), cfg.Retry.Base),
	)
	a.Nav = nav.NewRouter(nav.Home, a.Log.Named("nav"))
	a.Session = session.New(a.API, a.Cache, a.Nav, jar, a.Log.Named("session"))
	a.Downloads = download.New(a.API, cfg.Download.Dir, a.Log.Named("download"))
	return a, nil
}

// Start runs cache GC and the unauthorized listener until Close.
func (a *App) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		a.Cache.Run(ctx)
	}()
	go func() {
		defer a.wg.Done()
		a.listen(ctx)
	}()
}

// Close stops background work, handles events still queued and releases
// the cookie store.
func (a *App) Close() error {
	var err error
	a.once.Do(func() {
		if a.cancel != nil {
			a.cancel()
		}
		a.wg.Wait()
		a.drain()
		err = a.closeStore()
	})
	return err
}

func (a *App) listen(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-a.HTTP.Events():
			a.handle(ev)
		}
	}
}

func (a *App) drain() {
	for {
		select {
		case ev := <-a.HTTP.Events():
			a.handle(ev)
		default:
			return
		}
	}
}

// handle applies the single policy for transport events. A 401 on an auth
// endpoint while signed out only means "no session", and once the session
// is known to be gone further 401s change nothing. Any other 401 ends the
// session and sends the user to the login route.
func (a *App) handle(ev httpclient.Event) {
	if ev.Kind != httpclient.EventUnauthorized {
		return
	}
	state := a.Session.State()
	if state == session.Unauthenticated ||
		(strings.HasPrefix(ev.Path, "/auth/") && state != session.Authenticated) {
		a.Log.Debug("unauthorized while signed out", zap.String("path", ev.Path))
		return
	}
	a.Log.Info("session rejected by backend", zap.String("method", ev.Method), zap.String("path", ev.Path))
	a.Session.Expire()
	if a.Nav.Current() != nav.Login {
		a.Nav.Navigate(nav.Login)
	}
}

func (a *App) closeStore() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}

// Recover is the top-level error boundary of a command. Deferred with a
// pointer to the command's error, it logs a panic with its stack, prints a
// generic notice to w and sets *errp to ErrCrashed.
func Recover(log *zap.Logger, w io.Writer, errp *error) {
	r := recover()
	if r == nil {
		return
	}
	log.Error("command panicked", zap.Any("panic", r), zap.Stack("stack"))
	if w == nil {
		w = os.Stderr
	}
	fmt.Fprintln(w, "Something went wrong. Please try again.")
	if errp != nil {
		*errp = ErrCrashed
	}
}
