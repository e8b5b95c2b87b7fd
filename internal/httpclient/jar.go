package httpclient

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
)

// CookieStore persists session cookies between process runs.
type CookieStore interface {
	LoadCookies() ([]*http.Cookie, error)
	SaveCookies([]*http.Cookie) error
	ClearCookies() error
}

// Jar is an http.CookieJar that mirrors the backend's cookies into a
// CookieStore so a login survives restarts of the CLI.
type Jar struct {
	mu      sync.Mutex
	inner   *cookiejar.Jar
	expires map[string]time.Time
	base    *url.URL
	store   CookieStore
	log     *zap.Logger
}

var _ http.CookieJar = (*Jar)(nil)

// NewJar creates a jar; store may be nil for a memory-only jar.
func NewJar(store CookieStore, log *zap.Logger) (*Jar, error) {
	inner, err := newInner()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Jar{inner: inner, expires: map[string]time.Time{}, store: store, log: log}, nil
}

func newInner() (*cookiejar.Jar, error) {
	return cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
}

// Restore binds the jar to base and loads persisted cookies for it.
func (j *Jar) Restore(base *url.URL) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.base = base
	if j.store == nil {
		return nil
	}
	saved, err := j.store.LoadCookies()
	if err != nil {
		return err
	}
	now := time.Now()
	live := make([]*http.Cookie, 0, len(saved))
	for _, c := range saved {
		if !c.Expires.IsZero() && c.Expires.Before(now) {
			continue
		}
		live = append(live, &http.Cookie{Name: c.Name, Value: c.Value, Path: "/", Expires: c.Expires})
		if !c.Expires.IsZero() {
			j.expires[c.Name] = c.Expires
		}
	}
	j.inner.SetCookies(base, live)
	return nil
}

// SetCookies implements http.CookieJar.
func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.inner.SetCookies(u, cookies)
	now := time.Now()
	for _, c := range cookies {
		switch {
		case c.MaxAge < 0:
			delete(j.expires, c.Name)
		case c.MaxAge > 0:
			j.expires[c.Name] = now.Add(time.Duration(c.MaxAge) * time.Second)
		case !c.Expires.IsZero():
			j.expires[c.Name] = c.Expires
		}
	}
	j.persistLocked()
}

// Cookies implements http.CookieJar.
func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.inner.Cookies(u)
}

// Clear drops every cookie from memory and from the store.
func (j *Jar) Clear() error {
	inner, err := newInner()
	if err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.inner = inner
	j.expires = map[string]time.Time{}
	if j.store == nil {
		return nil
	}
	return j.store.ClearCookies()
}

func (j *Jar) persistLocked() {
	if j.store == nil || j.base == nil {
		return
	}
	current := j.inner.Cookies(j.base)
	out := make([]*http.Cookie, 0, len(current))
	for _, c := range current {
		out = append(out, &http.Cookie{Name: c.Name, Value: c.Value, Expires: j.expires[c.Name]})
	}
	if err := j.store.SaveCookies(out); err != nil {
		j.log.Warn("persist session cookies", zap.Error(err))
	}
}
