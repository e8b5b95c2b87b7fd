package httpclient

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memStore struct {
	saved   []*http.Cookie
	cleared int
}

var _ CookieStore = (*memStore)(nil)

func (m *memStore) LoadCookies() ([]*http.Cookie, error) { return m.saved, nil }
func (m *memStore) SaveCookies(c []*http.Cookie) error  { m.saved = c; return nil }
func (m *memStore) ClearCookies() error                 { m.saved = nil; m.cleared++; return nil }

func cookieNames(cs []*http.Cookie) map[string]string {
	out := map[string]string{}
	for _, c := range cs {
		out[c.Name] = c.Value
	}
	return out
}

func TestJar_PersistsAndRestores(t *testing.T) {
	t.Parallel()

	base, _ := url.Parse("http://backend.test")
	store := &memStore{}

	j, err := NewJar(store, nil)
	require.NoError(t, err)
	require.NoError(t, j.Restore(base))
	j.SetCookies(base, []*http.Cookie{
		{Name: "sessionid", Value: "s1", Path: "/", MaxAge: 3600},
		{Name: CSRFCookie, Value: "c1", Path: "/"},
	})
	require.Len(t, store.saved, 2)

	again, err := NewJar(store, nil)
	require.NoError(t, err)
	require.NoError(t, again.Restore(base))
	require.Equal(t, map[string]string{"sessionid": "s1", CSRFCookie: "c1"}, cookieNames(again.Cookies(base)))
}

func TestJar_RestoreSkipsExpired(t *testing.T) {
	t.Parallel()

	base, _ := url.Parse("http://backend.test")
	store := &memStore{saved: []*http.Cookie{
		{Name: "sessionid", Value: "old", Expires: time.Now().Add(-time.Hour)},
		{Name: CSRFCookie, Value: "c1"},
	}}
	j, err := NewJar(store, nil)
	require.NoError(t, err)
	require.NoError(t, j.Restore(base))
	require.Equal(t, map[string]string{CSRFCookie: "c1"}, cookieNames(j.Cookies(base)))
}

func TestJar_DeletionAndClear(t *testing.T) {
	t.Parallel()

	base, _ := url.Parse("http://backend.test")
	store := &memStore{}
	j, err := NewJar(store, nil)
	require.NoError(t, err)
	require.NoError(t, j.Restore(base))

	j.SetCookies(base, []*http.Cookie{{Name: "sessionid", Value: "s1", Path: "/"}})
	j.SetCookies(base, []*http.Cookie{{Name: "sessionid", Value: "", Path: "/", MaxAge: -1}})
	require.Empty(t, j.Cookies(base))
	require.Empty(t, store.saved)

	j.SetCookies(base, []*http.Cookie{{Name: "sessionid", Value: "s2", Path: "/"}})
	require.NoError(t, j.Clear())
	require.Empty(t, j.Cookies(base))
	require.Equal(t, 1, store.cleared)
}
