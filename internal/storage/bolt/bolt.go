// Package bolt persists session cookies in a BoltDB file, sealed so the
// file alone does not reveal a usable session.
package bolt

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/and161185/c3ds-console/internal/crypto/clientcrypto"
	"github.com/and161185/c3ds-console/internal/httpclient"
)

var _ httpclient.CookieStore = (*Store)(nil)

var bucketCookies = []byte("cookies")

const cookiePurpose = "c3ds session cookies v1"

type storedCookie struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Expires time.Time `json:"expires,omitempty"`
}

// Store keeps the cookies of one backend, identified by scope.
type Store struct {
	db    *bolt.DB
	key   []byte
	scope []byte
}

// New opens (or creates) the database at path. master is the at-rest key;
// scope binds stored cookies to one backend URL.
func New(path string, master []byte, scope string) (*Store, error) {
	key, err := clientcrypto.DeriveKey(master, cookiePurpose)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCookies)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, key: key, scope: []byte(scope)}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// LoadCookies returns the stored cookies. A blob that no longer opens
// (other key, other scope, corruption) is dropped and reported as empty.
func (s *Store) LoadCookies() ([]*http.Cookie, error) {
	var blob []byte
	if err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketCookies).Get(s.scope); v != nil {
			blob = append([]byte(nil), v...)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	if blob == nil {
		return nil, nil
	}
	plain, err := clientcrypto.Open(s.key, s.scope, blob)
	if err != nil {
		return nil, errors.Join(errors.New("stored cookies unreadable, discarded"), err, s.ClearCookies())
	}
	var stored []storedCookie
	if err := json.Unmarshal(plain, &stored); err != nil {
		return nil, err
	}
	out := make([]*http.Cookie, 0, len(stored))
	for _, c := range stored {
		out = append(out, &http.Cookie{Name: c.Name, Value: c.Value, Expires: c.Expires})
	}
	return out, nil
}

// SaveCookies replaces the stored cookies.
func (s *Store) SaveCookies(cookies []*http.Cookie) error {
	if len(cookies) == 0 {
		return s.ClearCookies()
	}
	stored := make([]storedCookie, 0, len(cookies))
	for _, c := range cookies {
		stored = append(stored, storedCookie{Name: c.Name, Value: c.Value, Expires: c.Expires})
	}
	plain, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	blob, err := clientcrypto.Seal(s.key, s.scope, plain)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCookies).Put(s.scope, blob)
	})
}

// ClearCookies forgets the cookies of this scope.
func (s *Store) ClearCookies() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCookies).Delete(s.scope)
	})
}
