package query

import "strings"

// Key identifies a cached resource: the resource path first, then any
// serialized parameters. Invalidation matches keys by prefix.
type Key []string

// K builds a Key from parts.
func K(parts ...string) Key { return Key(parts) }

// With returns a new key with parts appended; k is never modified.
func (k Key) With(parts ...string) Key {
	out := make(Key, 0, len(k)+len(parts))
	out = append(out, k...)
	return append(out, parts...)
}

// HasPrefix reports whether p is a leading sub-sequence of k.
func (k Key) HasPrefix(p Key) bool {
	if len(p) > len(k) {
		return false
	}
	for i := range p {
		if k[i] != p[i] {
			return false
		}
	}
	return true
}

func (k Key) String() string { return strings.Join(k, "/") }

func (k Key) id() string { return strings.Join(k, "\x1f") }
