package clientcrypto

import (
	"bytes"
	"crypto/subtle"
	"os"
	"path/filepath"
	"testing"
)

func TestRand_LengthUniq(t *testing.T) {
	t.Parallel()
	const n = 48
	a, err := Rand(n)
	if err != nil {
		t.Fatalf("Rand: %v", err)
	}
	if len(a) != n {
		t.Fatalf("len=%d, want=%d", len(a), n)
	}
	b, _ := Rand(n)
	if bytes.Equal(a, b) {
		t.Fatalf("Rand produced equal slices")
	}
}

func TestDeriveKey_PurposeBound(t *testing.T) {
	t.Parallel()
	master, _ := Rand(KeyLen)
	k1, err := DeriveKey(master, "cookies")
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	k2, _ := DeriveKey(master, "cookies")
	if subtle.ConstantTimeCompare(k1, k2) != 1 {
		t.Fatalf("DeriveKey not deterministic")
	}
	k3, _ := DeriveKey(master, "other")
	if subtle.ConstantTimeCompare(k1, k3) != 0 {
		t.Fatalf("DeriveKey must change with purpose")
	}
	if len(k1) != KeyLen {
		t.Fatalf("len=%d", len(k1))
	}
}

func TestSealOpen(t *testing.T) {
	t.Parallel()
	key, _ := Rand(KeyLen)
	aad := []byte("http://localhost:8000")
	pt := []byte(`[{"Name":"sessionid","Value":"abc"}]`)

	blob, err := Seal(key, aad, pt)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Contains(blob, []byte("sessionid")) {
		t.Fatalf("plaintext visible in sealed blob")
	}
	out, err := Open(key, aad, blob)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(out, pt) {
		t.Fatalf("roundtrip mismatch")
	}

	if _, err := Open(key, []byte("http://elsewhere"), blob); err == nil {
		t.Fatalf("Open must fail on AAD mismatch")
	}
	other, _ := Rand(KeyLen)
	if _, err := Open(other, aad, blob); err == nil {
		t.Fatalf("Open must fail with wrong key")
	}
	if _, err := Open(key, aad, blob[:5]); err != ErrShort {
		t.Fatalf("want ErrShort, got %v", err)
	}
}

func TestLoadOrCreateKey(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "state", "key")

	k1, err := LoadOrCreateKey(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	st, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if st.Mode().Perm() != 0o600 {
		t.Fatalf("perm=%v", st.Mode().Perm())
	}
	k2, err := LoadOrCreateKey(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !bytes.Equal(k1, k2) {
		t.Fatalf("key changed between loads")
	}

	if err := os.WriteFile(path, []byte("short"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadOrCreateKey(path); err == nil {
		t.Fatalf("want error for malformed key file")
	}
}
