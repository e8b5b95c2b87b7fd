// Package download saves certificate, key and firmware payloads to disk.
// Each payload is written to a temporary file in the destination
// directory and renamed into place only when complete.
package download

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/c3ds-console/internal/model"
)

// Kind is the downloadable artifact.
type Kind int

const (
	Certificate Kind = iota + 1
	PrivateKey
	Bundle
)

func (k Kind) String() string {
	switch k {
	case Certificate:
		return "certificate"
	case PrivateKey:
		return "private key"
	case Bundle:
		return "code bundle"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k Kind) suffix() string {
	switch k {
	case Certificate:
		return "_certificate.pem"
	case PrivateKey:
		return "_private.key"
	case Bundle:
		return "_ESP8266_code.zip"
	}
	return ".bin"
}

func (k Kind) mode() os.FileMode {
	if k == PrivateKey {
		return 0o600
	}
	return 0o644
}

// FileName is the saved name of k for a device.
func FileName(d model.Device, k Kind) string {
	base := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '_'
		}
		return r
	}, strings.TrimSpace(d.Name))
	if base == "" || base == "." || base == ".." {
		base = d.ID.String()
	}
	return base + k.suffix()
}

// Save writes data to dir/name atomically with the given mode.
func Save(dir, name string, data []byte, mode os.FileMode) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(dir, "."+name+".*.part")
	if err != nil {
		return "", err
	}
	clean := true
	defer func() {
		if clean {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Chmod(tmp.Name(), mode); err != nil {
		return "", err
	}
	dst := filepath.Join(dir, name)
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", err
	}
	clean = false
	return dst, nil
}

// Source fetches artifact payloads.
type Source interface {
	CertificatePEM(ctx context.Context, id uuid.UUID) ([]byte, error)
	PrivateKeyPEM(ctx context.Context, id uuid.UUID) ([]byte, error)
	CodeBundle(ctx context.Context, id uuid.UUID, req model.BundleRequest) ([]byte, error)
}

// Downloader fetches artifacts and saves them under Dir.
type Downloader struct {
	src Source
	dir string
	log *zap.Logger
}

// New returns a Downloader writing into dir.
func New(src Source, dir string, log *zap.Logger) *Downloader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Downloader{src: src, dir: dir, log: log}
}

// Certificate saves the device certificate.
func (d *Downloader) Certificate(ctx context.Context, dev model.Device) (string, error) {
	return d.fetch(ctx, dev, Certificate, func() ([]byte, error) { return d.src.CertificatePEM(ctx, dev.ID) })
}

// PrivateKey saves the device private key.
func (d *Downloader) PrivateKey(ctx context.Context, dev model.Device) (string, error) {
	return d.fetch(ctx, dev, PrivateKey, func() ([]byte, error) { return d.src.PrivateKeyPEM(ctx, dev.ID) })
}

// Bundle saves the firmware archive. Nothing is written when the backend
// refuses, including errs.ErrExpired for a closed download window.
func (d *Downloader) Bundle(ctx context.Context, dev model.Device, req model.BundleRequest) (string, error) {
	return d.fetch(ctx, dev, Bundle, func() ([]byte, error) { return d.src.CodeBundle(ctx, dev.ID, req) })
}

func (d *Downloader) fetch(ctx context.Context, dev model.Device, k Kind, get func() ([]byte, error)) (string, error) {
	data, err := get()
	if err != nil {
		return "", fmt.Errorf("download %s: %w", k, err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path, err := Save(d.dir, FileName(dev, k), data, k.mode())
	if err != nil {
		return "", fmt.Errorf("save %s: %w", k, err)
	}
	d.log.Info("saved", zap.String("kind", k.String()), zap.String("path", path), zap.Int("bytes", len(data)))
	return path, nil
}
