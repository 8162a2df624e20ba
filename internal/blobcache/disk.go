package blobcache

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	hitSuffix  = ".hit"
	missSuffix = ".miss"

	// longer encoded keys are hashed to stay under common file name limits
	maxEncodedKey = 200
)

type diskState int

const (
	diskUnknown diskState = iota
	diskHit
	diskMiss
)

// diskTier mirrors resolutions on disk, one file per key. A hit file holds the
// payload as base64 text, a miss marker is an empty file. Nothing expires.
type diskTier struct {
	dir string
}

func newDiskTier(dir string) (*diskTier, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &diskTier{dir: dir}, nil
}

func fileKey(key string) string {
	enc := base64.RawURLEncoding.EncodeToString([]byte(key))
	if len(enc) <= maxEncodedKey {
		return enc
	}
	sum := sha256.Sum256([]byte(key))
	return "sha256-" + hex.EncodeToString(sum[:])
}

func (d *diskTier) path(key, suffix string) string {
	return filepath.Join(d.dir, fileKey(key)+suffix)
}

// load checks the hit file first so a stale miss marker never shadows a hit.
func (d *diskTier) load(key string) ([]byte, diskState, error) {
	raw, err := os.ReadFile(d.path(key, hitSuffix))
	switch {
	case err == nil:
		data, decErr := base64.StdEncoding.DecodeString(string(raw))
		if decErr != nil {
			_ = os.Remove(d.path(key, hitSuffix))
			return nil, diskUnknown, fmt.Errorf("corrupt hit file for %q: %w", key, decErr)
		}
		return data, diskHit, nil
	case !errors.Is(err, fs.ErrNotExist):
		return nil, diskUnknown, fmt.Errorf("read hit file: %w", err)
	}

	_, err = os.Stat(d.path(key, missSuffix))
	switch {
	case err == nil:
		return nil, diskMiss, nil
	case errors.Is(err, fs.ErrNotExist):
		return nil, diskUnknown, nil
	default:
		return nil, diskUnknown, fmt.Errorf("stat miss marker: %w", err)
	}
}

func (d *diskTier) storeHit(key string, data []byte) error {
	encoded := base64.StdEncoding.EncodeToString(data)
	if err := d.writeAtomic(d.path(key, hitSuffix), []byte(encoded)); err != nil {
		return err
	}
	if err := os.Remove(d.path(key, missSuffix)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove miss marker: %w", err)
	}
	return nil
}

func (d *diskTier) storeMiss(key string) error {
	return d.writeAtomic(d.path(key, missSuffix), nil)
}

// writeAtomic writes through a temp file and renames it into place, so
// concurrent writers for one key only ever race on the rename.
func (d *diskTier) writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(d.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename cache file: %w", err)
	}
	return nil
}

func (d *diskTier) purgeMisses() (int, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return 0, fmt.Errorf("read cache dir: %w", err)
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), missSuffix) {
			continue
		}
		if err := os.Remove(filepath.Join(d.dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("remove %s: %w", e.Name(), err)
		}
		removed++
	}
	return removed, nil
}

func (d *diskTier) count() (hits, misses int, err error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return 0, 0, fmt.Errorf("read cache dir: %w", err)
	}
	for _, e := range entries {
		switch {
		case e.IsDir():
		case strings.HasSuffix(e.Name(), hitSuffix):
			hits++
		case strings.HasSuffix(e.Name(), missSuffix):
			misses++
		}
	}
	return hits, misses, nil
}
