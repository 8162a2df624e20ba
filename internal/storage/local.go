// Package storage keeps asset bytes: ciphertext and plain covers on local
// disk, and covers in the remote blob store when one is configured.
package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound    = errors.New("asset bytes not found")
	ErrUnavailable = errors.New("storage unavailable")
	ErrBadLocation = errors.New("invalid asset location")
)

// Local stores files under baseDir in <kind>/<yyyy>/<mm>/ directories.
type Local struct {
	baseDir string
	now     func() time.Time
}

func NewLocal(baseDir string) (*Local, error) {
	if baseDir == "" {
		return nil, errors.New("storage: base dir is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &Local{baseDir: baseDir, now: time.Now}, nil
}

// Save writes data to a new file and returns its path relative to the base
// directory, with forward slashes.
func (l *Local) Save(kind, ext string, data []byte) (string, error) {
	now := l.now()
	relDir := fmt.Sprintf("%s/%d/%02d", sanitizeSegment(kind), now.Year(), now.Month())
	absDir := filepath.Join(l.baseDir, filepath.FromSlash(relDir))
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create asset directory: %w", err)
	}

	relPath := relDir + "/" + uuid.New().String() + ext
	absPath := filepath.Join(l.baseDir, filepath.FromSlash(relPath))
	if err := os.WriteFile(absPath, data, 0o600); err != nil {
		_ = os.Remove(absPath)
		return "", fmt.Errorf("failed to write asset: %w", err)
	}
	return relPath, nil
}

// Open returns the file and its size.
func (l *Local) Open(relPath string) (io.ReadCloser, int64, error) {
	abs, err := l.resolve(relPath)
	if err != nil {
		return nil, 0, err
	}

	f, err := os.Open(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return f, info.Size(), nil
}

func (l *Local) Remove(relPath string) error {
	abs, err := l.resolve(relPath)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (l *Local) resolve(relPath string) (string, error) {
	if relPath == "" {
		return "", ErrNotFound
	}
	clean := filepath.Clean(filepath.FromSlash(relPath))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", ErrBadLocation
	}
	return filepath.Join(l.baseDir, clean), nil
}

func sanitizeSegment(name string) string {
	name = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return '_'
	}, strings.ToLower(name))
	if name == "" {
		return "misc"
	}
	return name
}
