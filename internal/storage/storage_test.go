package storage

import (
	"context"
	"errors"
	"io"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResolver struct {
	blobs map[string][]byte
	err   error
}

func (s stubResolver) Resolve(_ context.Context, key string) ([]byte, bool, error) {
	if s.err != nil {
		return nil, false, s.err
	}
	b, ok := s.blobs[key]
	return b, ok, nil
}

func TestLocal_SaveOpenRemove(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	l.now = func() time.Time { return time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC) }

	rel, err := l.Save("Audiobook", ".enc", []byte("ciphertext"))
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^audiobook/2025/03/[0-9a-f-]{36}\.enc$`), rel)

	rc, size, err := l.Open(rel)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, int64(10), size)
	assert.Equal(t, "ciphertext", string(body))

	require.NoError(t, l.Remove(rel))
	_, _, err = l.Open(rel)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocal_RejectsEscapingPaths(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	_, _, err = l.Open("../secret")
	assert.ErrorIs(t, err, ErrBadLocation)
	_, _, err = l.Open("")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRouter_Open(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	r := NewRouter(l, stubResolver{blobs: map[string][]byte{"covers/1": []byte("img")}})

	rc, size, err := r.Open(ctx, BlobLocation("covers/1"))
	require.NoError(t, err)
	body, _ := io.ReadAll(rc)
	assert.Equal(t, "img", string(body))
	assert.Equal(t, int64(3), size)

	_, _, err = r.Open(ctx, BlobLocation("covers/2"))
	assert.ErrorIs(t, err, ErrNotFound)

	r = NewRouter(l, stubResolver{err: errors.New("down")})
	_, _, err = r.Open(ctx, BlobLocation("covers/1"))
	assert.ErrorIs(t, err, ErrUnavailable)

	r = NewRouter(l, nil)
	_, _, err = r.Open(ctx, BlobLocation("covers/1"))
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestBlobKey(t *testing.T) {
	key, ok := BlobKey("blob:abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", key)

	_, ok = BlobKey("book/2025/01/x.enc")
	assert.False(t, ok)
}
