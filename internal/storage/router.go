package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// BlobPrefix marks a location held by the remote blob store.
const BlobPrefix = "blob:"

// BlobResolver looks a remote blob up by key, normally through the blob cache.
type BlobResolver interface {
	Resolve(ctx context.Context, key string) ([]byte, bool, error)
}

// Router opens asset locations from local disk or the remote blob store.
type Router struct {
	local *Local
	blobs BlobResolver
}

func NewRouter(local *Local, blobs BlobResolver) *Router {
	return &Router{local: local, blobs: blobs}
}

func BlobLocation(key string) string {
	return BlobPrefix + key
}

// BlobKey reports the remote key of a location, if it is one.
func BlobKey(location string) (string, bool) {
	if !strings.HasPrefix(location, BlobPrefix) {
		return "", false
	}
	return strings.TrimPrefix(location, BlobPrefix), true
}

func (r *Router) Open(ctx context.Context, location string) (io.ReadCloser, int64, error) {
	key, remote := BlobKey(location)
	if !remote {
		return r.local.Open(location)
	}
	if r.blobs == nil {
		return nil, 0, fmt.Errorf("%w: no blob store configured", ErrUnavailable)
	}

	data, ok, err := r.blobs.Resolve(ctx, key)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, 0, err
		}
		return nil, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !ok {
		return nil, 0, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}
