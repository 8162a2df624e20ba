// Package blobstore holds clients for the remote store covers may live in.
package blobstore

import (
	"context"
	"errors"
	"strings"
)

var ErrInvalidKey = errors.New("invalid blob key")

// Store fetches blobs by key in batches, accepts new ones and deletes them.
// Deleting an absent key is not an error.
type Store interface {
	FetchMany(ctx context.Context, keys []string) (map[string][]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
}

// ValidateKey rejects keys that could escape a bucket prefix or directory.
func ValidateKey(key string) error {
	if key == "" || len(key) > 512 {
		return ErrInvalidKey
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return ErrInvalidKey
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return ErrInvalidKey
		}
	}
	return nil
}
