package catalog

import (
	"context"

	"bookvault/internal/blobcache"
	"bookvault/internal/domain/content"
)

type ContentRepository interface {
	GetBook(ctx context.Context, id string) (*content.Book, error)
	GetProposal(ctx context.Context, id string) (*content.Proposal, error)
	IsMember(ctx context.Context, telegramID int64) (bool, error)
}

// BlobCache is the read-through cache in front of the remote blob store.
type BlobCache interface {
	ResolveMany(ctx context.Context, ids []string) (map[string][]byte, error)
	Put(id string, data []byte) error
	Stats() (blobcache.Stats, error)
	PurgeMisses() (int, error)
}

type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}
