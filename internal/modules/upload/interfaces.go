package upload

import (
	"context"

	"bookvault/internal/domain/content"
	"bookvault/internal/envelope"
)

type ContentRepository interface {
	CreateBook(ctx context.Context, b *content.Book) error
	CreateProposal(ctx context.Context, p *content.Proposal) error
	IsMember(ctx context.Context, telegramID int64) (bool, error)
}

// FileStore keeps assets on local disk.
type FileStore interface {
	Save(kind, ext string, data []byte) (string, error)
	Remove(relPath string) error
}

type Encrypter interface {
	Wrap(plaintext []byte) ([]byte, envelope.Envelope, error)
}

// BlobStore receives covers when a remote store is configured.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
}

// BlobCache is told about every blob written so a stale miss marker is dropped.
type BlobCache interface {
	Put(id string, data []byte) error
}
