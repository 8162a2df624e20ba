package delivery

import (
	"context"
	"io"

	"bookvault/internal/domain/content"
	"bookvault/internal/envelope"
)

// ContentRepository resolves owners and access grants.
type ContentRepository interface {
	FindOwner(ctx context.Context, kind content.OwnerKind, id string) (content.Owner, error)
	FindAssetOwner(ctx context.Context, assetID string) (content.Owner, error)
	HasPurchase(ctx context.Context, telegramID int64, bookID string) (bool, error)
	IsMember(ctx context.Context, telegramID int64) (bool, error)
}

// AssetStorage opens stored bytes by location.
type AssetStorage interface {
	Open(ctx context.Context, location string) (io.ReadCloser, int64, error)
}

type Decrypter interface {
	Unwrap(ciphertext []byte, env envelope.Envelope) ([]byte, error)
	NewReader(src io.Reader, env envelope.Envelope) (io.Reader, error)
}

// Previewer reduces decrypted content; reduced is false when the bytes came
// back whole.
type Previewer interface {
	Of(ctx context.Context, kind content.AssetKind, decrypted []byte) (sample []byte, reduced bool)
}
