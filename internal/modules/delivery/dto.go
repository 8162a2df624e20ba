package delivery

import (
	"io"

	"bookvault/internal/domain/content"
)

// Request identifies an asset either by owner and slot or by asset id.
type Request struct {
	Owner   content.OwnerKind
	ItemID  string
	Kind    content.AssetKind
	TrackID string

	AssetID string

	// Subject is the caller's Telegram id, 0 when anonymous.
	Subject int64
}

// Download is a gated, decrypted asset ready to be written out. Size is the
// plaintext length; Body must be closed by the caller.
type Download struct {
	Body        io.ReadCloser
	Size        int64
	ContentType string
	FileName    string
	Kind        content.AssetKind
	AssetID     string
	Inline      bool
}

type AccessResponse struct {
	BookID  string `json:"book_id"`
	Granted bool   `json:"granted"`
	Free    bool   `json:"free"`
}
