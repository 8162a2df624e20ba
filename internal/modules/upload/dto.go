package upload

// ItemFields are the text fields shared by book and proposal uploads.
type ItemFields struct {
	Title       string       `json:"title" validate:"required,max=255"`
	Author      string       `json:"author" validate:"max=255"`
	Description string       `json:"description" validate:"max=10000"`
	Category    string       `json:"category" validate:"max=100"`
	Price       int64        `json:"price" validate:"gte=0"`
	Audiobooks  []TrackEntry `json:"audiobooks" validate:"max=50,unique=ID,dive"`
}

// TrackEntry announces an audiobook part. ID refers to the part named
// audiobook_<id> in the same request.
type TrackEntry struct {
	ID    string `json:"id" validate:"required,max=64"`
	Title string `json:"title" validate:"max=255"`
}

type Result struct {
	ID           string        `json:"id"`
	FileAssetID  string        `json:"file_asset_id"`
	CoverAssetID string        `json:"cover_asset_id,omitempty"`
	Audiobooks   []TrackResult `json:"audiobooks,omitempty"`
}

type TrackResult struct {
	Ref     string `json:"ref"`
	AssetID string `json:"asset_id"`
	Title   string `json:"title"`
}

// Limits are per-part size caps in bytes.
type Limits struct {
	MaxFile  int64
	MaxCover int64
	MaxAudio int64
}
