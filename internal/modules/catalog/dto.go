package catalog

// MaxResolveIDs caps one batch resolution request.
const MaxResolveIDs = 100

// Card is the public view of a book or proposal. CoverInline is a data URL
// when the cover lives in the remote blob store, null otherwise.
type Card struct {
	ID           string      `json:"id"`
	Type         string      `json:"type"`
	Title        string      `json:"title"`
	Author       string      `json:"author"`
	Description  string      `json:"description"`
	Category     string      `json:"category"`
	Price        int64       `json:"price"`
	Status       string      `json:"status,omitempty"`
	SubmittedBy  int64       `json:"submitted_by,omitempty"`
	FileAssetID  string      `json:"file_asset_id,omitempty"`
	CoverAssetID string      `json:"cover_asset_id,omitempty"`
	CoverInline  *string     `json:"cover_inline"`
	Audiobooks   []TrackCard `json:"audiobooks"`
}

type TrackCard struct {
	AssetID  string `json:"asset_id"`
	Title    string `json:"title"`
	Position int    `json:"position"`
}

type ResolveRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,max=100,dive,required"`
}

type PutBlobResponse struct {
	Key      string `json:"key"`
	Location string `json:"location"`
	Size     int    `json:"size"`
}

type PurgeResponse struct {
	Removed int `json:"removed"`
}
