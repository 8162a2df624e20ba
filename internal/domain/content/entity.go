package content

import (
	"time"

	"bookvault/internal/envelope"
)

type AssetKind string

const (
	KindBook      AssetKind = "book"
	KindCover     AssetKind = "cover"
	KindAudiobook AssetKind = "audiobook"
)

func ParseAssetKind(s string) (AssetKind, bool) {
	switch k := AssetKind(s); k {
	case KindBook, KindCover, KindAudiobook:
		return k, true
	}
	return "", false
}

// Encrypted reports whether assets of this kind are stored as ciphertext.
func (k AssetKind) Encrypted() bool {
	return k == KindBook || k == KindAudiobook
}

// Asset is one stored file. It is embedded into its owner and never updated
// after the owner is created.
type Asset struct {
	AssetID  string `gorm:"column:asset_id;size:36;index" json:"asset_id,omitempty"`
	MimeType string `gorm:"column:mime_type;size:128" json:"mime_type,omitempty"`
	FileName string `gorm:"column:file_name;size:255" json:"file_name,omitempty"`
	Size     int64  `gorm:"column:size" json:"size,omitempty"`
	// Location is a path under the storage dir, or blob:<key>.
	Location string `gorm:"column:location;size:512" json:"-"`
	IV       string `gorm:"column:iv;size:32" json:"-"`
	AuthTag  string `gorm:"column:auth_tag;size:32" json:"-"`
}

func (a Asset) IsZero() bool {
	return a.AssetID == "" && a.Location == ""
}

func (a Asset) HasEnvelope() bool {
	return a.IV != "" && a.AuthTag != ""
}

// Envelope decodes the stored iv and tag.
func (a Asset) Envelope() (envelope.Envelope, error) {
	return envelope.DecodeEnvelope(a.IV, a.AuthTag)
}

// SetEnvelope stores env in the asset's text columns.
func (a *Asset) SetEnvelope(env envelope.Envelope) {
	a.IV, a.AuthTag = env.Encode()
}

type Book struct {
	ID          string       `gorm:"primaryKey;size:36" json:"id"`
	Title       string       `gorm:"size:255;not null" json:"title"`
	Author      string       `gorm:"size:255" json:"author"`
	Description string       `gorm:"type:text" json:"description"`
	Category    string       `gorm:"size:100;index" json:"category"`
	Price       int64        `gorm:"not null;default:0" json:"price"`
	File        Asset        `gorm:"embedded;embeddedPrefix:file_" json:"file"`
	Cover       Asset        `gorm:"embedded;embeddedPrefix:cover_" json:"cover"`
	Audiobooks  []AudioTrack `gorm:"polymorphic:Owner;polymorphicValue:books" json:"audiobooks,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

type ProposalStatus string

const (
	ProposalVoting   ProposalStatus = "voting"
	ProposalAccepted ProposalStatus = "accepted"
	ProposalRejected ProposalStatus = "rejected"
)

// Proposal is a member-submitted book candidate. Its status is owned by the
// voting flow and only read here.
type Proposal struct {
	ID          string         `gorm:"primaryKey;size:36" json:"id"`
	Title       string         `gorm:"size:255;not null" json:"title"`
	Author      string         `gorm:"size:255" json:"author"`
	Description string         `gorm:"type:text" json:"description"`
	Category    string         `gorm:"size:100" json:"category"`
	Price       int64          `gorm:"not null;default:0" json:"price"`
	SubmittedBy int64          `gorm:"index" json:"submitted_by"`
	Status      ProposalStatus `gorm:"size:20;default:voting" json:"status"`
	File        Asset          `gorm:"embedded;embeddedPrefix:file_" json:"file"`
	Cover       Asset          `gorm:"embedded;embeddedPrefix:cover_" json:"cover"`
	Audiobooks  []AudioTrack   `gorm:"polymorphic:Owner;polymorphicValue:proposals" json:"audiobooks,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// AudioTrack is one audiobook file; its ID equals its asset id.
type AudioTrack struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	OwnerID   string    `gorm:"size:36;index:idx_track_owner" json:"-"`
	OwnerType string    `gorm:"size:20;index:idx_track_owner" json:"-"`
	Title     string    `gorm:"size:255" json:"title"`
	Position  int       `json:"position"`
	Asset     Asset     `gorm:"embedded" json:"asset"`
	CreatedAt time.Time `json:"-"`
}

type Purchase struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	TelegramID int64     `gorm:"not null;uniqueIndex:idx_purchase_subject_book" json:"telegram_id"`
	BookID     string    `gorm:"size:36;not null;uniqueIndex:idx_purchase_subject_book" json:"book_id"`
	PaymentID  string    `gorm:"size:128" json:"payment_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type Membership struct {
	TelegramID int64     `gorm:"primaryKey;autoIncrement:false" json:"telegram_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Models lists everything AutoMigrate has to create.
func Models() []any {
	return []any{&Book{}, &Proposal{}, &AudioTrack{}, &Purchase{}, &Membership{}}
}
