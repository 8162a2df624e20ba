package content

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Repository is the gorm-backed metadata store for books, proposals and
// access grants.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func orderedTracks(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

func (r *Repository) GetBook(ctx context.Context, id string) (*Book, error) {
	var b Book
	err := r.db.WithContext(ctx).Preload("Audiobooks", orderedTracks).First(&b, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *Repository) GetProposal(ctx context.Context, id string) (*Proposal, error) {
	var p Proposal
	err := r.db.WithContext(ctx).Preload("Audiobooks", orderedTracks).First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repository) FindOwner(ctx context.Context, kind OwnerKind, id string) (Owner, error) {
	switch kind {
	case OwnerBook:
		b, err := r.GetBook(ctx, id)
		if err != nil {
			return Owner{}, err
		}
		return BookOwner(b), nil
	case OwnerProposal:
		p, err := r.GetProposal(ctx, id)
		if err != nil {
			return Owner{}, err
		}
		return ProposalOwner(p), nil
	default:
		return Owner{}, ErrNotFound
	}
}

// FindAssetOwner resolves the owner of an asset id, looking at primary
// files, covers and audiobook tracks.
func (r *Repository) FindAssetOwner(ctx context.Context, assetID string) (Owner, error) {
	if assetID == "" {
		return Owner{}, ErrNotFound
	}
	db := r.db.WithContext(ctx)

	var bookIDs []string
	err := db.Model(&Book{}).
		Where("file_asset_id = ? OR cover_asset_id = ?", assetID, assetID).
		Limit(1).Pluck("id", &bookIDs).Error
	if err != nil {
		return Owner{}, err
	}
	if len(bookIDs) > 0 {
		return r.FindOwner(ctx, OwnerBook, bookIDs[0])
	}

	var proposalIDs []string
	err = db.Model(&Proposal{}).
		Where("file_asset_id = ? OR cover_asset_id = ?", assetID, assetID).
		Limit(1).Pluck("id", &proposalIDs).Error
	if err != nil {
		return Owner{}, err
	}
	if len(proposalIDs) > 0 {
		return r.FindOwner(ctx, OwnerProposal, proposalIDs[0])
	}

	var track AudioTrack
	err = db.Where("id = ? OR asset_id = ?", assetID, assetID).First(&track).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Owner{}, ErrNotFound
	}
	if err != nil {
		return Owner{}, err
	}
	switch track.OwnerType {
	case "books":
		return r.FindOwner(ctx, OwnerBook, track.OwnerID)
	case "proposals":
		return r.FindOwner(ctx, OwnerProposal, track.OwnerID)
	}
	return Owner{}, ErrNotFound
}

// CreateBook inserts the book together with its tracks.
func (r *Repository) CreateBook(ctx context.Context, b *Book) error {
	if err := r.db.WithContext(ctx).Create(b).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (r *Repository) CreateProposal(ctx context.Context, p *Proposal) error {
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (r *Repository) HasPurchase(ctx context.Context, telegramID int64, bookID string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&Purchase{}).
		Where("telegram_id = ? AND book_id = ?", telegramID, bookID).
		Count(&n).Error
	return n > 0, err
}

func (r *Repository) IsMember(ctx context.Context, telegramID int64) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&Membership{}).
		Where("telegram_id = ?", telegramID).
		Count(&n).Error
	return n > 0, err
}

// CreatePurchase records a purchase. created is false when the subject
// already owned the book.
func (r *Repository) CreatePurchase(ctx context.Context, p *Purchase) (created bool, err error) {
	err = r.db.WithContext(ctx).Create(p).Error
	if err == nil {
		return true, nil
	}
	if isUniqueViolation(err) {
		return false, nil
	}
	return false, err
}

func (r *Repository) CreateMembership(ctx context.Context, telegramID int64) (created bool, err error) {
	err = r.db.WithContext(ctx).Create(&Membership{TelegramID: telegramID}).Error
	if err == nil {
		return true, nil
	}
	if isUniqueViolation(err) {
		return false, nil
	}
	return false, err
}

func (r *Repository) DeleteMembership(ctx context.Context, telegramID int64) (bool, error) {
	res := r.db.WithContext(ctx).Where("telegram_id = ?", telegramID).Delete(&Membership{})
	return res.RowsAffected > 0, res.Error
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate")
}
