package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"bookvault/internal/blobcache"
	"bookvault/internal/blobstore"
	"bookvault/internal/domain/content"
	"bookvault/internal/storage"
)

// Service builds item cards and manages the covers kept in the remote blob
// store. cache and blobs are both nil when no remote store is configured.
type Service struct {
	repo  ContentRepository
	cache BlobCache
	blobs BlobStore
	log   *zap.Logger
}

func NewService(repo ContentRepository, cache BlobCache, blobs BlobStore, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, cache: cache, blobs: blobs, log: log}
}

func (s *Service) BookCard(ctx context.Context, id string) (*Card, error) {
	book, err := s.repo.GetBook(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	card := newCard(content.BookOwner(book))
	card.CoverInline = s.inlineCover(ctx, book.Cover)
	return card, nil
}

// ProposalCard is visible to members only.
func (s *Service) ProposalCard(ctx context.Context, id string, subject int64) (*Card, error) {
	if subject == 0 {
		return nil, ErrUnauthenticated
	}
	member, err := s.repo.IsMember(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("check membership: %w", err)
	}
	if !member {
		return nil, ErrForbidden
	}

	p, err := s.repo.GetProposal(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	card := newCard(content.ProposalOwner(p))
	card.Status = string(p.Status)
	card.SubmittedBy = p.SubmittedBy
	card.CoverInline = s.inlineCover(ctx, p.Cover)
	return card, nil
}

// ResolveCovers maps each blob id to a data URL, or nil when the store has no
// such blob. A failing store fails the whole call.
func (s *Service) ResolveCovers(ctx context.Context, ids []string) (map[string]*string, error) {
	if s.cache == nil {
		return nil, ErrBlobStoreMissing
	}
	if len(ids) > MaxResolveIDs {
		return nil, ErrTooManyIDs
	}
	for _, id := range ids {
		if blobstore.ValidateKey(id) != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidKey, id)
		}
	}

	found, err := s.cache.ResolveMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make(map[string]*string, len(ids))
	for _, id := range ids {
		data, ok := found[id]
		if !ok || data == nil {
			out[id] = nil
			continue
		}
		url := blobcache.DataURL(mimetype.Detect(data).String(), data)
		out[id] = &url
	}
	return out, nil
}

// PutBlob uploads data under key and refreshes the cache so a previously
// remembered miss for key is forgotten.
func (s *Service) PutBlob(ctx context.Context, key string, data []byte, contentType string) (*PutBlobResponse, error) {
	if s.blobs == nil || s.cache == nil {
		return nil, ErrBlobStoreMissing
	}
	if err := blobstore.ValidateKey(key); err != nil {
		return nil, ErrInvalidKey
	}
	if contentType == "" {
		contentType = mimetype.Detect(data).String()
	}

	if err := s.blobs.Put(ctx, key, data, contentType); err != nil {
		return nil, fmt.Errorf("upload blob: %w", err)
	}
	if err := s.cache.Put(key, data); err != nil {
		// the store already holds the bytes
		s.log.Warn("blob cache refresh failed", zap.String("key", key), zap.Error(err))
	}

	s.log.Info("blob uploaded", zap.String("key", key), zap.Int("size", len(data)))
	return &PutBlobResponse{Key: key, Location: storage.BlobLocation(key), Size: len(data)}, nil
}

func (s *Service) CacheStats() (blobcache.Stats, error) {
	if s.cache == nil {
		return blobcache.Stats{}, ErrBlobStoreMissing
	}
	return s.cache.Stats()
}

func (s *Service) PurgeMisses() (*PurgeResponse, error) {
	if s.cache == nil {
		return nil, ErrBlobStoreMissing
	}
	n, err := s.cache.PurgeMisses()
	if err != nil {
		return nil, err
	}
	s.log.Info("blob cache misses purged", zap.Int("removed", n))
	return &PurgeResponse{Removed: n}, nil
}

// inlineCover never fails the card: an unavailable store renders as null.
func (s *Service) inlineCover(ctx context.Context, cover content.Asset) *string {
	key, ok := storage.BlobKey(cover.Location)
	if !ok || s.cache == nil {
		return nil
	}
	found, err := s.cache.ResolveMany(ctx, []string{key})
	if err != nil {
		s.log.Warn("cover inline resolution failed", zap.String("key", key), zap.Error(err))
		return nil
	}
	data := found[key]
	if data == nil {
		return nil
	}
	url := blobcache.DataURL(cover.MimeType, data)
	return &url
}

func newCard(o content.Owner) *Card {
	card := &Card{
		ID:         o.ID(),
		Type:       o.Kind.String(),
		Title:      o.Title(),
		Price:      o.Price(),
		Audiobooks: []TrackCard{},
	}
	switch o.Kind {
	case content.OwnerBook:
		b := o.Book
		card.Author, card.Description, card.Category = b.Author, b.Description, b.Category
		card.FileAssetID, card.CoverAssetID = b.File.AssetID, b.Cover.AssetID
	case content.OwnerProposal:
		p := o.Proposal
		card.Author, card.Description, card.Category = p.Author, p.Description, p.Category
		card.FileAssetID, card.CoverAssetID = p.File.AssetID, p.Cover.AssetID
	}
	for _, t := range o.Tracks() {
		card.Audiobooks = append(card.Audiobooks, TrackCard{AssetID: t.ID, Title: t.Title, Position: t.Position})
	}
	return card
}

func notFound(err error) error {
	if errors.Is(err, content.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
