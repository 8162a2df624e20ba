package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bookvault/internal/domain/content"
	"bookvault/internal/multipart"
	"bookvault/internal/pkg/validator"
	"bookvault/internal/storage"
)

const (
	DefaultMaxFile  = 25 << 20
	DefaultMaxCover = 5 << 20
	DefaultMaxAudio = 50 << 20

	audiobookPrefix = "audiobook_"
	encryptedExt    = ".enc"
)

type Options struct {
	// Blobs, when set, receives covers instead of local disk.
	Blobs  BlobStore
	Cache  BlobCache
	Limits Limits
	Logger *zap.Logger
}

// Service turns a decoded upload into stored assets and a persisted item:
// decode, validate, encrypt, store, persist.
type Service struct {
	repo   ContentRepository
	files  FileStore
	crypto Encrypter
	blobs  BlobStore
	cache  BlobCache
	limits Limits
	log    *zap.Logger
}

func NewService(repo ContentRepository, files FileStore, crypto Encrypter, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Limits.MaxFile <= 0 {
		opts.Limits.MaxFile = DefaultMaxFile
	}
	if opts.Limits.MaxCover <= 0 {
		opts.Limits.MaxCover = DefaultMaxCover
	}
	if opts.Limits.MaxAudio <= 0 {
		opts.Limits.MaxAudio = DefaultMaxAudio
	}
	return &Service{
		repo:   repo,
		files:  files,
		crypto: crypto,
		blobs:  opts.Blobs,
		cache:  opts.Cache,
		limits: opts.Limits,
		log:    opts.Logger,
	}
}

// CreateBook stores a catalogue book.
func (s *Service) CreateBook(ctx context.Context, form *multipart.Form) (*Result, error) {
	item, err := s.prepare(ctx, form)
	if err != nil {
		return nil, err
	}

	book := &content.Book{
		ID:          item.id,
		Title:       item.fields.Title,
		Author:      item.fields.Author,
		Description: item.fields.Description,
		Category:    item.fields.Category,
		Price:       item.fields.Price,
		File:        item.file,
		Cover:       item.cover,
		Audiobooks:  item.tracks,
	}
	if err := s.repo.CreateBook(ctx, book); err != nil {
		s.rollback(ctx, item)
		return nil, fmt.Errorf("save book: %w", err)
	}
	s.publish(item)

	s.log.Info("book uploaded",
		zap.String("book_id", book.ID),
		zap.Int64("size", book.File.Size),
		zap.Int("audiobooks", len(book.Audiobooks)),
		zap.Bool("cover", !book.Cover.IsZero()),
	)
	return item.result(), nil
}

// CreateProposal stores a member's book proposal. Only members may submit.
func (s *Service) CreateProposal(ctx context.Context, subject int64, form *multipart.Form) (*Result, error) {
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

	item, err := s.prepare(ctx, form)
	if err != nil {
		return nil, err
	}

	proposal := &content.Proposal{
		ID:          item.id,
		Title:       item.fields.Title,
		Author:      item.fields.Author,
		Description: item.fields.Description,
		Category:    item.fields.Category,
		Price:       item.fields.Price,
		SubmittedBy: subject,
		Status:      content.ProposalVoting,
		File:        item.file,
		Cover:       item.cover,
		Audiobooks:  item.tracks,
	}
	if err := s.repo.CreateProposal(ctx, proposal); err != nil {
		s.rollback(ctx, item)
		return nil, fmt.Errorf("save proposal: %w", err)
	}
	s.publish(item)

	s.log.Info("proposal submitted",
		zap.String("proposal_id", proposal.ID),
		zap.Int64("submitted_by", subject),
		zap.Int("audiobooks", len(proposal.Audiobooks)),
	)
	return item.result(), nil
}

type prepared struct {
	id      string
	fields  ItemFields
	file    content.Asset
	cover   content.Asset
	tracks  []content.AudioTrack
	refs    []string
	written []string
	// remote blobs put for this item, announced to the cache once persisted
	blobs map[string][]byte
}

func (p *prepared) result() *Result {
	res := &Result{
		ID:           p.id,
		FileAssetID:  p.file.AssetID,
		CoverAssetID: p.cover.AssetID,
	}
	for i, t := range p.tracks {
		res.Audiobooks = append(res.Audiobooks, TrackResult{Ref: p.refs[i], AssetID: t.ID, Title: t.Title})
	}
	return res
}

type trackPart struct {
	entry TrackEntry
	part  *multipart.FilePart
}

// prepare validates everything before the first byte is written, then stores
// the assets. On a storage failure the files and blobs written so far are
// removed.
func (s *Service) prepare(ctx context.Context, form *multipart.Form) (*prepared, error) {
	fields, err := parseFields(form)
	if err != nil {
		return nil, err
	}

	file := form.File("file")
	if err := checkPart("file", file, s.limits.MaxFile, true); err != nil {
		return nil, err
	}

	cover := form.File("cover")
	var coverType sniffed
	if cover != nil {
		if err := checkPart("cover", cover, s.limits.MaxCover, true); err != nil {
			return nil, err
		}
		coverType = sniff(cover)
		if !coverType.image {
			return nil, &PartError{Part: "cover", Err: ErrInvalidMimeType}
		}
	}

	tracks, err := s.matchTracks(form, fields.Audiobooks)
	if err != nil {
		return nil, err
	}

	item := &prepared{id: uuid.NewString(), fields: fields}

	item.file, err = s.storeEncrypted(content.KindBook, file, item)
	if err != nil {
		return nil, err
	}

	if cover != nil {
		item.cover, err = s.storeCover(ctx, cover, coverType, item)
		if err != nil {
			s.rollback(ctx, item)
			return nil, err
		}
	}

	for i, tp := range tracks {
		asset, err := s.storeEncrypted(content.KindAudiobook, tp.part, item)
		if err != nil {
			s.rollback(ctx, item)
			return nil, err
		}
		title := tp.entry.Title
		if title == "" {
			title = asset.FileName
		}
		item.tracks = append(item.tracks, content.AudioTrack{
			ID:       asset.AssetID,
			Title:    title,
			Position: i,
			Asset:    asset,
		})
		item.refs = append(item.refs, tp.entry.ID)
	}

	return item, nil
}

func parseFields(form *multipart.Form) (ItemFields, error) {
	fields := ItemFields{
		Title:       strings.TrimSpace(form.Value("title")),
		Author:      strings.TrimSpace(form.Value("author")),
		Description: strings.TrimSpace(form.Value("description")),
		Category:    strings.TrimSpace(form.Value("category")),
	}

	if raw := strings.TrimSpace(form.Value("price")); raw != "" {
		price, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fields, invalid("price", "numeric")
		}
		fields.Price = price
	}

	if raw := strings.TrimSpace(form.Value("audiobooks")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &fields.Audiobooks); err != nil {
			return fields, invalid("audiobooks", "json")
		}
	}

	if errs := validator.Validate(fields); errs != nil {
		return fields, &ValidationError{Fields: errs}
	}
	return fields, nil
}

func checkPart(name string, part *multipart.FilePart, limit int64, required bool) error {
	if part == nil {
		if required {
			return invalid(name, "required")
		}
		return nil
	}
	if len(part.Data) == 0 {
		return &PartError{Part: name, Err: ErrEmptyFile}
	}
	if int64(len(part.Data)) > limit {
		return &PartError{Part: name, Err: ErrFileTooLarge}
	}
	return nil
}

// matchTracks pairs every announced track with its part, in announced order.
// Unannounced audiobook parts are rejected.
func (s *Service) matchTracks(form *multipart.Form, entries []TrackEntry) ([]trackPart, error) {
	parts := form.FilesWithPrefix(audiobookPrefix)
	listed := make(map[string]bool, len(entries))

	out := make([]trackPart, 0, len(entries))
	for _, entry := range entries {
		listed[entry.ID] = true
		name := audiobookPrefix + entry.ID
		part := parts[entry.ID]
		if err := checkPart(name, part, s.limits.MaxAudio, true); err != nil {
			return nil, err
		}
		out = append(out, trackPart{entry: entry, part: part})
	}

	for ref := range parts {
		if !listed[ref] {
			return nil, invalid(audiobookPrefix+ref, "not_listed")
		}
	}
	return out, nil
}

func (s *Service) storeEncrypted(kind content.AssetKind, part *multipart.FilePart, item *prepared) (content.Asset, error) {
	ciphertext, env, err := s.crypto.Wrap(part.Data)
	if err != nil {
		return content.Asset{}, fmt.Errorf("encrypt %s: %w", kind, err)
	}

	loc, err := s.files.Save(string(kind), encryptedExt, ciphertext)
	if err != nil {
		return content.Asset{}, fmt.Errorf("store %s: %w", kind, err)
	}
	item.written = append(item.written, loc)

	t := sniff(part)
	asset := content.Asset{
		AssetID:  uuid.NewString(),
		MimeType: t.mimeType,
		FileName: cleanFileName(part.FileName),
		Size:     int64(len(part.Data)),
		Location: loc,
	}
	asset.SetEnvelope(env)
	return asset, nil
}

// storeCover keeps covers in plaintext. With a remote store configured the
// cover goes there; the cache learns the new bytes once the item is saved.
func (s *Service) storeCover(ctx context.Context, part *multipart.FilePart, t sniffed, item *prepared) (content.Asset, error) {
	asset := content.Asset{
		AssetID:  uuid.NewString(),
		MimeType: t.mimeType,
		FileName: cleanFileName(part.FileName),
		Size:     int64(len(part.Data)),
	}

	if s.blobs == nil {
		loc, err := s.files.Save(string(content.KindCover), t.ext, part.Data)
		if err != nil {
			return content.Asset{}, fmt.Errorf("store cover: %w", err)
		}
		item.written = append(item.written, loc)
		asset.Location = loc
		return asset, nil
	}

	key := "covers/" + asset.AssetID + t.ext
	if err := s.blobs.Put(ctx, key, part.Data, t.mimeType); err != nil {
		return content.Asset{}, fmt.Errorf("store cover blob: %w", err)
	}
	if item.blobs == nil {
		item.blobs = make(map[string][]byte)
	}
	item.blobs[key] = part.Data
	asset.Location = storage.BlobLocation(key)
	return asset, nil
}

// publish clears any remembered miss for the item's new blobs.
func (s *Service) publish(item *prepared) {
	if s.cache == nil {
		return
	}
	for key, data := range item.blobs {
		if err := s.cache.Put(key, data); err != nil {
			s.log.Warn("blob cache refresh failed", zap.String("key", key), zap.Error(err))
		}
	}
}

func (s *Service) rollback(ctx context.Context, item *prepared) {
	for _, loc := range item.written {
		if err := s.files.Remove(loc); err != nil {
			s.log.Warn("rollback: failed to remove asset", zap.String("location", loc), zap.Error(err))
		}
	}
	if len(item.blobs) == 0 {
		return
	}
	// deletes run even when the request was cancelled
	ctx = context.WithoutCancel(ctx)
	for key := range item.blobs {
		if err := s.blobs.Delete(ctx, key); err != nil {
			s.log.Warn("rollback: failed to delete blob", zap.String("key", key), zap.Error(err))
		}
	}
}
