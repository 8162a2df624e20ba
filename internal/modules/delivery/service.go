package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"bookvault/internal/domain/content"
	"bookvault/internal/envelope"
	"bookvault/internal/storage"
)

// Service gates and decrypts asset downloads.
type Service struct {
	repo    ContentRepository
	storage AssetStorage
	crypto  Decrypter
	preview Previewer
	log     *zap.Logger
}

func NewService(repo ContentRepository, st AssetStorage, crypto Decrypter, preview Previewer, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, storage: st, crypto: crypto, preview: preview, log: log}
}

type resolved struct {
	owner   content.Owner
	kind    content.AssetKind
	trackID string
	asset   content.Asset
}

// Open resolves the asset, enforces access and returns a streaming body. For
// enveloped assets the body fails with ErrIntegrity at its end if the
// ciphertext does not authenticate; the final chunk is never released then.
func (s *Service) Open(ctx context.Context, req Request) (*Download, error) {
	r, err := s.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.gate(ctx, r.owner, r.kind, req.Subject); err != nil {
		return nil, err
	}

	env, encrypted, err := envelopeOf(r)
	if err != nil {
		return nil, err
	}

	rc, size, err := s.openLocation(ctx, r.asset.Location)
	if err != nil {
		return nil, err
	}

	body := rc
	if encrypted {
		plain, err := s.crypto.NewReader(rc, env)
		if err != nil {
			rc.Close()
			return nil, fmt.Errorf("%w: %v", ErrMissingEnvelope, err)
		}
		body = readCloser{Reader: plain, Closer: rc}
	}

	return s.download(r, body, size, false), nil
}

// Preview returns a reduced sample of the asset. Book samples are open for
// browsing; proposal samples need membership like the full file. Content that
// could not be reduced is only served to subjects allowed the full file.
func (s *Service) Preview(ctx context.Context, req Request) (*Download, error) {
	r, err := s.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	if r.owner.Kind == content.OwnerProposal {
		if err := s.gate(ctx, r.owner, r.kind, req.Subject); err != nil {
			return nil, err
		}
	}

	env, encrypted, err := envelopeOf(r)
	if err != nil {
		return nil, err
	}

	rc, _, err := s.openLocation(ctx, r.asset.Location)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	if encrypted {
		data, err = s.crypto.Unwrap(data, env)
		if err != nil {
			return nil, err
		}
	}
	data, reduced := s.preview.Of(ctx, r.kind, data)
	if !reduced && r.owner.Kind == content.OwnerBook {
		switch err := s.gate(ctx, r.owner, r.kind, req.Subject); {
		case err == nil:
		case errors.Is(err, ErrUnauthenticated), errors.Is(err, ErrForbidden):
			return nil, ErrNoPreview
		default:
			return nil, err
		}
	}

	return s.download(r, io.NopCloser(bytes.NewReader(data)), int64(len(data)), true), nil
}

// HasBookAccess reports whether subject may download the book's files.
func (s *Service) HasBookAccess(ctx context.Context, bookID string, subject int64) (*AccessResponse, error) {
	owner, err := s.repo.FindOwner(ctx, content.OwnerBook, bookID)
	if err != nil {
		if errors.Is(err, content.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	resp := &AccessResponse{BookID: bookID, Free: owner.Price() <= 0}
	switch err := s.gate(ctx, owner, content.KindBook, subject); {
	case err == nil:
		resp.Granted = true
	case errors.Is(err, ErrUnauthenticated), errors.Is(err, ErrForbidden):
	default:
		return nil, err
	}
	return resp, nil
}

func (s *Service) resolve(ctx context.Context, req Request) (resolved, error) {
	if req.AssetID != "" {
		owner, err := s.repo.FindAssetOwner(ctx, req.AssetID)
		if err != nil {
			return resolved{}, notFound(err)
		}
		kind, trackID, ok := owner.Locate(req.AssetID)
		if !ok {
			return resolved{}, ErrNotFound
		}
		asset, ok := owner.Asset(kind, trackID)
		if !ok {
			return resolved{}, ErrNotFound
		}
		return resolved{owner: owner, kind: kind, trackID: trackID, asset: asset}, nil
	}

	if _, ok := content.ParseAssetKind(string(req.Kind)); !ok {
		return resolved{}, ErrInvalidKind
	}
	owner, err := s.repo.FindOwner(ctx, req.Owner, req.ItemID)
	if err != nil {
		return resolved{}, notFound(err)
	}
	asset, ok := owner.Asset(req.Kind, req.TrackID)
	if !ok {
		return resolved{}, ErrNotFound
	}
	return resolved{owner: owner, kind: req.Kind, trackID: req.TrackID, asset: asset}, nil
}

// gate must run before any plaintext is produced.
func (s *Service) gate(ctx context.Context, owner content.Owner, kind content.AssetKind, subject int64) error {
	if kind == content.KindCover {
		return nil
	}

	switch owner.Kind {
	case content.OwnerBook:
		if owner.Price() <= 0 {
			return nil
		}
		if subject == 0 {
			return ErrUnauthenticated
		}
		ok, err := s.repo.HasPurchase(ctx, subject, owner.ID())
		if err != nil {
			return fmt.Errorf("check purchase: %w", err)
		}
		if !ok {
			return ErrForbidden
		}
		return nil

	case content.OwnerProposal:
		if subject == 0 {
			return ErrUnauthenticated
		}
		ok, err := s.repo.IsMember(ctx, subject)
		if err != nil {
			return fmt.Errorf("check membership: %w", err)
		}
		if !ok {
			return ErrForbidden
		}
		return nil
	}
	return ErrNotFound
}

// envelopeOf decides whether the asset must be decrypted. Book files and
// audiobooks always must; any asset carrying an envelope is decrypted too.
func envelopeOf(r resolved) (envelope.Envelope, bool, error) {
	if !r.kind.Encrypted() && r.asset.IV == "" && r.asset.AuthTag == "" {
		return envelope.Envelope{}, false, nil
	}
	if !r.asset.HasEnvelope() {
		return envelope.Envelope{}, false, ErrMissingEnvelope
	}
	env, err := r.asset.Envelope()
	if err != nil {
		return envelope.Envelope{}, false, fmt.Errorf("%w: %v", ErrMissingEnvelope, err)
	}
	return env, true, nil
}

func (s *Service) openLocation(ctx context.Context, location string) (io.ReadCloser, int64, error) {
	if location == "" {
		return nil, 0, ErrNotFound
	}
	rc, size, err := s.storage.Open(ctx, location)
	switch {
	case err == nil:
		return rc, size, nil
	case errors.Is(err, storage.ErrNotFound):
		return nil, 0, ErrNotFound
	case errors.Is(err, context.Canceled):
		return nil, 0, err
	default:
		return nil, 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
}

func (s *Service) download(r resolved, body io.ReadCloser, size int64, inline bool) *Download {
	ct := r.asset.MimeType
	if ct == "" {
		ct = defaultContentType(r.kind)
	}
	return &Download{
		Body:        body,
		Size:        size,
		ContentType: ct,
		FileName:    downloadName(r.owner, r.kind, r.asset),
		Kind:        r.kind,
		AssetID:     r.asset.AssetID,
		Inline:      inline,
	}
}

func notFound(err error) error {
	if errors.Is(err, content.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

type readCloser struct {
	io.Reader
	io.Closer
}
