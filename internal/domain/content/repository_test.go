package content_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"bookvault/internal/database"
	"bookvault/internal/domain/content"
)

func setupRepo(t *testing.T) (*content.Repository, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:content_repo_%s?mode=memory&cache=shared", t.Name())
	db, err := database.Connect(dsn, nil)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return content.NewRepository(db), db
}

func sampleBook() *content.Book {
	return &content.Book{
		ID:    "b-1",
		Title: "Dune",
		Price: 500,
		File: content.Asset{
			AssetID: "file-1", MimeType: "application/epub+zip", Location: "book/2025/01/x.enc",
			IV: "aXY=", AuthTag: "dGFn",
		},
		Cover: content.Asset{AssetID: "cover-1", MimeType: "image/jpeg", Location: "blob:covers/1"},
		Audiobooks: []content.AudioTrack{
			{ID: "track-2", Title: "Part 2", Position: 2, Asset: content.Asset{AssetID: "track-2", Location: "audiobook/a2.enc"}},
			{ID: "track-1", Title: "Part 1", Position: 1, Asset: content.Asset{AssetID: "track-1", Location: "audiobook/a1.enc"}},
		},
	}
}

func TestRepository_BookRoundTrip(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateBook(ctx, sampleBook()))

	got, err := repo.GetBook(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, "Dune", got.Title)
	assert.Equal(t, "file-1", got.File.AssetID)
	assert.Equal(t, "blob:covers/1", got.Cover.Location)
	require.Len(t, got.Audiobooks, 2)
	assert.Equal(t, "track-1", got.Audiobooks[0].ID)
	assert.Equal(t, "books", got.Audiobooks[0].OwnerType)

	_, err = repo.GetBook(ctx, "nope")
	assert.ErrorIs(t, err, content.ErrNotFound)

	assert.ErrorIs(t, repo.CreateBook(ctx, &content.Book{ID: "b-1", Title: "again"}), content.ErrConflict)
}

func TestRepository_FindAssetOwner(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateBook(ctx, sampleBook()))
	require.NoError(t, repo.CreateProposal(ctx, &content.Proposal{
		ID: "p-1", Title: "Idea", SubmittedBy: 7,
		File: content.Asset{AssetID: "pfile-1", Location: "book/p.enc"},
	}))

	cases := []struct {
		assetID string
		kind    content.OwnerKind
		owner   string
		slot    content.AssetKind
	}{
		{"file-1", content.OwnerBook, "b-1", content.KindBook},
		{"cover-1", content.OwnerBook, "b-1", content.KindCover},
		{"track-2", content.OwnerBook, "b-1", content.KindAudiobook},
		{"pfile-1", content.OwnerProposal, "p-1", content.KindBook},
	}
	for _, tc := range cases {
		owner, err := repo.FindAssetOwner(ctx, tc.assetID)
		require.NoError(t, err, tc.assetID)
		assert.Equal(t, tc.kind, owner.Kind, tc.assetID)
		assert.Equal(t, tc.owner, owner.ID(), tc.assetID)

		slot, _, ok := owner.Locate(tc.assetID)
		assert.True(t, ok)
		assert.Equal(t, tc.slot, slot)
	}

	_, err := repo.FindAssetOwner(ctx, "missing")
	assert.ErrorIs(t, err, content.ErrNotFound)
}

func TestRepository_Grants(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	ok, err := repo.HasPurchase(ctx, 42, "b-1")
	require.NoError(t, err)
	assert.False(t, ok)

	created, err := repo.CreatePurchase(ctx, &content.Purchase{TelegramID: 42, BookID: "b-1", PaymentID: "pay-1"})
	require.NoError(t, err)
	assert.True(t, created)
	created, err = repo.CreatePurchase(ctx, &content.Purchase{TelegramID: 42, BookID: "b-1", PaymentID: "pay-2"})
	require.NoError(t, err)
	assert.False(t, created)

	ok, err = repo.HasPurchase(ctx, 42, "b-1")
	require.NoError(t, err)
	assert.True(t, ok)

	created, err = repo.CreateMembership(ctx, 42)
	require.NoError(t, err)
	assert.True(t, created)
	created, err = repo.CreateMembership(ctx, 42)
	require.NoError(t, err)
	assert.False(t, created)

	member, err := repo.IsMember(ctx, 42)
	require.NoError(t, err)
	assert.True(t, member)

	removed, err := repo.DeleteMembership(ctx, 42)
	require.NoError(t, err)
	assert.True(t, removed)
	member, err = repo.IsMember(ctx, 42)
	require.NoError(t, err)
	assert.False(t, member)
}

func TestOwner_Asset(t *testing.T) {
	owner := content.BookOwner(sampleBook())

	a, ok := owner.Asset(content.KindAudiobook, "")
	require.True(t, ok)
	assert.Equal(t, "track-2", a.AssetID)

	a, ok = owner.Asset(content.KindAudiobook, "track-1")
	require.True(t, ok)
	assert.Equal(t, "track-1", a.AssetID)

	_, ok = owner.Asset(content.KindAudiobook, "track-9")
	assert.False(t, ok)

	empty := content.ProposalOwner(&content.Proposal{ID: "p"})
	_, ok = empty.Asset(content.KindCover, "")
	assert.False(t, ok)
	assert.Equal(t, "proposal", empty.Kind.String())
}
