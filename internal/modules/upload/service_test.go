package upload

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"bookvault/internal/domain/content"
	"bookvault/internal/envelope"
	"bookvault/internal/multipart"
)

// ---- Mocks ----

type MockContentRepository struct{ mock.Mock }

func (m *MockContentRepository) CreateBook(ctx context.Context, b *content.Book) error {
	return m.Called(ctx, b).Error(0)
}

func (m *MockContentRepository) CreateProposal(ctx context.Context, p *content.Proposal) error {
	return m.Called(ctx, p).Error(0)
}

func (m *MockContentRepository) IsMember(ctx context.Context, telegramID int64) (bool, error) {
	args := m.Called(ctx, telegramID)
	return args.Bool(0), args.Error(1)
}

type memFiles struct {
	mu     sync.Mutex
	data   map[string][]byte
	saves  int
	failAt int
}

func newMemFiles() *memFiles {
	return &memFiles{data: make(map[string][]byte)}
}

func (m *memFiles) Save(kind, ext string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saves == m.failAt {
		return "", errors.New("disk full")
	}
	loc := fmt.Sprintf("%s/%d%s", kind, m.saves, ext)
	m.data[loc] = append([]byte(nil), data...)
	return loc, nil
}

func (m *memFiles) Remove(loc string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, loc)
	return nil
}

func (m *memFiles) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

type memBlobs struct {
	puts    map[string][]byte
	deleted []string
	err     error
}

func (b *memBlobs) Put(_ context.Context, key string, data []byte, _ string) error {
	if b.err != nil {
		return b.err
	}
	if b.puts == nil {
		b.puts = make(map[string][]byte)
	}
	b.puts[key] = data
	return nil
}

func (b *memBlobs) Delete(_ context.Context, key string) error {
	b.deleted = append(b.deleted, key)
	delete(b.puts, key)
	return nil
}

type recordingCache struct{ keys []string }

func (c *recordingCache) Put(id string, _ []byte) error {
	c.keys = append(c.keys, id)
	return nil
}

// ---- Fixtures ----

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)

func newCrypto(t *testing.T) *envelope.Service {
	t.Helper()
	key := make([]byte, envelope.KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	svc, err := envelope.New(key)
	require.NoError(t, err)
	return svc
}

func newForm(values map[string]string, files ...*multipart.FilePart) *multipart.Form {
	form := &multipart.Form{Values: values, Files: make(map[string]*multipart.FilePart)}
	if form.Values == nil {
		form.Values = make(map[string]string)
	}
	for _, f := range files {
		form.Files[f.Name] = f
	}
	return form
}

func bookPart(data string) *multipart.FilePart {
	return &multipart.FilePart{Name: "file", FileName: `C:\books\novel.epub`, ContentType: "application/epub+zip", Data: []byte(data)}
}

func fullForm() *multipart.Form {
	return newForm(
		map[string]string{
			"title":      "  The Novel ",
			"author":     "A. Writer",
			"price":      "250",
			"audiobooks": `[{"id":"a1","title":"Chapter 1"}]`,
		},
		bookPart("plain book contents"),
		&multipart.FilePart{Name: "cover", FileName: "cover.png", ContentType: "image/png", Data: pngBytes},
		&multipart.FilePart{Name: "audiobook_a1", FileName: "ch1.mp3", ContentType: "audio/mpeg", Data: []byte{0x00, 0x01, 0x02, 0x03}},
	)
}

// ---- Tests ----

func TestCreateBook_StoresEncryptedAssets(t *testing.T) {
	repo := new(MockContentRepository)
	files := newMemFiles()
	crypto := newCrypto(t)
	svc := NewService(repo, files, crypto, Options{})

	var saved *content.Book
	repo.On("CreateBook", mock.Anything, mock.AnythingOfType("*content.Book")).
		Run(func(args mock.Arguments) { saved = args.Get(1).(*content.Book) }).
		Return(nil)

	res, err := svc.CreateBook(context.Background(), fullForm())
	require.NoError(t, err)
	require.NotNil(t, saved)

	assert.Equal(t, "The Novel", saved.Title)
	assert.Equal(t, int64(250), saved.Price)
	assert.Equal(t, res.ID, saved.ID)
	assert.Equal(t, saved.File.AssetID, res.FileAssetID)
	assert.Equal(t, "novel.epub", saved.File.FileName)
	assert.Equal(t, "application/epub+zip", saved.File.MimeType)
	assert.True(t, strings.HasSuffix(saved.File.Location, ".enc"))

	// book bytes on disk are ciphertext that opens with the persisted envelope
	stored := files.data[saved.File.Location]
	assert.NotEqual(t, []byte("plain book contents"), stored)
	env, err := saved.File.Envelope()
	require.NoError(t, err)
	plain, err := crypto.Unwrap(stored, env)
	require.NoError(t, err)
	assert.Equal(t, "plain book contents", string(plain))

	// covers stay plain
	assert.False(t, saved.Cover.HasEnvelope())
	assert.Equal(t, "image/png", saved.Cover.MimeType)
	assert.Equal(t, pngBytes, files.data[saved.Cover.Location])

	require.Len(t, saved.Audiobooks, 1)
	track := saved.Audiobooks[0]
	assert.Equal(t, track.Asset.AssetID, track.ID)
	assert.Equal(t, "Chapter 1", track.Title)
	assert.Equal(t, "audio/mpeg", track.Asset.MimeType)
	assert.True(t, track.Asset.HasEnvelope())
	require.Len(t, res.Audiobooks, 1)
	assert.Equal(t, "a1", res.Audiobooks[0].Ref)

	assert.Equal(t, 3, files.len())
	repo.AssertExpectations(t)
}

func TestCreateBook_Validation(t *testing.T) {
	tests := []struct {
		name  string
		form  *multipart.Form
		field string
		rule  string
	}{
		{
			name:  "missing title",
			form:  newForm(nil, bookPart("x")),
			field: "title", rule: "required",
		},
		{
			name:  "negative price",
			form:  newForm(map[string]string{"title": "T", "price": "-1"}, bookPart("x")),
			field: "price", rule: "gte",
		},
		{
			name:  "non numeric price",
			form:  newForm(map[string]string{"title": "T", "price": "ten"}, bookPart("x")),
			field: "price", rule: "numeric",
		},
		{
			name:  "missing file",
			form:  newForm(map[string]string{"title": "T"}),
			field: "file", rule: "required",
		},
		{
			name:  "broken audiobook list",
			form:  newForm(map[string]string{"title": "T", "audiobooks": "[{"}, bookPart("x")),
			field: "audiobooks", rule: "json",
		},
		{
			name:  "duplicate track ids",
			form:  newForm(map[string]string{"title": "T", "audiobooks": `[{"id":"a"},{"id":"a"}]`}, bookPart("x")),
			field: "audiobooks", rule: "unique",
		},
		{
			name:  "listed track without part",
			form:  newForm(map[string]string{"title": "T", "audiobooks": `[{"id":"a"}]`}, bookPart("x")),
			field: "audiobook_a", rule: "required",
		},
		{
			name: "unlisted track part",
			form: newForm(map[string]string{"title": "T"}, bookPart("x"),
				&multipart.FilePart{Name: "audiobook_z", FileName: "z.mp3", Data: []byte{1}}),
			field: "audiobook_z", rule: "not_listed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockContentRepository)
			files := newMemFiles()
			svc := NewService(repo, files, newCrypto(t), Options{})

			_, err := svc.CreateBook(context.Background(), tt.form)
			require.ErrorIs(t, err, ErrValidation)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.rule, verr.Fields[tt.field])
			assert.Zero(t, files.len())
			repo.AssertNotCalled(t, "CreateBook", mock.Anything, mock.Anything)
		})
	}
}

func TestCreateBook_PartLimits(t *testing.T) {
	repo := new(MockContentRepository)
	files := newMemFiles()
	svc := NewService(repo, files, newCrypto(t), Options{Limits: Limits{MaxFile: 10, MaxCover: 8}})

	_, err := svc.CreateBook(context.Background(), newForm(map[string]string{"title": "T"}, bookPart("eleven byte")))
	require.ErrorIs(t, err, ErrFileTooLarge)
	var perr *PartError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "file", perr.Part)

	_, err = svc.CreateBook(context.Background(), newForm(map[string]string{"title": "T"}, bookPart("")))
	assert.ErrorIs(t, err, ErrEmptyFile)

	_, err = svc.CreateBook(context.Background(), newForm(map[string]string{"title": "T"}, bookPart("ok"),
		&multipart.FilePart{Name: "cover", FileName: "c.png", Data: pngBytes}))
	assert.ErrorIs(t, err, ErrFileTooLarge)

	assert.Zero(t, files.len())
}

func TestCreateBook_CoverMustBeImage(t *testing.T) {
	repo := new(MockContentRepository)
	svc := NewService(repo, newMemFiles(), newCrypto(t), Options{})

	// the declared type is not trusted for covers
	form := newForm(map[string]string{"title": "T"}, bookPart("ok"),
		&multipart.FilePart{Name: "cover", FileName: "c.png", ContentType: "image/png", Data: []byte("not an image")})

	_, err := svc.CreateBook(context.Background(), form)
	assert.ErrorIs(t, err, ErrInvalidMimeType)
}

func TestCreateBook_RollbackOnPersistFailure(t *testing.T) {
	repo := new(MockContentRepository)
	files := newMemFiles()
	svc := NewService(repo, files, newCrypto(t), Options{})

	repo.On("CreateBook", mock.Anything, mock.Anything).Return(errors.New("db down"))

	_, err := svc.CreateBook(context.Background(), fullForm())
	require.Error(t, err)
	assert.Zero(t, files.len())
}

func TestCreateBook_RollbackOnStorageFailure(t *testing.T) {
	repo := new(MockContentRepository)
	files := newMemFiles()
	files.failAt = 2
	svc := NewService(repo, files, newCrypto(t), Options{})

	_, err := svc.CreateBook(context.Background(), fullForm())
	require.Error(t, err)
	assert.Zero(t, files.len())
	repo.AssertNotCalled(t, "CreateBook", mock.Anything, mock.Anything)
}

func TestCreateBook_CoverToBlobStore(t *testing.T) {
	repo := new(MockContentRepository)
	files := newMemFiles()
	blobs := &memBlobs{}
	cache := &recordingCache{}
	svc := NewService(repo, files, newCrypto(t), Options{Blobs: blobs, Cache: cache})

	var saved *content.Book
	repo.On("CreateBook", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { saved = args.Get(1).(*content.Book) }).
		Return(nil)

	_, err := svc.CreateBook(context.Background(), fullForm())
	require.NoError(t, err)

	key := "covers/" + saved.Cover.AssetID + ".png"
	assert.Equal(t, "blob:"+key, saved.Cover.Location)
	assert.Equal(t, pngBytes, blobs.puts[key])
	assert.Equal(t, []string{key}, cache.keys)
	// book file and audiobook only
	assert.Equal(t, 2, files.len())
}

func TestCreateBook_BlobStoreFailureRollsBack(t *testing.T) {
	repo := new(MockContentRepository)
	files := newMemFiles()
	svc := NewService(repo, files, newCrypto(t), Options{Blobs: &memBlobs{err: errors.New("s3 down")}})

	_, err := svc.CreateBook(context.Background(), fullForm())
	require.Error(t, err)
	assert.Zero(t, files.len())
}

func TestCreateBook_PersistFailureDeletesCoverBlob(t *testing.T) {
	repo := new(MockContentRepository)
	files := newMemFiles()
	blobs := &memBlobs{}
	cache := &recordingCache{}
	svc := NewService(repo, files, newCrypto(t), Options{Blobs: blobs, Cache: cache})

	repo.On("CreateBook", mock.Anything, mock.Anything).Return(errors.New("db down"))

	_, err := svc.CreateBook(context.Background(), fullForm())
	require.Error(t, err)
	assert.Zero(t, files.len())
	require.Len(t, blobs.deleted, 1)
	assert.Empty(t, blobs.puts)
	assert.Empty(t, cache.keys)
}

func TestCreateBook_AudiobookFailureDeletesCoverBlob(t *testing.T) {
	repo := new(MockContentRepository)
	files := newMemFiles()
	// book file is save 1, the cover goes remote, the audiobook is save 2
	files.failAt = 2
	blobs := &memBlobs{}
	cache := &recordingCache{}
	svc := NewService(repo, files, newCrypto(t), Options{Blobs: blobs, Cache: cache})

	_, err := svc.CreateBook(context.Background(), fullForm())
	require.Error(t, err)
	assert.Zero(t, files.len())
	assert.Len(t, blobs.deleted, 1)
	assert.Empty(t, blobs.puts)
	assert.Empty(t, cache.keys)
	repo.AssertNotCalled(t, "CreateBook", mock.Anything, mock.Anything)
}

func TestCreateProposal_MembersOnly(t *testing.T) {
	repo := new(MockContentRepository)
	files := newMemFiles()
	svc := NewService(repo, files, newCrypto(t), Options{})
	ctx := context.Background()

	_, err := svc.CreateProposal(ctx, 0, fullForm())
	assert.ErrorIs(t, err, ErrUnauthenticated)

	repo.On("IsMember", mock.Anything, int64(5)).Return(false, nil).Once()
	_, err = svc.CreateProposal(ctx, 5, fullForm())
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Zero(t, files.len())

	var saved *content.Proposal
	repo.On("IsMember", mock.Anything, int64(6)).Return(true, nil).Once()
	repo.On("CreateProposal", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { saved = args.Get(1).(*content.Proposal) }).
		Return(nil)

	res, err := svc.CreateProposal(ctx, 6, fullForm())
	require.NoError(t, err)
	assert.Equal(t, res.ID, saved.ID)
	assert.Equal(t, int64(6), saved.SubmittedBy)
	assert.Equal(t, content.ProposalVoting, saved.Status)
	assert.True(t, saved.File.HasEnvelope())
	repo.AssertExpectations(t)
}
