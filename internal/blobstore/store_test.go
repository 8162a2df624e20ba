package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockObjectAPI struct {
	mock.Mock
}

func (m *mockObjectAPI) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	args := m.Called(*in.Key)
	if out, ok := args.Get(0).(*s3.GetObjectOutput); ok {
		return out, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockObjectAPI) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, _ := io.ReadAll(in.Body)
	args := m.Called(*in.Key, body)
	return &s3.PutObjectOutput{}, args.Error(0)
}

func (m *mockObjectAPI) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	args := m.Called(*in.Key)
	return &s3.DeleteObjectOutput{}, args.Error(0)
}

func object(data string) *s3.GetObjectOutput {
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader([]byte(data)))}
}

func TestS3_FetchMany(t *testing.T) {
	api := new(mockObjectAPI)
	api.On("GetObject", "covers/a.jpg").Return(object("A"), nil)
	api.On("GetObject", "covers/missing.jpg").Return(nil, &types.NoSuchKey{})
	api.On("GetObject", "covers/flaky.jpg").Return(nil, errors.New("timeout"))

	store := newS3WithClient(api, "bucket", zap.NewNop())
	got, err := store.FetchMany(context.Background(), []string{"covers/a.jpg", "covers/missing.jpg", "covers/flaky.jpg"})
	require.NoError(t, err)

	assert.Equal(t, map[string][]byte{"covers/a.jpg": []byte("A")}, got)
	api.AssertExpectations(t)
}

func TestS3_FetchManyAllFailed(t *testing.T) {
	api := new(mockObjectAPI)
	api.On("GetObject", mock.Anything).Return(nil, errors.New("connection refused"))

	store := newS3WithClient(api, "bucket", zap.NewNop())
	_, err := store.FetchMany(context.Background(), []string{"a", "b"})
	assert.Error(t, err)
}

func TestS3_Put(t *testing.T) {
	api := new(mockObjectAPI)
	api.On("PutObject", "covers/x.png", []byte("png")).Return(nil)

	store := newS3WithClient(api, "bucket", zap.NewNop())
	require.NoError(t, store.Put(context.Background(), "covers/x.png", []byte("png"), "image/png"))
	assert.ErrorIs(t, store.Put(context.Background(), "../x", nil, ""), ErrInvalidKey)
	api.AssertExpectations(t)
}

func TestS3_Delete(t *testing.T) {
	api := new(mockObjectAPI)
	api.On("DeleteObject", "covers/x.png").Return(nil)
	api.On("DeleteObject", "covers/gone.png").Return(&types.NoSuchKey{})
	api.On("DeleteObject", "covers/locked.png").Return(errors.New("access denied"))

	store := newS3WithClient(api, "bucket", zap.NewNop())
	ctx := context.Background()
	require.NoError(t, store.Delete(ctx, "covers/x.png"))
	require.NoError(t, store.Delete(ctx, "covers/gone.png"))
	assert.Error(t, store.Delete(ctx, "covers/locked.png"))
	assert.ErrorIs(t, store.Delete(ctx, "../x"), ErrInvalidKey)
	api.AssertExpectations(t)
}

func TestDir_PutAndFetch(t *testing.T) {
	d, err := NewDir(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, d.Put(ctx, "covers/1.jpg", []byte("jpeg"), "image/jpeg"))

	got, err := d.FetchMany(ctx, []string{"covers/1.jpg", "covers/2.jpg", "../etc/passwd"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"covers/1.jpg": []byte("jpeg")}, got)

	require.NoError(t, d.Delete(ctx, "covers/1.jpg"))
	require.NoError(t, d.Delete(ctx, "covers/1.jpg"))
	got, err = d.FetchMany(ctx, []string{"covers/1.jpg"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestValidateKey(t *testing.T) {
	for _, key := range []string{"a", "covers/a.jpg", "AgACAgIAAxkBAAIB"} {
		assert.NoError(t, ValidateKey(key), key)
	}
	for _, key := range []string{"", "/abs", "a//b", "../up", "a/./b", `a\b`} {
		assert.ErrorIs(t, ValidateKey(key), ErrInvalidKey, key)
	}
}
