package storage

import (
	"context"
	"strings"
	"testing"

	"example.com/backstage/services/partyup/internal/apperrors"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockObjectAPI struct {
	mock.Mock
}

func (m *MockObjectAPI) PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.PutObjectOutput)
	return out, args.Error(1)
}

func (m *MockObjectAPI) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.DeleteObjectOutput)
	return out, args.Error(1)
}

func TestUpload(t *testing.T) {
	api := new(MockObjectAPI)
	api.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return *in.Bucket == "partyup" && strings.HasPrefix(*in.Key, "event-media/") &&
			strings.HasSuffix(*in.Key, ".jpg") && *in.ContentType == "image/jpeg"
	})).Return(&s3.PutObjectOutput{}, nil)

	store := NewS3StoreWithClient(api, "partyup", "https://cdn.example.com")
	url, key, err := store.Upload(context.Background(), []byte("img"), "image/jpeg", PathEventMedia)

	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/"+key, url)
	api.AssertExpectations(t)
}

func TestUploadFailureIsBlobStorageError(t *testing.T) {
	api := new(MockObjectAPI)
	api.On("PutObject", mock.Anything, mock.Anything).Return(nil, errors.New("timeout"))

	store := NewS3StoreWithClient(api, "partyup", "https://cdn.example.com")
	_, _, err := store.Upload(context.Background(), []byte("img"), "image/png", PathUserProfiles)

	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	require.Equal(t, apperrors.KindStorage, appErr.Kind)
	require.Equal(t, apperrors.BackendBlob, appErr.Backend)
}

func TestDelete(t *testing.T) {
	api := new(MockObjectAPI)
	api.On("DeleteObject", mock.Anything, mock.MatchedBy(func(in *s3.DeleteObjectInput) bool {
		return *in.Key == "event-media/old.jpg"
	})).Return(&s3.DeleteObjectOutput{}, nil)

	store := NewS3StoreWithClient(api, "partyup", "https://cdn.example.com")
	require.NoError(t, store.Delete(context.Background(), "event-media/old.jpg"))
	api.AssertExpectations(t)
}

func TestObjectKey(t *testing.T) {
	key := ObjectKey("/user-profiles/", "video/mp4")
	require.True(t, strings.HasPrefix(key, "user-profiles/"))
	require.True(t, strings.HasSuffix(key, ".mp4"))
}
