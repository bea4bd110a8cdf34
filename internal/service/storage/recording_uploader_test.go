package storage

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"counselmeet-backend/internal/domain"
)

type MockObjectStorage struct {
	mock.Mock
}

func (m *MockObjectStorage) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	args := m.Called(ctx, bucketName)
	return args.Bool(0), args.Error(1)
}

func (m *MockObjectStorage) MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error {
	args := m.Called(ctx, bucketName, opts)
	return args.Error(0)
}

func (m *MockObjectStorage) FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	args := m.Called(ctx, bucketName, objectName, filePath, opts)
	return args.Get(0).(minio.UploadInfo), args.Error(1)
}

func (m *MockObjectStorage) PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error) {
	args := m.Called(ctx, bucketName, objectName, expires, reqParams)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*url.URL), args.Error(1)
}

func newUploader(t *testing.T, store *MockObjectStorage) *RecordingUploader {
	t.Helper()
	store.On("BucketExists", mock.Anything, "recordings").Return(true, nil).Once()
	u, err := NewRecordingUploader(context.Background(), store, UploaderConfig{Bucket: "recordings"})
	require.NoError(t, err)
	return u
}

func TestNewRecordingUploader_CreatesBucket(t *testing.T) {
	store := new(MockObjectStorage)
	store.On("BucketExists", mock.Anything, "recordings").Return(false, nil)
	store.On("MakeBucket", mock.Anything, "recordings", mock.Anything).Return(nil)

	u, err := NewRecordingUploader(context.Background(), store, UploaderConfig{Bucket: "recordings"})

	require.NoError(t, err)
	assert.NotNil(t, u)
	store.AssertExpectations(t)
}

func TestNewRecordingUploader_BucketCheckFails(t *testing.T) {
	store := new(MockObjectStorage)
	store.On("BucketExists", mock.Anything, "recordings").Return(false, errors.New("connection refused"))

	_, err := NewRecordingUploader(context.Background(), store, UploaderConfig{Bucket: "recordings"})
	assert.Error(t, err)

	_, err = NewRecordingUploader(context.Background(), store, UploaderConfig{})
	assert.Error(t, err)
}

func TestObjectKey(t *testing.T) {
	rec := &domain.Recording{ID: "rec-1", RoomID: "room/../1", OutputPath: "/data/room/rec-1.mkv"}
	assert.Equal(t, "recordings/room_1/rec-1.mkv", ObjectKey(rec))

	rec.OutputPath = "/data/room/rec-1"
	assert.Equal(t, "recordings/room_1/rec-1.mp4", ObjectKey(rec))
}

func TestUpload(t *testing.T) {
	store := new(MockObjectStorage)
	u := newUploader(t, store)

	rec := &domain.Recording{ID: "rec-1", RoomID: "room-1", OutputPath: "/data/room-1/rec-1.mp4"}
	store.On("FPutObject", mock.Anything, "recordings", "recordings/room-1/rec-1.mp4", rec.OutputPath, mock.MatchedBy(func(opts minio.PutObjectOptions) bool {
		return opts.ContentType == "video/mp4" && opts.UserMetadata["recording-id"] == "rec-1"
	})).Return(minio.UploadInfo{Size: 10}, nil).Once()

	key, err := u.Upload(context.Background(), rec)

	require.NoError(t, err)
	assert.Equal(t, "recordings/room-1/rec-1.mp4", key)
	store.AssertExpectations(t)
}

func TestUpload_RetriesTransientFailure(t *testing.T) {
	store := new(MockObjectStorage)
	u := newUploader(t, store)

	rec := &domain.Recording{ID: "rec-2", RoomID: "room-1", OutputPath: "/data/room-1/rec-2.mp4"}
	store.On("FPutObject", mock.Anything, "recordings", mock.Anything, rec.OutputPath, mock.Anything).
		Return(minio.UploadInfo{}, errors.New("connection reset")).Once()
	store.On("FPutObject", mock.Anything, "recordings", mock.Anything, rec.OutputPath, mock.Anything).
		Return(minio.UploadInfo{Size: 10}, nil).Once()

	key, err := u.Upload(context.Background(), rec)

	require.NoError(t, err)
	assert.NotEmpty(t, key)
	store.AssertNumberOfCalls(t, "FPutObject", 2)
}

func TestUpload_MissingOutput(t *testing.T) {
	u := newUploader(t, new(MockObjectStorage))
	_, err := u.Upload(context.Background(), &domain.Recording{ID: "rec-3"})
	assert.Error(t, err)
}

func TestPresignedURL(t *testing.T) {
	store := new(MockObjectStorage)
	u := newUploader(t, store)

	signed, _ := url.Parse("https://minio.local/recordings/room-1/rec-1.mp4?X-Amz-Signature=abc")
	store.On("PresignedGetObject", mock.Anything, "recordings", "recordings/room-1/rec-1.mp4", 15*time.Minute, mock.MatchedBy(func(v url.Values) bool {
		return v.Get("response-content-disposition") == `attachment; filename="rec-1.mp4"`
	})).Return(signed, nil)

	link, err := u.PresignedURL(context.Background(), "recordings/room-1/rec-1.mp4")

	require.NoError(t, err)
	assert.Equal(t, signed.String(), link)
}
