package storage

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"counselmeet-backend/internal/domain"
	"counselmeet-backend/pkg/constants"
	"counselmeet-backend/pkg/logger"
	"counselmeet-backend/pkg/metrics"
	"counselmeet-backend/pkg/resilience"
	"counselmeet-backend/pkg/sanitize"
)

// ObjectStorage is the subset of the MinIO client the uploader needs
type ObjectStorage interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
}

// NewMinioClient connects to MinIO with static credentials
func NewMinioClient(endpoint, accessKey, secretKey string, useSSL bool) (*minio.Client, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}
	return client, nil
}

// UploaderConfig tunes the uploader
type UploaderConfig struct {
	Bucket string
	// UploadTimeout bounds one upload independently of the caller's deadline
	UploadTimeout time.Duration
	URLExpiry     time.Duration
}

// RecordingUploader ships finished recordings to object storage
type RecordingUploader struct {
	storage ObjectStorage
	breaker *resilience.Breaker
	cfg     UploaderConfig
}

// NewRecordingUploader creates the uploader, creating the bucket when missing
func NewRecordingUploader(ctx context.Context, storage ObjectStorage, cfg UploaderConfig) (*RecordingUploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("recording bucket is required")
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = constants.RecordingUploadTimeout
	}
	if cfg.URLExpiry <= 0 {
		cfg.URLExpiry = constants.PresignedURLExpiry
	}

	exists, err := storage.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := storage.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &RecordingUploader{
		storage: storage,
		breaker: resilience.NewBreaker(resilience.DefaultConfig("minio")),
		cfg:     cfg,
	}, nil
}

// ObjectKey is where a recording is stored: recordings/<room_id>/<recording_id><ext>
func ObjectKey(rec *domain.Recording) string {
	ext := filepath.Ext(rec.OutputPath)
	if ext == "" {
		ext = ".mp4"
	}
	return fmt.Sprintf("recordings/%s/%s%s",
		sanitize.ObjectKeySegment(rec.RoomID),
		sanitize.ObjectKeySegment(rec.ID),
		ext)
}

// Upload copies the local output file and returns its object key
func (u *RecordingUploader) Upload(ctx context.Context, rec *domain.Recording) (string, error) {
	if rec.OutputPath == "" {
		return "", fmt.Errorf("recording %s has no output file", rec.ID)
	}
	key := ObjectKey(rec)

	// Uploads outlive the background job deadline; they get their own bound.
	uploadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), u.cfg.UploadTimeout)
	defer cancel()

	var info minio.UploadInfo
	err := u.breaker.Execute(uploadCtx, "upload_recording", func(ctx context.Context) error {
		var err error
		info, err = u.storage.FPutObject(ctx, u.cfg.Bucket, key, rec.OutputPath, minio.PutObjectOptions{
			ContentType: "video/mp4",
			UserMetadata: map[string]string{
				"room-id":      rec.RoomID,
				"recording-id": rec.ID,
			},
		})
		return err
	})
	if err != nil {
		metrics.RecordingUploadsTotal.WithLabelValues("failed").Inc()
		return "", fmt.Errorf("failed to upload recording %s: %w", rec.ID, err)
	}

	metrics.RecordingUploadsTotal.WithLabelValues("completed").Inc()
	metrics.RecordingUploadBytes.Add(float64(info.Size))
	logger.Info("Recording uploaded",
		zap.String("room_id", rec.RoomID),
		zap.String("recording_id", rec.ID),
		zap.String("object_key", key),
		zap.Int64("size", info.Size))

	return key, nil
}

// PresignedURL returns a time-limited download link for an uploaded recording
func (u *RecordingUploader) PresignedURL(ctx context.Context, objectKey string) (string, error) {
	params := url.Values{}
	params.Set("response-content-disposition", "attachment; filename=\""+filepath.Base(objectKey)+"\"")

	presigned, err := u.storage.PresignedGetObject(ctx, u.cfg.Bucket, objectKey, u.cfg.URLExpiry, params)
	if err != nil {
		return "", fmt.Errorf("failed to generate download URL: %w", err)
	}
	return presigned.String(), nil
}

// Ping checks that the bucket is reachable
func (u *RecordingUploader) Ping(ctx context.Context) error {
	_, err := u.storage.BucketExists(ctx, u.cfg.Bucket)
	return err
}
