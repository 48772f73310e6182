// Package s3 uploads dense hourly counts to S3-compatible object storage.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/couchcryptid/rides-hourly-etl/internal/adapter/parquet"
	"github.com/couchcryptid/rides-hourly-etl/internal/config"
	"github.com/couchcryptid/rides-hourly-etl/internal/domain"
)

type objectPutter interface {
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Uploader stores each batch as a parquet object. It implements pipeline.Sink.
type Uploader struct {
	client objectPutter
	bucket string
	prefix string
	logger *slog.Logger
}

// NewUploader creates a MinIO client for the configured endpoint.
func NewUploader(cfg *config.Config, logger *slog.Logger) (*Uploader, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return &Uploader{
		client: client,
		bucket: cfg.S3Bucket,
		prefix: cfg.S3Prefix,
		logger: logger,
	}, nil
}

// Store encodes the batch and uploads it, replacing any existing object.
func (u *Uploader) Store(ctx context.Context, batch domain.Batch) error {
	data, err := parquet.EncodeDenseCounts(batch.Rows)
	if err != nil {
		return err
	}

	key := u.Key(batch)
	_, err = u.client.PutObject(ctx, u.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/vnd.apache.parquet"})
	if err != nil {
		return fmt.Errorf("s3 put object %s: %w", key, err)
	}

	u.logger.Info("dense counts uploaded", "bucket", u.bucket, "key", key, "bytes", len(data))
	return nil
}

// Key is the object key of a batch under the configured prefix.
func (u *Uploader) Key(batch domain.Batch) string {
	return path.Join(u.prefix, batch.Name()+".parquet")
}
