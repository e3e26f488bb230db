package publish

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"roadrisk/internal/config"
	"roadrisk/internal/errors"
	"roadrisk/pkg/contracts/events"
)

// objectClient is the subset of *minio.Client the store uses
type objectClient interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// ObjectStore uploads output files to an S3-compatible bucket
type ObjectStore struct {
	client objectClient
	bucket string
	prefix string
	logger *slog.Logger
}

// NewObjectStore creates a MinIO client for the configured endpoint.
// It does not contact the server.
func NewObjectStore(cfg config.PublishConfig, logger *slog.Logger) (*ObjectStore, error) {
	if cfg.MinioEndpoint == "" || cfg.Bucket == "" {
		return nil, errors.NewConfigError("publish.minio_endpoint and publish.bucket are required", nil)
	}

	cli, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioSecure,
	})
	if err != nil {
		return nil, errors.NewConfigError("invalid minio endpoint", err)
	}
	return newObjectStore(cli, cfg.Bucket, cfg.KeyPrefix, logger), nil
}

func newObjectStore(client objectClient, bucket, prefix string, logger *slog.Logger) *ObjectStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ObjectStore{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: logger.With(slog.String("component", "object_store"), slog.String("bucket", bucket)),
	}
}

// EnsureBucket creates the bucket if it does not exist
func (s *ObjectStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return errors.NewSinkError("minio", fmt.Errorf("bucket check: %w", err))
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return errors.NewSinkError("minio", fmt.Errorf("make bucket: %w", err))
	}
	s.logger.InfoContext(ctx, "Bucket created")
	return nil
}

// Upload puts each file under <prefix>/<runID>/<base name>. Kinds maps a
// file path to the artifact kind reported back; unknown paths use the
// file extension.
func (s *ObjectStore) Upload(ctx context.Context, runID string, files []string, kinds map[string]string) ([]events.Artifact, error) {
	artifacts := make([]events.Artifact, 0, len(files))
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return artifacts, err
		}

		key := ObjectKey(s.prefix, runID, file)
		info, err := s.client.FPutObject(ctx, s.bucket, key, file, minio.PutObjectOptions{
			ContentType:  ContentType(file),
			UserMetadata: map[string]string{"run-id": runID},
		})
		if err != nil {
			return artifacts, errors.NewSinkError("minio", fmt.Errorf("upload %s: %w", file, err)).
				WithContext("key", key)
		}

		kind, ok := kinds[file]
		if !ok {
			kind = strings.TrimPrefix(filepath.Ext(file), ".")
		}
		artifacts = append(artifacts, events.Artifact{Kind: kind, Bucket: s.bucket, Key: key, Size: info.Size})

		s.logger.InfoContext(ctx, "Artifact uploaded",
			slog.String("key", key),
			slog.Int64("size", info.Size))
	}
	return artifacts, nil
}

// ObjectKey builds the object name for a file of a run
func ObjectKey(prefix, runID, file string) string {
	parts := make([]string, 0, 3)
	if prefix != "" {
		parts = append(parts, prefix)
	}
	if runID != "" {
		parts = append(parts, runID)
	}
	parts = append(parts, filepath.Base(file))
	return path.Join(parts...)
}

// ContentType returns the MIME type for an output file
func ContentType(file string) string {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".geojson":
		return "application/geo+json"
	case ".csv":
		return "text/csv"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".txt":
		return "text/plain"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
