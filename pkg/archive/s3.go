package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/helaix/flowstate/pkg/models"
)

// S3Config holds the connection settings for an S3-compatible object store
// (MinIO, AWS S3).
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// S3Archiver keeps offloaded snapshot payloads as JSON objects in a bucket,
// one object per snapshot under <workflow_id>/<snapshot_id>.json. Locations
// have the form s3://<bucket>/<object>.
type S3Archiver struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

// NewS3Archiver creates an archiver against an S3-compatible endpoint. The
// endpoint is not touched until the first request; call HealthCheck to verify
// the connection and create the bucket at startup.
func NewS3Archiver(config S3Config, logger *slog.Logger) (*S3Archiver, error) {
	if config.Endpoint == "" {
		return nil, errors.New("s3 archive endpoint is required")
	}

	if config.Bucket == "" {
		return nil, errors.New("s3 archive bucket is required")
	}

	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client: %w", err)
	}

	return &S3Archiver{
		client: client,
		bucket: config.Bucket,
		logger: logger.With("module", "s3_archiver", "bucket", config.Bucket),
	}, nil
}

func (a *S3Archiver) Offload(ctx context.Context, snapshot *models.StateSnapshot) (string, error) {
	data, err := encodePayload(snapshot)
	if err != nil {
		return "", err
	}

	objectName := fmt.Sprintf("%s/%s.json", snapshot.WorkflowID, snapshot.ID)

	_, err = a.client.PutObject(ctx, a.bucket, objectName, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return "", fmt.Errorf("failed to store snapshot payload in s3: %w", err)
	}

	return fmt.Sprintf("s3://%s/%s", a.bucket, objectName), nil
}

func (a *S3Archiver) Recall(ctx context.Context, snapshot *models.StateSnapshot) (*models.WorkflowState, error) {
	// The location carries its own bucket so entries written under an older
	// bucket configuration stay resolvable.
	bucket, objectName, err := parseS3Location(snapshot.ArchiveLocation)
	if err != nil {
		return nil, err
	}

	object, err := a.client.GetObject(ctx, bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch snapshot payload from s3: %w", err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot payload from s3: %w", err)
	}

	return decodePayload(snapshot, data)
}

// HealthCheck verifies the endpoint is reachable and creates the bucket when
// it does not exist yet.
func (a *S3Archiver) HealthCheck(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("failed to check s3 bucket: %w", err)
	}

	if !exists {
		err = a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("failed to create s3 bucket: %w", err)
		}

		a.logger.Info("Created archive bucket")
	}

	return nil
}

// Close satisfies Archiver; the s3 client holds no long-lived connection.
func (a *S3Archiver) Close() error {
	return nil
}

func parseS3Location(location string) (string, string, error) {
	trimmed, ok := strings.CutPrefix(location, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 archive location: %q", location)
	}

	bucket, objectName, ok := strings.Cut(trimmed, "/")
	if !ok || bucket == "" || objectName == "" {
		return "", "", fmt.Errorf("malformed s3 archive location: %q", location)
	}

	return bucket, objectName, nil
}
