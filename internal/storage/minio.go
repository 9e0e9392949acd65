// Package storage provides the optional S3-compatible snapshot archive.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/forgehub-io/forgehub/internal/aggregator"
	"github.com/forgehub-io/forgehub/internal/aggregator/model"
	"github.com/forgehub-io/forgehub/pkg/log"
	"github.com/forgehub-io/forgehub/pkg/options"
)

// SnapshotArchive uploads published snapshots to an S3-compatible bucket.
type SnapshotArchive struct {
	client *minio.Client
	bucket string
}

var _ aggregator.Archiver = (*SnapshotArchive)(nil)

// NewSnapshotArchive creates an archive backed by MinIO/S3.
func NewSnapshotArchive(opts *options.S3Options) (*SnapshotArchive, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &SnapshotArchive{
		client: client,
		bucket: opts.BucketName,
	}, nil
}

// EnsureBucket checks the archive bucket exists, creating it if needed.
func (a *SnapshotArchive) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		log.Info("Bucket does not exist, creating...", "bucket", a.bucket)
		if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return nil
}

// ArchiveSnapshot uploads one snapshot as a JSON object keyed by factory and
// capture time.
func (a *SnapshotArchive) ArchiveSnapshot(ctx context.Context, snap model.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	key := fmt.Sprintf("snapshots/%s/%s.json", snap.FactoryID, snap.TakenAt.UTC().Format(time.RFC3339))
	_, err = a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("upload snapshot %s: %w", key, err)
	}
	return nil
}
