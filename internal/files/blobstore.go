package files

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// BlobStore is the narrow surface Service needs over an S3-compatible
// object store. A nil BlobStore makes Service fall back to storing bytes
// directly on the kvstore.File record (used by tests and small deployments).
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// MinioBlobStore implements BlobStore over a minio-go client, grounded on
// siddhantprateek-reefline/pkg/storage's Upload/Download/Delete wrapper
// functions generalized into a bound client/bucket pair.
type MinioBlobStore struct {
	Client *minio.Client
	Bucket string
}

// NewMinioBlobStore connects to an S3-compatible endpoint and ensures the
// bucket exists.
func NewMinioBlobStore(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioBlobStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("files: create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("files: check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("files: create bucket: %w", err)
		}
	}

	return &MinioBlobStore{Client: client, Bucket: bucket}, nil
}

func (b *MinioBlobStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := b.Client.PutObject(ctx, b.Bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("files: put object %s: %w", key, err)
	}
	return nil
}

func (b *MinioBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := b.Client.GetObject(ctx, b.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("files: get object %s: %w", key, err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("files: read object %s: %w", key, err)
	}
	return data, nil
}

func (b *MinioBlobStore) Delete(ctx context.Context, key string) error {
	if err := b.Client.RemoveObject(ctx, b.Bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("files: remove object %s: %w", key, err)
	}
	return nil
}
