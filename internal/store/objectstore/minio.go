// Package objectstore implements the blob store interface on MinIO
// (S3-compatible).
package objectstore

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"agenthub/internal/store"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config holds MinIO connection options.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Secure    bool
}

// Client wraps a MinIO connection. Objects are immutable: uploading
// identical bytes to an existing path is a no-op, different bytes are
// rejected.
type Client struct {
	mc *minio.Client
}

// New connects to MinIO and ensures the screenshot and binary buckets exist.
func New(ctx context.Context, cfg Config) (*Client, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	c := &Client{mc: mc}
	for _, bucket := range []string{store.BucketScreenshots, store.BucketBinaries} {
		exists, err := mc.BucketExists(ctx, bucket)
		if err != nil {
			return nil, store.Unavailablef("check bucket %s: %v", bucket, err)
		}
		if !exists {
			if err := mc.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
				// Racing creators are fine; re-check before failing.
				if ok, checkErr := mc.BucketExists(ctx, bucket); checkErr != nil || !ok {
					return nil, store.Unavailablef("create bucket %s: %v", bucket, err)
				}
			}
		}
	}
	return c, nil
}

// UploadObject stores a blob under (bucket, objectPath). Overwrite of an
// existing path with different content returns ErrConflict; a byte-identical
// replay succeeds without a second write.
func (c *Client) UploadObject(ctx context.Context, bucket, objectPath string, data []byte, contentType string) error {
	if objectPath == "" || strings.HasPrefix(objectPath, "/") {
		return store.Validationf("invalid object path %q", objectPath)
	}

	sum := md5.Sum(data)
	digest := hex.EncodeToString(sum[:])

	info, err := c.mc.StatObject(ctx, bucket, objectPath, minio.StatObjectOptions{})
	if err == nil {
		if strings.Trim(info.ETag, `"`) == digest && info.Size == int64(len(data)) {
			return nil
		}
		return store.Conflictf("object %s/%s already exists with different content", bucket, objectPath)
	}
	if !isNoSuchKey(err) {
		return store.Unavailablef("stat %s/%s: %v", bucket, objectPath, err)
	}

	_, err = c.mc.PutObject(ctx, bucket, objectPath, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return store.Unavailablef("put %s/%s: %v", bucket, objectPath, err)
	}
	return nil
}

// GetObject reads a blob back.
func (c *Client) GetObject(ctx context.Context, bucket, objectPath string) ([]byte, error) {
	obj, err := c.mc.GetObject(ctx, bucket, objectPath, minio.GetObjectOptions{})
	if err != nil {
		return nil, store.Unavailablef("get %s/%s: %v", bucket, objectPath, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if isNoSuchKey(err) {
			return nil, store.NotFoundf("object %s/%s", bucket, objectPath)
		}
		return nil, store.Unavailablef("read %s/%s: %v", bucket, objectPath, err)
	}
	return data, nil
}

// StatObject reports the stored size of a blob.
func (c *Client) StatObject(ctx context.Context, bucket, objectPath string) (int64, error) {
	info, err := c.mc.StatObject(ctx, bucket, objectPath, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return 0, store.NotFoundf("object %s/%s", bucket, objectPath)
		}
		return 0, store.Unavailablef("stat %s/%s: %v", bucket, objectPath, err)
	}
	return info.Size, nil
}

// PresignGet returns a time-limited download URL for the object.
func (c *Client) PresignGet(ctx context.Context, bucket, objectPath string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	u, err := c.mc.PresignedGetObject(ctx, bucket, objectPath, ttl, nil)
	if err != nil {
		return "", store.Unavailablef("presign %s/%s: %v", bucket, objectPath, err)
	}
	return u.String(), nil
}

func isNoSuchKey(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == 404
}
