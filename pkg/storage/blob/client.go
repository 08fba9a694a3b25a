// Package blob stores listing photos in S3-compatible object storage.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const defaultContentType = "application/octet-stream"

// Object identifies an uploaded blob.
type Object struct {
	Path string
	URL  string
}

type minioAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader *bytes.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

type minioClientWrapper struct{ c *minio.Client }

func (w minioClientWrapper) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	return w.c.BucketExists(ctx, bucketName)
}

func (w minioClientWrapper) MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error {
	return w.c.MakeBucket(ctx, bucketName, opts)
}

func (w minioClientWrapper) PutObject(ctx context.Context, bucketName, objectName string, reader *bytes.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	return w.c.PutObject(ctx, bucketName, objectName, reader, objectSize, opts)
}

func (w minioClientWrapper) RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error {
	return w.c.RemoveObject(ctx, bucketName, objectName, opts)
}

// Client puts and deletes objects in a single bucket.
type Client struct {
	api     minioAPI
	bucket  string
	baseURL *url.URL
}

// New connects to the configured endpoint and makes sure the bucket exists.
func New(ctx context.Context, cfg config.StorageConfig, logg *logger.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("storage endpoint is required")
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	base, err := publicBaseURL(cfg)
	if err != nil {
		return nil, err
	}

	client, err := NewWithAPI(ctx, minioClientWrapper{c: mc}, cfg.Bucket, base)
	if err != nil {
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "bucket", cfg.Bucket), "blob storage ready")
	}
	return client, nil
}

// NewWithAPI builds a client on an injected API, creating the bucket when missing.
func NewWithAPI(ctx context.Context, api minioAPI, bucket string, baseURL *url.URL) (*Client, error) {
	if bucket == "" {
		return nil, errors.New("storage bucket is required")
	}
	if baseURL == nil {
		return nil, errors.New("public base url is required")
	}
	c := &Client{api: api, bucket: bucket, baseURL: baseURL}
	if err := c.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket %s: %w", bucket, err)
	}
	return c, nil
}

func publicBaseURL(cfg config.StorageConfig) (*url.URL, error) {
	raw := strings.TrimSpace(cfg.PublicBaseURL)
	if raw == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		raw = fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.Bucket)
	}
	u, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse public base url: %w", err)
	}
	return u, nil
}

func (c *Client) ensureBucket(ctx context.Context) error {
	exists, err := c.api.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := c.api.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}

// Put uploads data under objectPath and returns its public URL. Existing
// objects are overwritten.
func (c *Client) Put(ctx context.Context, objectPath string, data []byte, contentType string) (Object, error) {
	clean := strings.TrimPrefix(path.Clean("/"+objectPath), "/")
	if clean == "" {
		return Object{}, errors.New("object path is required")
	}
	if contentType == "" {
		contentType = defaultContentType
	}

	_, err := c.api.PutObject(ctx, c.bucket, clean, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return Object{}, fmt.Errorf("put object %s: %w", clean, err)
	}
	return Object{Path: clean, URL: c.URL(clean)}, nil
}

// Delete removes objectPath. Missing objects are not an error.
func (c *Client) Delete(ctx context.Context, objectPath string) error {
	if err := c.api.RemoveObject(ctx, c.bucket, objectPath, minio.RemoveObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil
		}
		return fmt.Errorf("remove object %s: %w", objectPath, err)
	}
	return nil
}

// URL returns the public URL of objectPath.
func (c *Client) URL(objectPath string) string {
	return c.baseURL.JoinPath(strings.Split(objectPath, "/")...).String()
}

// Ping checks that the bucket is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.BucketExists(ctx, c.bucket); err != nil {
		return fmt.Errorf("blob storage unreachable: %w", err)
	}
	return nil
}
