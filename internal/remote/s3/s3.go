// Package s3 implements remote.Store on any S3-compatible object store.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"leaflet-sync/internal/remote"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	// Prefix is prepended to every object key, allowing several replica
	// sets to share one bucket.
	Prefix string
	UseSSL bool
}

type Store struct {
	client *minio.Client
	bucket string
	prefix string
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %q does not exist", cfg.Bucket)
	}

	return &Store{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

func (s *Store) GetIndex(ctx context.Context, name string) ([]byte, error) {
	return s.getObject(ctx, s.key(name))
}

func (s *Store) PutIndex(ctx context.Context, name string, data []byte) error {
	return s.putObject(ctx, s.key(name), data, "application/json")
}

func (s *Store) GetPageContent(ctx context.Context, id string) (string, error) {
	data, err := s.getObject(ctx, s.contentKey(id))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *Store) PutPageContent(ctx context.Context, id string, content string) error {
	return s.putObject(ctx, s.contentKey(id), []byte(content), "text/plain; charset=utf-8")
}

func (s *Store) DeletePageContent(ctx context.Context, id string) error {
	err := s.client.RemoveObject(ctx, s.bucket, s.contentKey(id), minio.RemoveObjectOptions{})
	if err != nil && !isNoSuchKey(err) {
		return fmt.Errorf("failed to remove object: %w", err)
	}
	return nil
}

func (s *Store) ListPageContentIDs(ctx context.Context) ([]string, error) {
	prefix := s.key("pages") + "/"

	var ids []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", obj.Err)
		}
		name := path.Base(obj.Key)
		if !strings.HasSuffix(name, ".txt") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".txt"))
	}
	return ids, nil
}

func (s *Store) Clear(ctx context.Context) error {
	opts := minio.ListObjectsOptions{Recursive: true}
	if s.prefix != "" {
		opts.Prefix = s.prefix + "/"
	}

	for obj := range s.client.ListObjects(ctx, s.bucket, opts) {
		if obj.Err != nil {
			return fmt.Errorf("failed to list objects: %w", obj.Err)
		}
		if err := s.client.RemoveObject(ctx, s.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("failed to remove object %s: %w", obj.Key, err)
		}
	}
	return nil
}

func (s *Store) getObject(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, translateError(err)
	}
	defer func() {
		_ = obj.Close()
	}()

	// GetObject is lazy, so a missing key only surfaces on read.
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, translateError(err)
	}
	return data, nil
}

func (s *Store) putObject(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("failed to put object: %w", err)
	}
	return nil
}

func (s *Store) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

func (s *Store) contentKey(id string) string {
	return s.key(path.Join("pages", id+".txt"))
}

func translateError(err error) error {
	if isNoSuchKey(err) {
		return remote.ErrNotFound
	}
	return fmt.Errorf("failed to get object: %w", err)
}

func isNoSuchKey(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey"
}

var _ remote.Store = (*Store)(nil)
