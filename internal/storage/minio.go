package storage

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOStorage keeps uploads as objects in a bucket. References are public
// object URLs: {publicBaseURL}/{bucket}/{key}.
type MinIOStorage struct {
	client *minio.Client
	bucket string
	base   string
	gate   Gate
	now    func() time.Time
}

// NewMinIOStorage creates a new MinIO storage client and ensures the bucket exists.
func NewMinIOStorage(cfg *MinIOConfig, maxBytes int64) (*MinIOStorage, error) {
	if cfg == nil || cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio config missing")
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio new: %w", err)
	}
	s := &MinIOStorage{
		client: mc,
		bucket: cfg.Bucket,
		base:   publicBase(cfg),
		gate:   Gate{MaxBytes: maxBytes},
		now:    time.Now,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mc.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		// ignore "already exists" style errors
		exist, xerr := mc.BucketExists(ctx, s.bucket)
		if xerr != nil || !exist {
			return nil, fmt.Errorf("minio bucket ensure: %w", err)
		}
	}
	return s, nil
}

func publicBase(cfg *MinIOConfig) string {
	if cfg.PublicBaseURL != "" {
		return strings.TrimRight(cfg.PublicBaseURL, "/")
	}
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	return scheme + "://" + cfg.Endpoint
}

func (s *MinIOStorage) refPrefix() string {
	return s.base + "/" + s.bucket + "/"
}

func (s *MinIOStorage) Put(ctx context.Context, u Upload) (string, error) {
	if err := s.gate.Check(u); err != nil {
		return "", err
	}
	key := objectName(u.Name, s.now())
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(u.Data), int64(len(u.Data)), minio.PutObjectOptions{ContentType: u.ContentType})
	if err != nil {
		return "", fmt.Errorf("minio put %s: %w", key, err)
	}
	return s.refPrefix() + key, nil
}

func (s *MinIOStorage) Owns(ref string) bool {
	return strings.HasPrefix(ref, s.refPrefix())
}

func (s *MinIOStorage) key(ref string) (string, bool) {
	k := strings.TrimPrefix(ref, s.refPrefix())
	if k == "" || strings.Contains(k, "..") {
		return "", false
	}
	return k, true
}

func (s *MinIOStorage) Delete(ctx context.Context, ref string) error {
	if !s.Owns(ref) {
		return nil
	}
	key, ok := s.key(ref)
	if !ok {
		return fmt.Errorf("%w: %s", ErrBlobNotFound, ref)
	}
	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return fmt.Errorf("%w: %s", ErrBlobNotFound, ref)
		}
		return fmt.Errorf("minio stat %s: %w", key, err)
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("minio remove %s: %w", key, err)
	}
	return nil
}

func (s *MinIOStorage) List(ctx context.Context) ([]string, error) {
	var out []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("minio list: %w", obj.Err)
		}
		out = append(out, s.refPrefix()+obj.Key)
	}
	sort.Strings(out)
	return out, nil
}
