package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"taskhub/internal/config"
	"taskhub/internal/ids"
)

// MaxAvatarBytes caps mirrored profile pictures.
const MaxAvatarBytes = 5 << 20

type ObjectStore struct {
	client *minio.Client
	cfg    config.StorageConfig
	base   string
}

func NewObjectStore(cfg config.StorageConfig) (*ObjectStore, error) {
	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL

	if strings.HasPrefix(endpoint, "http") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("parse endpoint: %w", err)
		}
		endpoint = u.Host
		useSSL = u.Scheme == "https"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}

	return &ObjectStore{
		client: client,
		cfg:    cfg,
		base:   publicBase(cfg.Endpoint, useSSL),
	}, nil
}

func publicBase(endpoint string, useSSL bool) string {
	base := strings.TrimSuffix(endpoint, "/")
	if strings.HasPrefix(base, "http://") || strings.HasPrefix(base, "https://") {
		return base
	}
	if useSSL {
		return "https://" + base
	}
	return "http://" + base
}

func (s *ObjectStore) EnsureBuckets(ctx context.Context) error {
	bucket := s.cfg.BucketAvatars
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("bucket exists %s: %w", bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
			return fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}
	return nil
}

// PutAvatar stores an image for userID and returns its public URL. The
// payload must sniff as a raster image.
func (s *ObjectStore) PutAvatar(ctx context.Context, userID string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyObject
	}
	if len(data) > MaxAvatarBytes {
		return "", ErrTooLarge
	}
	kind, err := DetectImage(data)
	if err != nil {
		return "", err
	}

	key := avatarKey(userID, kind)
	_, err = s.client.PutObject(ctx, s.cfg.BucketAvatars, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  kind.MIME,
		CacheControl: "public, max-age=86400",
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return s.PublicURL(key), nil
}

func avatarKey(userID string, kind ImageKind) string {
	return path.Join("avatars", userID, ids.New()+"."+kind.Ext)
}

func (s *ObjectStore) PublicURL(objectKey string) string {
	return fmt.Sprintf("%s/%s/%s", s.base, s.cfg.BucketAvatars, objectKey)
}

// Ping checks the avatars bucket is reachable.
func (s *ObjectStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.cfg.BucketAvatars)
	return err
}
