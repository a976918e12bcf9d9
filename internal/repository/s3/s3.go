// Package s3 stores image blobs in an S3-compatible bucket (AWS S3, MinIO).
//
// Each image is one object under images/<id>. The owner linkage and image
// type travel as object user-metadata, so the bucket is self-describing and
// no side table is needed.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/sakif/book-club/internal/apperror"
	"github.com/sakif/book-club/internal/model"
	"github.com/sakif/book-club/internal/repository"
)

var _ repository.ImageStore = (*Store)(nil)

const objectPrefix = "images/"

// User-metadata keys.
const (
	metaUserID    = "User-Id"
	metaClubID    = "Club-Id"
	metaType      = "Image-Type"
	metaCreatedAt = "Created-At"
)

type Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

func (c Config) validate() error {
	if c.Endpoint == "" || c.Bucket == "" || c.AccessKey == "" || c.SecretKey == "" {
		return errors.New("s3: endpoint, bucket, access key and secret key are required")
	}
	return nil
}

type Store struct {
	client *minio.Client
	bucket string
}

// New connects and creates the bucket if it does not exist yet.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3: creating client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("s3: checking bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("s3: creating bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &Store{client: client, bucket: cfg.Bucket}, nil
}

func objectKey(id string) string {
	return objectPrefix + id
}

func (s *Store) PutImage(ctx context.Context, img *model.Image) error {
	meta := map[string]string{
		metaType:      string(img.Type),
		metaCreatedAt: img.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if img.UserID != "" {
		meta[metaUserID] = img.UserID
	}
	if img.ClubID != "" {
		meta[metaClubID] = img.ClubID
	}

	_, err := s.client.PutObject(ctx, s.bucket, objectKey(img.ID),
		bytes.NewReader(img.Data), int64(len(img.Data)),
		minio.PutObjectOptions{
			ContentType:  img.ContentType,
			UserMetadata: meta,
		},
	)
	if err != nil {
		return fmt.Errorf("s3: storing image %s: %w", img.ID, err)
	}
	return nil
}

func (s *Store) GetImage(ctx context.Context, id string) (*model.Image, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, objectKey(id), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("s3: getting image %s: %w", id, err)
	}
	defer obj.Close()

	info, err := obj.Stat()
	if err != nil {
		if isNotFound(err) {
			return nil, apperror.NotFound("image", id)
		}
		return nil, fmt.Errorf("s3: getting image %s: %w", id, err)
	}

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("s3: reading image %s: %w", id, err)
	}

	img := imageFromInfo(id, info)
	img.Data = data
	return &img, nil
}

// ListImages stats every object under the prefix. It is O(n) round trips;
// S3 listings do not carry user-metadata.
func (s *Store) ListImages(ctx context.Context) ([]model.Image, error) {
	images := []model.Image{}
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    objectPrefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("s3: listing images: %w", obj.Err)
		}

		info, err := s.client.StatObject(ctx, s.bucket, obj.Key, minio.StatObjectOptions{})
		if err != nil {
			if isNotFound(err) {
				continue // deleted mid-listing
			}
			return nil, fmt.Errorf("s3: stat %s: %w", obj.Key, err)
		}
		images = append(images, imageFromInfo(strings.TrimPrefix(obj.Key, objectPrefix), info))
	}

	slices.SortFunc(images, func(a, b model.Image) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return images, nil
}

func (s *Store) DeleteImage(ctx context.Context, id string) error {
	// RemoveObject succeeds on missing keys, so stat first to report 404s.
	if _, err := s.client.StatObject(ctx, s.bucket, objectKey(id), minio.StatObjectOptions{}); err != nil {
		if isNotFound(err) {
			return apperror.NotFound("image", id)
		}
		return fmt.Errorf("s3: stat image %s: %w", id, err)
	}
	if err := s.client.RemoveObject(ctx, s.bucket, objectKey(id), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("s3: deleting image %s: %w", id, err)
	}
	return nil
}

func imageFromInfo(id string, info minio.ObjectInfo) model.Image {
	img := model.Image{
		ID:          id,
		UserID:      metaValue(info.UserMetadata, metaUserID),
		ClubID:      metaValue(info.UserMetadata, metaClubID),
		Type:        model.ImageType(metaValue(info.UserMetadata, metaType)),
		ContentType: info.ContentType,
		Size:        info.Size,
		CreatedAt:   info.LastModified,
	}
	if raw := metaValue(info.UserMetadata, metaCreatedAt); raw != "" {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			img.CreatedAt = t
		}
	}
	return img
}

// metaValue looks a key up case-insensitively; providers differ in how they
// canonicalize user-metadata header names.
func metaValue(meta minio.StringMap, key string) string {
	for k, v := range meta {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}

// Close is a no-op; the minio client holds no long-lived connections of its own.
func (s *Store) Close() error { return nil }
