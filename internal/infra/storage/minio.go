package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const defaultPresignTTL = time.Hour

type Store struct {
	client     *minio.Client
	bucketName string
	region     string
	presignTTL time.Duration
}

// New buat koneksi MinIO
func New(ctx context.Context, endpoint, region, bucket, accessKey, secretKey string, useSSL bool, presignTTL time.Duration) (*Store, error) {
	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, err
	}

	// pastikan bucket ada
	exists, err := cli.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := cli.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
			return nil, err
		}
		log.WithField("bucket", bucket).Info("created bucket")
	}
	if presignTTL <= 0 {
		presignTTL = defaultPresignTTL
	}

	return &Store{client: cli, bucketName: bucket, region: region, presignTTL: presignTTL}, nil
}

// ResolveAudio implements scans.AudioResolver. http(s) URLs pass through;
// anything else is an object key in the bucket and gets a presigned GET URL.
func (s *Store) ResolveAudio(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if IsRemoteURL(ref) {
		return ref, nil
	}
	key := strings.TrimPrefix(ref, "/")
	key = strings.TrimPrefix(key, s.bucketName+"/")
	if key == "" {
		return "", fmt.Errorf("empty audio object key")
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucketName, key, s.presignTTL, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presigning %s: %w", key, err)
	}
	return u.String(), nil
}

// ArchiveResult implements scans.ResultArchive.
func (s *Store) ArchiveResult(ctx context.Context, key string, payload []byte) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucketName, key, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: contentType(key),
	})
	if err != nil {
		return "", err
	}

	// URL publik (jika bucket public), kalau private harus generate presigned URL
	return fmt.Sprintf("%s/%s/%s", s.client.EndpointURL().String(), s.bucketName, key), nil
}

// Ping checks the bucket exists; wired as the storage health check.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucketName)
	return err
}

// IsRemoteURL reports whether ref is already fetchable over http(s).
func IsRemoteURL(ref string) bool {
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// mimeType sederhana
func contentType(key string) string {
	switch {
	case strings.HasSuffix(key, ".json"):
		return "application/json"
	case strings.HasSuffix(key, ".mp3"):
		return "audio/mpeg"
	case strings.HasSuffix(key, ".wav"):
		return "audio/wav"
	case strings.HasSuffix(key, ".flac"):
		return "audio/flac"
	default:
		return "application/octet-stream"
	}
}
