package minio

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"certification-service/internal/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioClient wraps the MinIO client used for rendered certification
// documents.
type MinioClient struct {
	client *minio.Client
	config config.MinioConfig
}

// NewMinioClient initializes a MinIO client and ensures the document bucket
// exists.
func NewMinioClient(cfg config.MinioConfig) (*MinioClient, error) {
	endpoint := strings.TrimPrefix(cfg.MinioURL, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")

	isSecure, err := strconv.ParseBool(cfg.MinioSecure)
	if err != nil {
		log.Printf("Invalid value for MinIO secure flag: %v. Defaulting to false.", err)
		isSecure = false
	}

	minioClient, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: isSecure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err = minioClient.ListBuckets(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to MinIO server: %w", err)
	}

	mc := &MinioClient{client: minioClient, config: cfg}

	if err := mc.ensureBucket(ctx, cfg.DocumentBucket); err != nil {
		return nil, fmt.Errorf("failed to ensure document bucket: %w", err)
	}

	log.Printf("Connected to MinIO at %s", cfg.MinioURL)
	return mc, nil
}

func (mc *MinioClient) ensureBucket(ctx context.Context, bucket string) error {
	exists, err := mc.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", bucket, err)
	}
	if exists {
		return nil
	}
	if err := mc.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: mc.config.MinioLocation}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
	}
	log.Printf("Created MinIO bucket %s", bucket)
	return nil
}

// UploadBytes stores an object in the given bucket.
func (mc *MinioClient) UploadBytes(ctx context.Context, bucket, objectName string, data []byte, contentType string) error {
	_, err := mc.client.PutObject(ctx, bucket, objectName, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("failed to upload object %s/%s: %w", bucket, objectName, err)
	}
	return nil
}

// GetFile retrieves an object for streaming; callers must Close it.
func (mc *MinioClient) GetFile(ctx context.Context, bucket, objectName string) (*minio.Object, error) {
	obj, err := mc.client.GetObject(ctx, bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s/%s: %w", bucket, objectName, err)
	}
	return obj, nil
}
