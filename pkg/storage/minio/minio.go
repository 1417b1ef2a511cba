package minio

import (
    "context"
    "fmt"
    "io"
    "mime"
    "path"
    "time"

    "github.com/minio/minio-go/v7"
    "github.com/minio/minio-go/v7/pkg/credentials"

    cfg "github.com/feichai0017/vision-ocr/config"
    "github.com/feichai0017/vision-ocr/pkg/logger"
)

type MinioStorage struct {
    client     *minio.Client
    bucketName string
    logger     logger.Logger
}

// Store implements Storage.Store
func (m *MinioStorage) Store(ctx context.Context, reader io.Reader, key string) (string, error) {
    _, err := m.client.PutObject(ctx, m.bucketName, key, reader, -1, minio.PutObjectOptions{
        ContentType: contentType(key),
    })
    if err != nil {
        m.logger.Error("Failed to store object to MinIO",
            logger.String("bucket", m.bucketName),
            logger.String("key", key),
            logger.Error(err),
        )
        return "", fmt.Errorf("failed to store object: %w", err)
    }
    return key, nil
}

// Get implements Storage.Get. Missing keys surface on the first read, so the
// object is stat'ed first.
func (m *MinioStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
    if _, err := m.client.StatObject(ctx, m.bucketName, key, minio.StatObjectOptions{}); err != nil {
        return nil, fmt.Errorf("failed to get object: %w", err)
    }
    obj, err := m.client.GetObject(ctx, m.bucketName, key, minio.GetObjectOptions{})
    if err != nil {
        m.logger.Error("Failed to get object from MinIO",
            logger.String("bucket", m.bucketName),
            logger.String("key", key),
            logger.Error(err),
        )
        return nil, fmt.Errorf("failed to get object: %w", err)
    }
    return obj, nil
}

// Delete implements Storage.Delete
func (m *MinioStorage) Delete(ctx context.Context, key string) error {
    if err := m.client.RemoveObject(ctx, m.bucketName, key, minio.RemoveObjectOptions{}); err != nil {
        m.logger.Error("Failed to delete object from MinIO",
            logger.String("bucket", m.bucketName),
            logger.String("key", key),
            logger.Error(err),
        )
        return fmt.Errorf("failed to delete object: %w", err)
    }
    return nil
}

// CleanupBefore implements Storage.CleanupBefore
func (m *MinioStorage) CleanupBefore(ctx context.Context, threshold time.Time) error {
    expired := make(chan minio.ObjectInfo)
    go func() {
        defer close(expired)
        for obj := range m.client.ListObjects(ctx, m.bucketName, minio.ListObjectsOptions{Recursive: true}) {
            if obj.Err != nil {
                m.logger.Error("Error listing objects",
                    logger.String("bucket", m.bucketName),
                    logger.Error(obj.Err),
                )
                continue
            }
            if obj.LastModified.Before(threshold) {
                expired <- obj
            }
        }
    }()

    failed := 0
    for rErr := range m.client.RemoveObjects(ctx, m.bucketName, expired, minio.RemoveObjectsOptions{}) {
        m.logger.Error("Failed to delete expired object",
            logger.String("key", rErr.ObjectName),
            logger.Error(rErr.Err),
        )
        failed++
    }
    m.logger.Info("Expired objects removed",
        logger.String("bucket", m.bucketName),
        logger.Int("failed", failed),
        logger.Time("threshold", threshold),
    )
    return nil
}

func NewMinioStorage(ctx context.Context, minioConfig *cfg.MinioConfig, log logger.Logger) (*MinioStorage, error) {
    client, err := minio.New(minioConfig.Endpoint, &minio.Options{
        Creds:  credentials.NewStaticV4(minioConfig.AccessKey, minioConfig.SecretKey, ""),
        Secure: minioConfig.UseSSL,
        Region: minioConfig.Region,
    })
    if err != nil {
        return nil, fmt.Errorf("failed to create MinIO client: %w", err)
    }

    exists, err := client.BucketExists(ctx, minioConfig.BucketName)
    if err != nil {
        return nil, fmt.Errorf("failed to check bucket existence: %w", err)
    }
    if !exists {
        err = client.MakeBucket(ctx, minioConfig.BucketName, minio.MakeBucketOptions{
            Region: minioConfig.Region,
        })
        if err != nil {
            return nil, fmt.Errorf("failed to create bucket: %w", err)
        }
    }

    return &MinioStorage{
        client:     client,
        bucketName: minioConfig.BucketName,
        logger:     log.Named("minio"),
    }, nil
}

func contentType(key string) string {
    if t := mime.TypeByExtension(path.Ext(key)); t != "" {
        return t
    }
    return "application/octet-stream"
}
