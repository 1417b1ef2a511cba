package s3

import (
    "context"
    "fmt"
    "io"
    "path"
    "strings"
    "time"

    "github.com/aws/aws-sdk-go-v2/aws"
    "github.com/aws/aws-sdk-go-v2/config"
    "github.com/aws/aws-sdk-go-v2/credentials"
    "github.com/aws/aws-sdk-go-v2/service/s3"

    cfg "github.com/feichai0017/vision-ocr/config"
    "github.com/feichai0017/vision-ocr/pkg/logger"
)

type S3Storage struct {
    client     *s3.Client
    bucketName string
    prefix     string
    logger     logger.Logger
}

// Store 实现 Storage 接口的 Store 方法
func (s *S3Storage) Store(ctx context.Context, reader io.Reader, key string) (string, error) {
    input := &s3.PutObjectInput{
        Bucket: aws.String(s.bucketName),
        Key:    aws.String(s.objectKey(key)),
        Body:   reader,
    }

    if _, err := s.client.PutObject(ctx, input); err != nil {
        s.logger.Error("Failed to store object to S3",
            logger.String("bucket", s.bucketName),
            logger.String("key", key),
            logger.Error(err),
        )
        return "", fmt.Errorf("failed to store object: %w", err)
    }
    return key, nil
}

// Get 实现 Storage 接口的 Get 方法
func (s *S3Storage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
    result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
        Bucket: aws.String(s.bucketName),
        Key:    aws.String(s.objectKey(key)),
    })
    if err != nil {
        s.logger.Error("Failed to get object from S3",
            logger.String("bucket", s.bucketName),
            logger.String("key", key),
            logger.Error(err),
        )
        return nil, fmt.Errorf("failed to get object: %w", err)
    }
    return result.Body, nil
}

// Delete 实现 Storage 接口的 Delete 方法
func (s *S3Storage) Delete(ctx context.Context, key string) error {
    _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
        Bucket: aws.String(s.bucketName),
        Key:    aws.String(s.objectKey(key)),
    })
    if err != nil {
        s.logger.Error("Failed to delete object from S3",
            logger.String("bucket", s.bucketName),
            logger.String("key", key),
            logger.Error(err),
        )
        return fmt.Errorf("failed to delete object: %w", err)
    }
    return nil
}

// CleanupBefore 删除前缀下早于 threshold 的对象
func (s *S3Storage) CleanupBefore(ctx context.Context, threshold time.Time) error {
    input := &s3.ListObjectsV2Input{
        Bucket: aws.String(s.bucketName),
    }
    if s.prefix != "" {
        input.Prefix = aws.String(s.prefix + "/")
    }

    deleted := 0
    paginator := s3.NewListObjectsV2Paginator(s.client, input)
    for paginator.HasMorePages() {
        page, err := paginator.NextPage(ctx)
        if err != nil {
            return fmt.Errorf("failed to list objects: %w", err)
        }

        for _, obj := range page.Contents {
            if obj.LastModified == nil || !obj.LastModified.Before(threshold) {
                continue
            }
            if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
                Bucket: aws.String(s.bucketName),
                Key:    obj.Key,
            }); err != nil {
                s.logger.Error("Failed to delete expired object",
                    logger.String("key", aws.ToString(obj.Key)),
                    logger.Error(err),
                )
                continue
            }
            deleted++
        }
    }

    s.logger.Info("Expired objects removed",
        logger.String("bucket", s.bucketName),
        logger.Int("deleted", deleted),
        logger.Time("threshold", threshold),
    )
    return nil
}

func (s *S3Storage) objectKey(key string) string {
    if s.prefix == "" {
        return key
    }
    return path.Join(s.prefix, key)
}

func NewS3Storage(ctx context.Context, s3Config *cfg.S3Config, log logger.Logger) (*S3Storage, error) {
    log.Info("S3 Configuration",
        logger.String("bucket", s3Config.BucketName),
        logger.String("region", s3Config.Region),
        logger.String("endpoint", s3Config.Endpoint),
    )

    loadOpts := []func(*config.LoadOptions) error{config.WithRegion(s3Config.Region)}
    if s3Config.AccessKey != "" {
        loadOpts = append(loadOpts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
            s3Config.AccessKey,
            s3Config.SecretKey,
            "",
        )))
    }
    awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
    if err != nil {
        return nil, fmt.Errorf("failed to load AWS config: %w", err)
    }

    client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
        if s3Config.Endpoint != "" {
            o.BaseEndpoint = aws.String(s3Config.Endpoint)
            o.UsePathStyle = true
        }
    })

    // 验证 bucket 是否存在
    if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{
        Bucket: aws.String(s3Config.BucketName),
    }); err != nil {
        return nil, fmt.Errorf("failed to verify bucket existence: %w", err)
    }

    return &S3Storage{
        client:     client,
        bucketName: s3Config.BucketName,
        prefix:     strings.Trim(s3Config.Prefix, "/"),
        logger:     log.Named("s3"),
    }, nil
}
