package storage

import (
    "context"
    "fmt"
    "io"
    "time"

    cfg "github.com/feichai0017/vision-ocr/config"
    "github.com/feichai0017/vision-ocr/pkg/logger"
    "github.com/feichai0017/vision-ocr/pkg/storage/minio"
    "github.com/feichai0017/vision-ocr/pkg/storage/postgres"
    "github.com/feichai0017/vision-ocr/pkg/storage/s3"
)

// StorageType 定义存储类型
type StorageType string

const (
    StorageTypeS3       StorageType = "s3"
    StorageTypeMinio    StorageType = "minio"
    StorageTypePostgres StorageType = "postgres"
)

// Storage holds uploaded batch inputs and rendered job reports.
type Storage interface {
    // Store 存储文件
    Store(ctx context.Context, reader io.Reader, key string) (string, error)
    // Get 获取文件
    Get(ctx context.Context, key string) (io.ReadCloser, error)
    // Delete 删除文件
    Delete(ctx context.Context, key string) error
    // CleanupBefore 清理过期文件
    CleanupBefore(ctx context.Context, threshold time.Time) error
}

// NewStorage 创建存储实例的工厂方法
func NewStorage(ctx context.Context, conf cfg.StorageConfig, log logger.Logger) (Storage, error) {
    switch StorageType(conf.Type) {
    case StorageTypeS3:
        return s3.NewS3Storage(ctx, cfg.GetS3Config(), log)
    case StorageTypeMinio:
        return minio.NewMinioStorage(ctx, cfg.GetMinioConfig(), log)
    case StorageTypePostgres:
        return postgres.NewPostgresStorage(ctx, conf.PostgresDSN, log)
    default:
        return nil, fmt.Errorf("unsupported storage type: %s", conf.Type)
    }
}
