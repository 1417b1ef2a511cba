package ocr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	cfg "github.com/feichai0017/vision-ocr/config"
	"github.com/feichai0017/vision-ocr/internal/agent"
	"github.com/feichai0017/vision-ocr/internal/models"
	"github.com/feichai0017/vision-ocr/pkg/logger"
	"github.com/feichai0017/vision-ocr/pkg/queue"
	"github.com/feichai0017/vision-ocr/pkg/storage"
)

// ServiceConfigFrom maps the application config onto the service settings.
func ServiceConfigFrom(conf *cfg.Config) *ServiceConfig {
	modelName := conf.Model
	switch agent.BackendType(strings.ToLower(conf.Backend)) {
	case agent.BackendTextract, agent.BackendTesseract:
		modelName = strings.ToLower(conf.Backend)
	}
	return &ServiceConfig{
		Model:           modelName,
		MaxWorkers:      conf.Workers,
		Format:          models.FormatType(conf.Format),
		Preprocess:      conf.Preprocess,
		Image:           conf.Image,
		RetentionPeriod: conf.Jobs.Retention,
	}
}

// GetService builds the service described by conf. With jobs set the
// asynchronous job queue and the object storage are connected as well. The
// returned function releases every connection that was opened.
func GetService(ctx context.Context, conf *cfg.Config, log logger.Logger, jobs bool) (*OCRService, func() error, error) {
	var closers []io.Closer
	closeAll := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	client, err := agent.NewBackend(ctx, conf, log)
	if err != nil {
		return nil, nil, err
	}
	if c, ok := client.(io.Closer); ok {
		closers = append(closers, c)
	}

	var opts []Option
	if jobs {
		// 初始化存储
		store, err := storage.NewStorage(ctx, conf.Storage, log)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		if c, ok := store.(interface{ Close(context.Context) error }); ok {
			closers = append(closers, closerFunc(func() error { return c.Close(context.WithoutCancel(ctx)) }))
		}

		// 初始化队列
		q, err := queue.NewAsynqQueue(&queue.QueueConfig{
			RedisAddr:     conf.Redis.Addr,
			RedisPassword: conf.Redis.Password,
			RedisDB:       conf.Redis.DB,
			MaxRetries:    conf.Jobs.MaxRetry,
			StatusTTL:     conf.Jobs.Retention,
		})
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to initialize queue: %w", err)
		}
		closers = append(closers, q)
		opts = append(opts, WithQueue(q), WithStorage(store))
	}

	return NewService(client, log, ServiceConfigFrom(conf), opts...), closeAll, nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
