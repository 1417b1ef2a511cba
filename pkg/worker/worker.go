package worker

import (
    "context"
    "sync"
    "time"

    "github.com/hibiken/asynq"

    "github.com/feichai0017/vision-ocr/pkg/logger"
)

type Worker interface {
    Start(ctx context.Context) error
    Stop() error
}

type Config struct {
    RedisAddr       string
    RedisPassword   string
    RedisDB         int
    Concurrency     int
    Queues          map[string]int
    CleanupInterval time.Duration
}

// DefaultQueues matches the priorities used by the queue package.
func DefaultQueues() map[string]int {
    return map[string]int{
        "critical": 6,
        "default":  3,
        "low":      1,
    }
}

type BaseWorker struct {
    server   *asynq.Server
    mux      *asynq.ServeMux
    logger   logger.Logger
    stopChan chan struct{}
    stopOnce sync.Once
}

func (w *BaseWorker) Stop() error {
    w.stopOnce.Do(func() {
        close(w.stopChan)
        w.server.Shutdown()
    })
    return nil
}
