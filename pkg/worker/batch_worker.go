package worker

import (
    "context"
    "encoding/json"
    "fmt"
    "time"

    "github.com/hibiken/asynq"

    "github.com/feichai0017/vision-ocr/pkg/logger"
    "github.com/feichai0017/vision-ocr/pkg/queue"
)

// BatchHandler is the part of the OCR service the worker drives.
type BatchHandler interface {
    HandleBatchTask(ctx context.Context, task *queue.Task) error
    CleanupJobs(ctx context.Context) error
}

type BatchWorker struct {
    BaseWorker
    handler         BatchHandler
    cleanupInterval time.Duration
}

func NewBatchWorker(cfg *Config, handler BatchHandler, log logger.Logger) (*BatchWorker, error) {
    if handler == nil {
        return nil, fmt.Errorf("batch handler is required")
    }
    if cfg.Concurrency <= 0 {
        cfg.Concurrency = 1
    }
    if len(cfg.Queues) == 0 {
        cfg.Queues = DefaultQueues()
    }
    log = log.Named("worker")

    server := asynq.NewServer(
        asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
        asynq.Config{
            Concurrency: cfg.Concurrency,
            Queues:      cfg.Queues,
            RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
                return time.Duration(n) * time.Minute
            },
            ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
                log.Error("Task failed", logger.String("type", task.Type()), logger.Error(err))
            }),
        },
    )

    w := &BatchWorker{
        BaseWorker: BaseWorker{
            server:   server,
            mux:      asynq.NewServeMux(),
            logger:   log,
            stopChan: make(chan struct{}),
        },
        handler:         handler,
        cleanupInterval: cfg.CleanupInterval,
    }

    // 注册任务处理器
    w.mux.HandleFunc(queue.TaskTypeOCRBatch, w.handleBatch)
    return w, nil
}

func (w *BatchWorker) handleBatch(ctx context.Context, t *asynq.Task) error {
    var task queue.Task
    if err := json.Unmarshal(t.Payload(), &task); err != nil {
        w.logger.Error("Failed to unmarshal task",
            logger.Error(err),
            logger.Int("payloadSize", len(t.Payload())),
        )
        return fmt.Errorf("failed to unmarshal task: %v: %w", err, asynq.SkipRetry)
    }
    if task.ID == "" || len(task.Payload) == 0 {
        w.logger.Error("Invalid task data", logger.String("taskId", task.ID))
        return fmt.Errorf("invalid task data: missing required fields: %w", asynq.SkipRetry)
    }

    w.logger.Info("Processing batch task",
        logger.String("taskId", task.ID),
        logger.Any("metadata", task.Metadata),
    )

    info := t.ResultWriter()
    if err := w.handler.HandleBatchTask(ctx, &task); err != nil {
        if info != nil {
            if _, writeErr := info.Write([]byte(fmt.Sprintf(`{"status":"failed","error":%q}`, err.Error()))); writeErr != nil {
                w.logger.Error("Failed to write task failure", logger.Error(writeErr))
            }
        }
        return err
    }
    if info != nil {
        if _, err := info.Write([]byte(`{"status":"completed","progress":1}`)); err != nil {
            w.logger.Error("Failed to write task completion", logger.Error(err))
        }
    }
    return nil
}

func (w *BatchWorker) Start(ctx context.Context) error {
    if err := w.server.Start(w.mux); err != nil {
        return fmt.Errorf("failed to start worker server: %w", err)
    }

    if w.cleanupInterval > 0 {
        go w.cleanupLoop(ctx)
    }

    go func() {
        select {
        case <-ctx.Done():
            w.Stop()
        case <-w.stopChan:
        }
    }()
    return nil
}

// cleanupLoop periodically drops stored inputs and reports past retention.
func (w *BatchWorker) cleanupLoop(ctx context.Context) {
    ticker := time.NewTicker(w.cleanupInterval)
    defer ticker.Stop()
    for {
        select {
        case <-ctx.Done():
            return
        case <-w.stopChan:
            return
        case <-ticker.C:
            if err := w.handler.CleanupJobs(ctx); err != nil {
                w.logger.Error("Failed to cleanup jobs", logger.Error(err))
            }
        }
    }
}
