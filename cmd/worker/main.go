package main

import (
    "context"
    "flag"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/feichai0017/vision-ocr/config"
    "github.com/feichai0017/vision-ocr/internal/service/ocr"
    "github.com/feichai0017/vision-ocr/pkg/logger"
    "github.com/feichai0017/vision-ocr/pkg/worker"
)

func main() {
    configPath := flag.String("config", os.Getenv("OCR_CONFIG"), "path to a YAML config file")
    flag.Parse()

    conf, err := config.Load(*configPath)
    if err != nil {
        panic(err)
    }

    // 初始化日志
    log, err := logger.NewLogger(
        logger.WithConfig(conf.Log),
        logger.WithOutputPaths([]string{"stdout", "logs/worker.log"}),
        logger.WithField("service", "ocr-worker"),
    )
    if err != nil {
        panic(err)
    }
    defer log.Sync()

    // 创建上下文和取消函数
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()

    // 创建 OCR 服务
    ocrService, closeService, err := ocr.GetService(ctx, conf, log, true)
    if err != nil {
        log.Error("Failed to create ocr service", logger.Error(err))
        os.Exit(1)
    }
    defer closeService()

    // 创建 worker 配置
    workerCfg := &worker.Config{
        RedisAddr:       conf.Redis.Addr,
        RedisPassword:   conf.Redis.Password,
        RedisDB:         conf.Redis.DB,
        Concurrency:     conf.Jobs.Concurrency,
        Queues:          worker.DefaultQueues(),
        CleanupInterval: time.Hour,
    }

    // 创建 worker
    batchWorker, err := worker.NewBatchWorker(workerCfg, ocrService, log)
    if err != nil {
        log.Error("Failed to create batch worker", logger.Error(err))
        os.Exit(1)
    }

    // 启动 worker
    if err := batchWorker.Start(ctx); err != nil {
        log.Error("Failed to start worker", logger.Error(err))
        os.Exit(1)
    }
    log.Info("Worker started",
        logger.Int("concurrency", workerCfg.Concurrency),
        logger.String("model", conf.Model),
    )

    // 等待中断信号
    sigChan := make(chan os.Signal, 1)
    signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
    <-sigChan

    // 优雅关闭
    log.Info("Shutting down worker...")
    batchWorker.Stop()
    log.Info("Worker stopped")
}
