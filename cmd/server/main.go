package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/vision-ocr/api/handlers"
	"github.com/feichai0017/vision-ocr/api/routes"
	"github.com/feichai0017/vision-ocr/config"
	"github.com/feichai0017/vision-ocr/internal/service/ocr"
	"github.com/feichai0017/vision-ocr/internal/utils/validator"
	"github.com/feichai0017/vision-ocr/pkg/logger"
)

func main() {
	configPath := flag.String("config", os.Getenv("OCR_CONFIG"), "path to a YAML config file")
	noJobs := flag.Bool("no-jobs", false, "disable asynchronous jobs (no redis or storage needed)")
	flag.Parse()

	conf, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	// init logger
	log, err := logger.NewLogger(
		logger.WithConfig(conf.Log),
		logger.WithOutputPaths([]string{"stdout", "logs/app.log"}),
		logger.WithField("service", "ocr-server"),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// init ocr service
	ocrService, closeService, err := ocr.GetService(ctx, conf, log, !*noJobs)
	if err != nil {
		log.Fatal("Failed to create ocr service", logger.Error(err))
	}
	defer func() {
		if err := closeService(); err != nil {
			log.Error("Failed to close service", logger.Error(err))
		}
	}()

	vcfg := validator.DefaultConfig()
	vcfg.MaxFileSize = conf.Server.MaxUploadSize

	// init handlers
	h := handlers.NewHandlers(ocrService, validator.NewImageValidator(log, vcfg), log, conf.Server.MaxBatchFiles)
	r := gin.New()
	r.Use(gin.Recovery())
	r.MaxMultipartMemory = conf.Server.MaxUploadSize
	routes.SetupRoutes(r, h, conf.Server.AllowOrigins)

	srv := &http.Server{
		Addr:         conf.Server.Addr,
		Handler:      http.TimeoutHandler(r, conf.Server.RequestTimeout, "request timed out"),
		ReadTimeout:  time.Minute,
		WriteTimeout: conf.Server.RequestTimeout + 10*time.Second,
	}

	// start server
	go func() {
		log.Info("Server starting", logger.String("addr", conf.Server.Addr), logger.String("model", conf.Model))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error", logger.Error(err))
			stop()
		}
	}()

	// wait for interrupt signal to gracefully shut down the server
	<-ctx.Done()
	log.Info("Shutting down server...")

	// graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", logger.Error(err))
	}
}
