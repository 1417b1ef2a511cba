package ocr

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/feichai0017/vision-ocr/internal/agent/codec"
	"github.com/feichai0017/vision-ocr/internal/agent/interpreter"
	"github.com/feichai0017/vision-ocr/internal/agent/model"
	"github.com/feichai0017/vision-ocr/internal/models"
	"github.com/feichai0017/vision-ocr/pkg/logger"
	"github.com/feichai0017/vision-ocr/pkg/queue"
	"github.com/feichai0017/vision-ocr/pkg/storage"
)

type OCRService struct {
	client      model.Client
	codec       *codec.Codec
	interpreter *interpreter.Interpreter
	queue       queue.Queue
	storage     storage.Storage
	logger      logger.Logger
	config      *ServiceConfig
}

type ServiceConfig struct {
	Model           string
	MaxWorkers      int
	Format          models.FormatType
	Preprocess      bool
	Image           models.PreprocessOptions
	RetentionPeriod time.Duration
}

// DefaultServiceConfig mirrors the defaults of the config package.
func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		Model:           model.DefaultModel,
		MaxWorkers:      1,
		Format:          models.FormatMarkdown,
		Preprocess:      true,
		Image:           models.DefaultPreprocessOptions(),
		RetentionPeriod: 24 * time.Hour,
	}
}

// Option wires optional collaborators into the service.
type Option func(*OCRService)

// WithQueue enables asynchronous jobs together with WithStorage.
func WithQueue(q queue.Queue) Option {
	return func(s *OCRService) { s.queue = q }
}

func WithStorage(st storage.Storage) Option {
	return func(s *OCRService) { s.storage = st }
}

func NewService(client model.Client, log logger.Logger, cfg *ServiceConfig, opts ...Option) *OCRService {
	if cfg == nil {
		cfg = DefaultServiceConfig()
	}
	if cfg.MaxWorkers < 1 {
		cfg.MaxWorkers = 1
	}
	if cfg.Format == "" {
		cfg.Format = models.FormatMarkdown
	}
	if log == nil {
		log = logger.NewNop()
	}

	s := &OCRService{
		client:      client,
		codec:       codec.NewCodec(log, cfg.Image),
		interpreter: interpreter.New(log),
		logger:      log.Named("ocr"),
		config:      cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProcessImage runs the pipeline for one file. A FormatMismatch error is
// returned together with the raw fallback result.
func (s *OCRService) ProcessImage(ctx context.Context, path string, format models.FormatType) (*models.FormattedResult, error) {
	return s.processSingle(ctx, models.ImageInput{ID: path, Path: path}, format)
}

// ProcessImageBytes is ProcessImage for in-memory images such as uploads.
func (s *OCRService) ProcessImageBytes(ctx context.Context, name string, data []byte, format models.FormatType) (*models.FormattedResult, error) {
	if data == nil {
		data = []byte{}
	}
	return s.processSingle(ctx, models.ImageInput{ID: name, Data: data}, format)
}

func (s *OCRService) processSingle(ctx context.Context, input models.ImageInput, format models.FormatType) (*models.FormattedResult, error) {
	format, err := s.resolveFormat(format)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	out, err := s.run(ctx, input, format, s.config.Preprocess)

	fields := []logger.Field{
		logger.String("image", input.ID),
		logger.String("format", format.String()),
		logger.Duration("duration", time.Since(start)),
	}
	if err != nil {
		s.logger.Warn("Image processing failed", append(fields, logger.Error(err))...)
		return out, err
	}
	s.logger.Info("Image processed", fields...)
	return out, nil
}

// run is the per-image pipeline: encode, query, interpret.
func (s *OCRService) run(ctx context.Context, input models.ImageInput, format models.FormatType, preprocess bool) (*models.FormattedResult, error) {
	encoded, err := s.codec.Encode(ctx, input, preprocess)
	if err != nil {
		return nil, err
	}

	raw, err := s.client.Query(ctx, models.OCRRequest{
		ImageID: input.ID,
		Image:   encoded,
		Format:  format,
		Model:   s.config.Model,
	})
	if err != nil {
		return nil, err
	}

	out, err := s.interpreter.Interpret(raw, format)
	if err != nil {
		var oe *models.OCRError
		if errors.As(err, &oe) && oe.ID == "" {
			oe.ID = input.ID
		}
		return out, err
	}
	return out, nil
}

// processOne converts the pipeline outcome into an OCRResult. A format
// mismatch still counts as a success because the raw text is preserved.
func (s *OCRService) processOne(ctx context.Context, input models.ImageInput, format models.FormatType, preprocess bool) models.OCRResult {
	start := time.Now()
	out, err := s.run(ctx, input, format, preprocess)
	result := models.OCRResult{
		ImageID:  input.ID,
		Output:   out,
		Duration: time.Since(start),
	}

	switch {
	case err == nil:
		result.Success = true
	case models.KindOf(err) == models.KindFormatMismatch && out != nil:
		result.Success = true
		if out.Warning == "" {
			out.Warning = err.Error()
		}
	default:
		result.Output = nil
		result.Error = models.FailureFrom(err)
		s.logger.Warn("Image failed",
			logger.String("image", input.ID),
			logger.String("kind", string(result.Error.Kind)),
			logger.Error(err),
		)
	}
	return result
}

func (s *OCRService) resolveFormat(format models.FormatType) (models.FormatType, error) {
	if format == "" {
		return s.config.Format, nil
	}
	if !format.Valid() {
		return "", models.Errorf(models.KindInvalidArgument, "process", "", "unsupported format type %q", format)
	}
	return format, nil
}

// ListModels reports the models available on the backend.
func (s *OCRService) ListModels(ctx context.Context) ([]string, error) {
	lister, ok := s.client.(model.ModelLister)
	if !ok {
		return []string{s.modelName()}, nil
	}
	names, err := lister.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	return names, nil
}

func (s *OCRService) modelName() string {
	if s.config.Model != "" {
		return s.config.Model
	}
	return s.client.Name()
}
