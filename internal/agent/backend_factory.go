package agent

import (
    "context"
    "fmt"
    "strings"

    cfg "github.com/feichai0017/vision-ocr/config"
    "github.com/feichai0017/vision-ocr/internal/agent/model"
    "github.com/feichai0017/vision-ocr/pkg/logger"
)

// BackendType names a recognition backend.
type BackendType string

const (
    BackendOllama    BackendType = "ollama"
    BackendTextract  BackendType = "textract"
    BackendTesseract BackendType = "tesseract"
)

// NewBackend builds the model client selected by conf.Backend.
func NewBackend(ctx context.Context, conf *cfg.Config, log logger.Logger) (model.Client, error) {
    backend := BackendType(strings.ToLower(conf.Backend))
    log.Info("Creating model backend",
        logger.String("backend", string(backend)),
        logger.String("model", conf.Model),
    )

    switch backend {
    case BackendOllama, "":
        return model.NewOllamaClient(OllamaConfig(conf), log), nil
    case BackendTextract:
        textractCfg := cfg.GetTextractConfig()
        client, err := model.NewTextractClient(ctx, &model.TextractConfig{
            Region:        textractCfg.Region,
            AccessKey:     textractCfg.AccessKey,
            SecretKey:     textractCfg.SecretKey,
            MinConfidence: textractCfg.MinConfidence,
        }, log)
        if err != nil {
            return nil, fmt.Errorf("failed to create textract backend: %w", err)
        }
        return client, nil
    case BackendTesseract:
        tessCfg := cfg.GetTesseractConfig()
        client, err := model.NewTesseractClient(&model.TesseractConfig{
            Languages:     tessCfg.Languages,
            MinConfidence: tessCfg.MinConfidence,
        }, log)
        if err != nil {
            return nil, fmt.Errorf("failed to create tesseract backend: %w", err)
        }
        return client, nil
    default:
        log.Error("Unsupported backend", logger.String("backend", string(backend)))
        return nil, fmt.Errorf("unsupported backend: %s", conf.Backend)
    }
}

// OllamaConfig maps the application config onto the Ollama client settings.
func OllamaConfig(conf *cfg.Config) *model.OllamaConfig {
    return &model.OllamaConfig{
        Endpoint:     conf.Endpoint,
        Model:        conf.Model,
        Timeout:      conf.Timeout,
        MaxRetries:   conf.MaxRetries,
        RetryBackoff: conf.RetryBackoff,
        MaxBackoff:   conf.MaxBackoff,
        Temperature:  conf.Temperature,
        KeepAlive:    conf.KeepAlive,
    }
}
