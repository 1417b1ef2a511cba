package model

import (
    "bytes"
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "net"
    "net/http"
    "strings"
    "time"

    "github.com/feichai0017/vision-ocr/internal/models"
    "github.com/feichai0017/vision-ocr/pkg/logger"
)

const (
    DefaultEndpoint     = "http://localhost:11434/api/generate"
    DefaultModel        = "llama3.2-vision:11b"
    DefaultTimeout      = 120 * time.Second
    DefaultMaxRetries   = 3
    DefaultRetryBackoff = 500 * time.Millisecond
    DefaultMaxBackoff   = 8 * time.Second
)

// OllamaConfig Ollama 客户端配置
type OllamaConfig struct {
    Endpoint     string        `yaml:"endpoint"` // full /api/generate URL
    Model        string        `yaml:"model"`
    Timeout      time.Duration `yaml:"timeout"` // per attempt
    MaxRetries   int           `yaml:"maxRetries"`
    RetryBackoff time.Duration `yaml:"retryBackoff"`
    MaxBackoff   time.Duration `yaml:"maxBackoff"`
    Temperature  float64       `yaml:"temperature"`
    MaxTokens    int           `yaml:"maxTokens"`
    KeepAlive    string        `yaml:"keepAlive"`
}

func (c *OllamaConfig) withDefaults() OllamaConfig {
    out := *c
    if out.Endpoint == "" {
        out.Endpoint = DefaultEndpoint
    }
    if out.Model == "" {
        out.Model = DefaultModel
    }
    if out.Timeout <= 0 {
        out.Timeout = DefaultTimeout
    }
    if out.MaxRetries < 0 {
        out.MaxRetries = 0
    }
    if out.RetryBackoff <= 0 {
        out.RetryBackoff = DefaultRetryBackoff
    }
    if out.MaxBackoff <= 0 {
        out.MaxBackoff = DefaultMaxBackoff
    }
    return out
}

// generateRequest 定义 /api/generate 请求体
type generateRequest struct {
    Model     string                 `json:"model"`
    Prompt    string                 `json:"prompt"`
    Stream    bool                   `json:"stream"`
    Images    []string               `json:"images"`
    KeepAlive string                 `json:"keep_alive,omitempty"`
    Options   map[string]interface{} `json:"options,omitempty"`
}

// OllamaResponse 定义 Ollama API 响应结构
type OllamaResponse struct {
    Response        string `json:"response"`
    Model           string `json:"model"`
    Done            bool   `json:"done"`
    TotalDuration   int64  `json:"total_duration,omitempty"`
    LoadDuration    int64  `json:"load_duration,omitempty"`
    PromptEvalCount int    `json:"prompt_eval_count,omitempty"`
    EvalCount       int    `json:"eval_count,omitempty"`
    EvalDuration    int64  `json:"eval_duration,omitempty"`
    Error           string `json:"error,omitempty"`
}

type tagsResponse struct {
    Models []struct {
        Name string `json:"name"`
    } `json:"models"`
}

// transportError marks a failure that never produced an HTTP response.
type transportError struct {
    err     error
    timeout bool
}

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

type OllamaClient struct {
    config     OllamaConfig
    httpClient *http.Client
    logger     logger.Logger
    sleep      func(ctx context.Context, d time.Duration) error
}

// OllamaOption customizes an OllamaClient.
type OllamaOption func(*OllamaClient)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) OllamaOption {
    return func(o *OllamaClient) {
        o.httpClient = c
    }
}

func NewOllamaClient(cfg *OllamaConfig, log logger.Logger, opts ...OllamaOption) *OllamaClient {
    if cfg == nil {
        cfg = &OllamaConfig{MaxRetries: DefaultMaxRetries}
    }
    if log == nil {
        log = logger.NewNop()
    }
    c := &OllamaClient{
        config: cfg.withDefaults(),
        httpClient: &http.Client{
            Transport: &http.Transport{
                Proxy:               http.ProxyFromEnvironment,
                MaxIdleConns:        32,
                MaxIdleConnsPerHost: 8,
                IdleConnTimeout:     90 * time.Second,
            },
        },
        logger: log.Named("ollama"),
        sleep:  sleepContext,
    }
    for _, opt := range opts {
        opt(c)
    }
    return c
}

func (c *OllamaClient) Name() string { return "ollama" }

// Model returns the default model name.
func (c *OllamaClient) Model() string { return c.config.Model }

// Query 发送图像和提示词，返回模型原始文本
func (c *OllamaClient) Query(ctx context.Context, req models.OCRRequest) (string, error) {
    prompt, ok := PromptFor(req.Format)
    if !ok {
        return "", models.Errorf(models.KindInvalidArgument, "query", req.ImageID, "unsupported format type %q", req.Format)
    }
    modelName := req.Model
    if modelName == "" {
        modelName = c.config.Model
    }

    body := generateRequest{
        Model:     modelName,
        Prompt:    prompt,
        Stream:    false,
        Images:    []string{req.Image.Data},
        KeepAlive: c.config.KeepAlive,
    }
    if c.config.Temperature > 0 || c.config.MaxTokens > 0 {
        body.Options = map[string]interface{}{}
        if c.config.Temperature > 0 {
            body.Options["temperature"] = c.config.Temperature
        }
        if c.config.MaxTokens > 0 {
            body.Options["num_predict"] = c.config.MaxTokens
        }
    }
    reqData, err := json.Marshal(body)
    if err != nil {
        return "", models.NewError(models.KindInvalidArgument, "query", req.ImageID, fmt.Errorf("failed to marshal request: %w", err))
    }

    var lastErr *transportError
    attempts := c.config.MaxRetries + 1
    for attempt := 1; attempt <= attempts; attempt++ {
        if attempt > 1 {
            if err := c.sleep(ctx, c.backoff(attempt-1)); err != nil {
                return "", contextError(ctx, req.ImageID, err)
            }
        }

        text, err := c.generate(ctx, reqData, req.ImageID)
        if err == nil {
            return text, nil
        }
        if ctx.Err() != nil {
            return "", contextError(ctx, req.ImageID, ctx.Err())
        }
        var te *transportError
        if !errors.As(err, &te) {
            return "", err
        }
        lastErr = te
        c.logger.Warn("Model backend request failed",
            logger.String("image", req.ImageID),
            logger.Int("attempt", attempt),
            logger.Int("maxAttempts", attempts),
            logger.Bool("timeout", te.timeout),
            logger.Error(te.err),
        )
    }

    kind := models.KindBackendUnavailable
    if lastErr.timeout {
        kind = models.KindTimeout
    }
    return "", models.NewError(kind, "query", req.ImageID,
        fmt.Errorf("giving up after %d attempts: %w", attempts, lastErr.err))
}

func (c *OllamaClient) generate(ctx context.Context, reqData []byte, imageID string) (string, error) {
    reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
    defer cancel()

    httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.config.Endpoint, bytes.NewReader(reqData))
    if err != nil {
        return "", models.NewError(models.KindInvalidArgument, "query", imageID, fmt.Errorf("failed to create request: %w", err))
    }
    httpReq.Header.Set("Content-Type", "application/json")

    resp, err := c.httpClient.Do(httpReq)
    if err != nil {
        return "", &transportError{err: err, timeout: isTimeout(err)}
    }
    defer resp.Body.Close()

    if resp.StatusCode < 200 || resp.StatusCode > 299 {
        data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
        return "", models.Errorf(models.KindModelError, "query", imageID,
            "unexpected status code %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
    }

    var result OllamaResponse
    if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
        if reqCtx.Err() != nil || isTimeout(err) {
            return "", &transportError{err: err, timeout: true}
        }
        return "", models.NewError(models.KindModelError, "query", imageID, fmt.Errorf("failed to decode response: %w", err))
    }
    if result.Error != "" {
        return "", models.Errorf(models.KindModelError, "query", imageID, "ollama error: %s", result.Error)
    }

    c.logger.Debug("Model responded",
        logger.String("image", imageID),
        logger.String("model", result.Model),
        logger.Int("evalCount", result.EvalCount),
        logger.Duration("totalDuration", time.Duration(result.TotalDuration)),
    )
    return result.Response, nil
}

// ListModels returns the models installed on the Ollama server.
func (c *OllamaClient) ListModels(ctx context.Context) ([]string, error) {
    reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
    defer cancel()

    url := strings.TrimSuffix(c.baseURL(), "/") + "/api/tags"
    req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
    if err != nil {
        return nil, fmt.Errorf("failed to create request: %w", err)
    }
    resp, err := c.httpClient.Do(req)
    if err != nil {
        return nil, models.NewError(models.KindBackendUnavailable, "list models", "", err)
    }
    defer resp.Body.Close()
    if resp.StatusCode != http.StatusOK {
        return nil, models.Errorf(models.KindModelError, "list models", "", "unexpected status code %d", resp.StatusCode)
    }

    var tags tagsResponse
    if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
        return nil, fmt.Errorf("failed to decode response: %w", err)
    }
    names := make([]string, 0, len(tags.Models))
    for _, m := range tags.Models {
        names = append(names, m.Name)
    }
    return names, nil
}

func (c *OllamaClient) Close() error {
    c.httpClient.CloseIdleConnections()
    return nil
}

func (c *OllamaClient) baseURL() string {
    if i := strings.Index(c.config.Endpoint, "/api/"); i >= 0 {
        return c.config.Endpoint[:i]
    }
    return c.config.Endpoint
}

func (c *OllamaClient) backoff(retry int) time.Duration {
    d := c.config.RetryBackoff
    for i := 1; i < retry; i++ {
        d *= 2
        if d >= c.config.MaxBackoff {
            return c.config.MaxBackoff
        }
    }
    return d
}

func isTimeout(err error) bool {
    if errors.Is(err, context.DeadlineExceeded) {
        return true
    }
    var ne net.Error
    return errors.As(err, &ne) && ne.Timeout()
}

func contextError(ctx context.Context, imageID string, err error) error {
    if errors.Is(ctx.Err(), context.DeadlineExceeded) {
        return models.NewError(models.KindTimeout, "query", imageID, err)
    }
    return models.NewError(models.KindCanceled, "query", imageID, err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-t.C:
        return nil
    case <-ctx.Done():
        return ctx.Err()
    }
}
