package logger

import (
    "context"
    "fmt"
    "os"
    "path/filepath"
    "time"

    "go.uber.org/zap"
    "go.uber.org/zap/zapcore"
    "gopkg.in/natefinch/lumberjack.v2"
)

// Field type
type Field = zapcore.Field

// Level type
type Level = zapcore.Level

const (
    DebugLevel Level = zapcore.DebugLevel
    InfoLevel  Level = zapcore.InfoLevel
    WarnLevel  Level = zapcore.WarnLevel
    ErrorLevel Level = zapcore.ErrorLevel
    FatalLevel Level = zapcore.FatalLevel
)

// Logger interface
type Logger interface {
    Debug(msg string, fields ...Field)
    Info(msg string, fields ...Field)
    Warn(msg string, fields ...Field)
    Error(msg string, fields ...Field)
    Fatal(msg string, fields ...Field)
    With(fields ...Field) Logger
    Named(name string) Logger
    Sync() error
}

// Config defines logger configuration
type Config struct {
    Level         string                 `json:"level" yaml:"level"`
    Encoding      string                 `json:"encoding" yaml:"encoding"`
    OutputPaths   []string               `json:"outputPaths" yaml:"outputPaths"`
    MaxSize       int                    `json:"maxSize" yaml:"maxSize"` // MB
    MaxBackups    int                    `json:"maxBackups" yaml:"maxBackups"`
    MaxAge        int                    `json:"maxAge" yaml:"maxAge"` // days
    Compress      bool                   `json:"compress" yaml:"compress"`
    Development   bool                   `json:"development" yaml:"development"`
    InitialFields map[string]interface{} `json:"initialFields" yaml:"initialFields"`
}

// DefaultConfig is what NewLogger starts from before options apply.
func DefaultConfig() Config {
    return Config{
        Level:         "info",
        Encoding:      "json",
        OutputPaths:   []string{"stdout"},
        MaxSize:       100,
        MaxBackups:    3,
        MaxAge:        7,
        Compress:      true,
        InitialFields: make(map[string]interface{}),
    }
}

type logger struct {
    zap *zap.Logger
}

// Option defines logger option function
type Option func(*Config)

// WithLevel sets logger level
func WithLevel(level string) Option {
    return func(c *Config) {
        c.Level = level
    }
}

// WithEncoding sets logger encoding ("json" or "console")
func WithEncoding(encoding string) Option {
    return func(c *Config) {
        c.Encoding = encoding
    }
}

// WithOutputPaths sets logger output paths
func WithOutputPaths(paths []string) Option {
    return func(c *Config) {
        c.OutputPaths = paths
    }
}

// WithConfig replaces the whole configuration, typically one loaded from the config file.
func WithConfig(cfg Config) Option {
    return func(c *Config) {
        if cfg.Level != "" {
            c.Level = cfg.Level
        }
        if cfg.Encoding != "" {
            c.Encoding = cfg.Encoding
        }
        if len(cfg.OutputPaths) > 0 {
            c.OutputPaths = cfg.OutputPaths
        }
        if cfg.MaxSize > 0 {
            c.MaxSize = cfg.MaxSize
        }
        if cfg.MaxBackups > 0 {
            c.MaxBackups = cfg.MaxBackups
        }
        if cfg.MaxAge > 0 {
            c.MaxAge = cfg.MaxAge
        }
        c.Compress = cfg.Compress
        c.Development = cfg.Development
        for k, v := range cfg.InitialFields {
            c.InitialFields[k] = v
        }
    }
}

// WithField adds a field attached to every entry.
func WithField(key string, value interface{}) Option {
    return func(c *Config) {
        c.InitialFields[key] = value
    }
}

// NewLogger creates a new logger instance
func NewLogger(opts ...Option) (Logger, error) {
    cfg := DefaultConfig()
    for _, opt := range opts {
        opt(&cfg)
    }

    // Create directories for file outputs
    for _, path := range cfg.OutputPaths {
        if path != "stdout" && path != "stderr" {
            if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
                return nil, fmt.Errorf("can't create log directory: %w", err)
            }
        }
    }

    encoderConfig := zapcore.EncoderConfig{
        TimeKey:        "timestamp",
        LevelKey:       "level",
        NameKey:        "logger",
        CallerKey:      "caller",
        FunctionKey:    zapcore.OmitKey,
        MessageKey:     "message",
        StacktraceKey:  "stacktrace",
        LineEnding:     zapcore.DefaultLineEnding,
        EncodeLevel:    zapcore.LowercaseLevelEncoder,
        EncodeTime:     zapcore.ISO8601TimeEncoder,
        EncodeDuration: zapcore.MillisDurationEncoder,
        EncodeCaller:   zapcore.ShortCallerEncoder,
    }

    level := zap.NewAtomicLevel()
    if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
        return nil, fmt.Errorf("can't parse log level: %w", err)
    }

    var cores []zapcore.Core
    for _, path := range cfg.OutputPaths {
        var writer zapcore.WriteSyncer
        switch path {
        case "stdout":
            writer = zapcore.AddSync(os.Stdout)
        case "stderr":
            writer = zapcore.AddSync(os.Stderr)
        default:
            writer = zapcore.AddSync(&lumberjack.Logger{
                Filename:   path,
                MaxSize:    cfg.MaxSize,
                MaxBackups: cfg.MaxBackups,
                MaxAge:     cfg.MaxAge,
                Compress:   cfg.Compress,
            })
        }

        var encoder zapcore.Encoder
        if cfg.Encoding == "json" {
            encoder = zapcore.NewJSONEncoder(encoderConfig)
        } else {
            encoder = zapcore.NewConsoleEncoder(encoderConfig)
        }

        cores = append(cores, zapcore.NewCore(encoder, writer, level))
    }

    options := []zap.Option{
        zap.AddCaller(),
        zap.AddCallerSkip(1),
    }
    if cfg.Development {
        options = append(options, zap.Development())
    }
    if len(cfg.InitialFields) > 0 {
        fields := make([]zap.Field, 0, len(cfg.InitialFields))
        for k, v := range cfg.InitialFields {
            fields = append(fields, zap.Any(k, v))
        }
        options = append(options, zap.Fields(fields...))
    }

    return &logger{zap: zap.New(zapcore.NewTee(cores...), options...)}, nil
}

// NewNop returns a logger that discards everything.
func NewNop() Logger {
    return &logger{zap: zap.NewNop()}
}

// Various field constructors
func String(key string, val string) Field           { return zap.String(key, val) }
func Strings(key string, val []string) Field        { return zap.Strings(key, val) }
func Int(key string, val int) Field                 { return zap.Int(key, val) }
func Int64(key string, val int64) Field             { return zap.Int64(key, val) }
func Float64(key string, val float64) Field         { return zap.Float64(key, val) }
func Bool(key string, val bool) Field               { return zap.Bool(key, val) }
func Any(key string, val interface{}) Field         { return zap.Any(key, val) }
func Error(err error) Field                         { return zap.Error(err) }
func Time(key string, val time.Time) Field          { return zap.Time(key, val) }
func Duration(key string, val time.Duration) Field  { return zap.Duration(key, val) }
func Stringer(key string, val fmt.Stringer) Field   { return zap.Stringer(key, val) }

func (l *logger) Debug(msg string, fields ...Field) {
    l.zap.Debug(msg, fields...)
}

func (l *logger) Info(msg string, fields ...Field) {
    l.zap.Info(msg, fields...)
}

func (l *logger) Warn(msg string, fields ...Field) {
    l.zap.Warn(msg, fields...)
}

func (l *logger) Error(msg string, fields ...Field) {
    l.zap.Error(msg, fields...)
}

func (l *logger) Fatal(msg string, fields ...Field) {
    l.zap.Fatal(msg, fields...)
}

func (l *logger) With(fields ...Field) Logger {
    return &logger{zap: l.zap.With(fields...)}
}

func (l *logger) Named(name string) Logger {
    return &logger{zap: l.zap.Named(name)}
}

func (l *logger) Sync() error {
    return l.zap.Sync()
}

type ctxKey string

const (
    jobIDKey   ctxKey = "job_id"
    requestKey ctxKey = "request_id"
)

// ContextWithJobID stores the async job id so FromContext can pick it up.
func ContextWithJobID(ctx context.Context, id string) context.Context {
    return context.WithValue(ctx, jobIDKey, id)
}

// ContextWithRequestID stores the HTTP request id.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
    return context.WithValue(ctx, requestKey, id)
}

// FromContext decorates l with the ids carried by ctx.
func FromContext(ctx context.Context, l Logger) Logger {
    fields := make([]Field, 0, 2)
    if id, ok := ctx.Value(jobIDKey).(string); ok && id != "" {
        fields = append(fields, String("jobId", id))
    }
    if id, ok := ctx.Value(requestKey).(string); ok && id != "" {
        fields = append(fields, String("requestId", id))
    }
    if len(fields) == 0 {
        return l
    }
    return l.With(fields...)
}
