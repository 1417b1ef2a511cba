package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/feichai0017/vision-ocr/internal/models"
	"github.com/feichai0017/vision-ocr/pkg/logger"
)

var envOnce sync.Once

// loadDotEnv loads the .env file at the project root once. Variables already
// present in the environment win.
func loadDotEnv() {
	envOnce.Do(func() {
		// 获取当前文件的目录
		_, filename, _, _ := runtime.Caller(0)
		rootDir := filepath.Dir(filepath.Dir(filename))
		envPath := filepath.Join(rootDir, ".env")

		if err := godotenv.Load(envPath); err != nil {
			if err := godotenv.Load(); err != nil {
				log.Printf("Warning: .env file not found at %s, falling back to environment variables", envPath)
			}
		}
	})
}

// Config is the application configuration shared by the server, the worker
// and the CLI.
type Config struct {
	Backend      string                   `yaml:"backend"` // ollama | textract | tesseract
	Model        string                   `yaml:"model"`
	Endpoint     string                   `yaml:"endpoint"`
	Timeout      time.Duration            `yaml:"timeout"`
	MaxRetries   int                      `yaml:"maxRetries"`
	RetryBackoff time.Duration            `yaml:"retryBackoff"`
	MaxBackoff   time.Duration            `yaml:"maxBackoff"`
	Temperature  float64                  `yaml:"temperature"`
	KeepAlive    string                   `yaml:"keepAlive"`
	Workers      int                      `yaml:"workers"`
	Format       string                   `yaml:"format"`
	Preprocess   bool                     `yaml:"preprocess"`
	Image        models.PreprocessOptions `yaml:"image"`

	Server  ServerConfig  `yaml:"server"`
	Redis   RedisConfig   `yaml:"redis"`
	Storage StorageConfig `yaml:"storage"`
	Jobs    JobsConfig    `yaml:"jobs"`
	Log     logger.Config `yaml:"log"`
}

type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	MaxUploadSize  int64         `yaml:"maxUploadSize"`
	MaxBatchFiles  int           `yaml:"maxBatchFiles"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
	AllowOrigins   []string      `yaml:"allowOrigins"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type StorageConfig struct {
	Type        string `yaml:"type"` // s3 | minio | postgres
	PostgresDSN string `yaml:"postgresDSN"`
}

type JobsConfig struct {
	Concurrency int           `yaml:"concurrency"`
	Retention   time.Duration `yaml:"retention"`
	MaxRetry    int           `yaml:"maxRetry"`
}

// Default returns the configuration used when no file or override is present.
func Default() *Config {
	return &Config{
		Backend:      "ollama",
		Model:        "llama3.2-vision:11b",
		Endpoint:     "http://localhost:11434/api/generate",
		Timeout:      120 * time.Second,
		MaxRetries:   3,
		RetryBackoff: 500 * time.Millisecond,
		MaxBackoff:   8 * time.Second,
		Workers:      1,
		Format:       string(models.FormatMarkdown),
		Preprocess:   true,
		Image:        models.DefaultPreprocessOptions(),
		Server: ServerConfig{
			Addr:           ":8080",
			MaxUploadSize:  20 << 20,
			MaxBatchFiles:  100,
			RequestTimeout: 10 * time.Minute,
			AllowOrigins:   []string{"*"},
		},
		Redis: RedisConfig{Addr: "localhost:6379"},
		Storage: StorageConfig{
			Type: "minio",
		},
		Jobs: JobsConfig{
			Concurrency: 4,
			Retention:   24 * time.Hour,
			MaxRetry:    1,
		},
		Log: logger.DefaultConfig(),
	}
}

// Load reads path (optional) over the defaults and applies .env and
// environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	loadDotEnv()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Backend, "OCR_BACKEND")
	setString(&c.Model, "OCR_MODEL")
	setString(&c.Endpoint, "OCR_ENDPOINT")
	setString(&c.Format, "OCR_FORMAT")
	setString(&c.KeepAlive, "OCR_KEEP_ALIVE")
	setString(&c.Server.Addr, "SERVER_ADDR")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	setString(&c.Storage.Type, "STORAGE_TYPE")
	setString(&c.Storage.PostgresDSN, "POSTGRES_DSN")
	setString(&c.Log.Level, "LOG_LEVEL")

	if err := setInt(&c.Workers, "OCR_WORKERS"); err != nil {
		return err
	}
	if err := setInt(&c.MaxRetries, "OCR_MAX_RETRIES"); err != nil {
		return err
	}
	if err := setInt(&c.Redis.DB, "REDIS_DB"); err != nil {
		return err
	}
	if err := setDuration(&c.Timeout, "OCR_TIMEOUT"); err != nil {
		return err
	}
	if v := os.Getenv("OCR_PREPROCESS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid OCR_PREPROCESS %q: %w", v, err)
		}
		c.Preprocess = b
	}
	return nil
}

// Validate checks the values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Backend {
	case "ollama", "textract", "tesseract":
	default:
		return fmt.Errorf("unsupported backend: %s", c.Backend)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("maxRetries must not be negative, got %d", c.MaxRetries)
	}
	if _, err := models.ParseFormatType(c.Format); err != nil {
		return err
	}
	c.Format = strings.ToLower(strings.TrimSpace(c.Format))
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = n
	return nil
}

// setDuration accepts Go durations ("90s") or plain seconds ("90").
func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(secs) * time.Second
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = d
	return nil
}
