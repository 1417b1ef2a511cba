// internal/utils/validator/image.go
package validator

import (
    "fmt"
    "io"
    "mime/multipart"
    "net/http"
    "path/filepath"
    "strings"

    "github.com/feichai0017/vision-ocr/internal/agent/codec"
    "github.com/feichai0017/vision-ocr/internal/models"
    "github.com/feichai0017/vision-ocr/pkg/logger"
)

// ImageValidator 上传图像验证器
type ImageValidator struct {
    logger logger.Logger
    config *ValidatorConfig
    codec  *codec.Codec
}

// ValidatorConfig 验证器配置
type ValidatorConfig struct {
    MaxFileSize  int64               // 最大文件大小（字节）
    AllowedTypes map[string][]string // 允许的文件类型 {扩展名: []MIME类型}
    MinDimension int                 // 图片最小尺寸
    MaxDimension int                 // 图片最大尺寸
}

// ValidationResult 验证结果
type ValidationResult struct {
    IsValid  bool                 `json:"isValid"`
    Errors   []ValidationError    `json:"errors,omitempty"`
    FileInfo models.ImageMetadata `json:"fileInfo"`
}

// ValidationError 验证错误
type ValidationError struct {
    Code    string `json:"code"`
    Message string `json:"message"`
    Field   string `json:"field,omitempty"`
}

func DefaultConfig() *ValidatorConfig {
    return &ValidatorConfig{
        MaxFileSize: 20 * 1024 * 1024,
        AllowedTypes: map[string][]string{
            ".jpg":  {"image/jpeg"},
            ".jpeg": {"image/jpeg"},
            ".png":  {"image/png"},
            ".gif":  {"image/gif"},
            ".bmp":  {"image/bmp"},
            ".webp": {"image/webp"},
            // http.DetectContentType does not know TIFF
            ".tif":  {"image/tiff", "application/octet-stream"},
            ".tiff": {"image/tiff", "application/octet-stream"},
        },
        MinDimension: 16,
        MaxDimension: 20000,
    }
}

// NewImageValidator 创建新的图像验证器
func NewImageValidator(log logger.Logger, config *ValidatorConfig) *ImageValidator {
    if config == nil {
        config = DefaultConfig()
    }
    if log == nil {
        log = logger.NewNop()
    }
    return &ImageValidator{
        logger: log.Named("validator"),
        config: config,
        codec:  codec.NewCodec(log, models.DefaultPreprocessOptions()),
    }
}

// ValidateFile reads an uploaded file and validates its content. The bytes
// are returned so the caller does not read the upload twice.
func (v *ImageValidator) ValidateFile(file *multipart.FileHeader) (*ValidationResult, []byte, error) {
    if file.Size > v.config.MaxFileSize {
        return v.reject(file.Filename, file.Size, ValidationError{
            Code:    "FILE_TOO_LARGE",
            Message: fmt.Sprintf("File size exceeds maximum limit of %d bytes", v.config.MaxFileSize),
            Field:   "size",
        }), nil, nil
    }

    f, err := file.Open()
    if err != nil {
        return nil, nil, fmt.Errorf("failed to open file: %w", err)
    }
    defer f.Close()

    data, err := io.ReadAll(io.LimitReader(f, v.config.MaxFileSize+1))
    if err != nil {
        return nil, nil, fmt.Errorf("failed to read file: %w", err)
    }
    return v.Validate(file.Filename, data), data, nil
}

// Validate checks size, extension, sniffed MIME type and pixel dimensions.
func (v *ImageValidator) Validate(filename string, data []byte) *ValidationResult {
    size := int64(len(data))
    if size > v.config.MaxFileSize {
        return v.reject(filename, size, ValidationError{
            Code:    "FILE_TOO_LARGE",
            Message: fmt.Sprintf("File size exceeds maximum limit of %d bytes", v.config.MaxFileSize),
            Field:   "size",
        })
    }

    ext := strings.ToLower(filepath.Ext(filename))
    allowed, ok := v.config.AllowedTypes[ext]
    if !ok {
        return v.reject(filename, size, ValidationError{
            Code:    "INVALID_FILE_TYPE",
            Message: fmt.Sprintf("File type %s is not allowed", ext),
            Field:   "extension",
        })
    }

    result := &ValidationResult{IsValid: true}
    mimeType := http.DetectContentType(data)
    if !contains(allowed, mimeType) {
        result.addError(ValidationError{
            Code:    "INVALID_MIME_TYPE",
            Message: fmt.Sprintf("Invalid MIME type %s for extension %s", mimeType, ext),
            Field:   "mimeType",
        })
    }

    meta, err := v.codec.Inspect(filename, data)
    if err != nil {
        result.FileInfo = models.ImageMetadata{Filename: filename, FileSize: size, MimeType: mimeType}
        result.addError(ValidationError{
            Code:    "UNREADABLE_IMAGE",
            Message: err.Error(),
            Field:   "content",
        })
        v.logResult(result)
        return result
    }
    result.FileInfo = meta

    longest, shortest := meta.Width, meta.Height
    if shortest > longest {
        longest, shortest = shortest, longest
    }
    if shortest < v.config.MinDimension {
        result.addError(ValidationError{
            Code:    "IMAGE_TOO_SMALL",
            Message: fmt.Sprintf("Image is %dx%d, minimum side is %d pixels", meta.Width, meta.Height, v.config.MinDimension),
            Field:   "dimensions",
        })
    }
    if v.config.MaxDimension > 0 && longest > v.config.MaxDimension {
        result.addError(ValidationError{
            Code:    "IMAGE_TOO_LARGE",
            Message: fmt.Sprintf("Image is %dx%d, maximum side is %d pixels", meta.Width, meta.Height, v.config.MaxDimension),
            Field:   "dimensions",
        })
    }
    v.logResult(result)
    return result
}

// Message joins every validation error into one line.
func (r *ValidationResult) Message() string {
    msgs := make([]string, len(r.Errors))
    for i, e := range r.Errors {
        msgs[i] = e.Message
    }
    return strings.Join(msgs, "; ")
}

func (r *ValidationResult) addError(e ValidationError) {
    r.IsValid = false
    r.Errors = append(r.Errors, e)
}

func (v *ImageValidator) reject(filename string, size int64, e ValidationError) *ValidationResult {
    result := &ValidationResult{
        FileInfo: models.ImageMetadata{Filename: filename, FileSize: size},
    }
    result.addError(e)
    v.logResult(result)
    return result
}

func (v *ImageValidator) logResult(r *ValidationResult) {
    if r.IsValid {
        return
    }
    v.logger.Debug("Upload rejected",
        logger.String("filename", r.FileInfo.Filename),
        logger.Int64("size", r.FileInfo.FileSize),
        logger.String("reason", r.Message()),
    )
}

func contains(list []string, s string) bool {
    for _, v := range list {
        if v == s {
            return true
        }
    }
    return false
}
