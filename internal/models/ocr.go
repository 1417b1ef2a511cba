package models

import (
    "fmt"
    "strings"
    "time"
)

// FormatType 请求的输出格式
type FormatType string

const (
    FormatMarkdown   FormatType = "markdown"
    FormatText       FormatType = "text"
    FormatJSON       FormatType = "json"
    FormatStructured FormatType = "structured"
    FormatKeyValue   FormatType = "key_value"
)

// FormatTypes lists every supported format in display order.
var FormatTypes = []FormatType{
    FormatMarkdown,
    FormatText,
    FormatJSON,
    FormatStructured,
    FormatKeyValue,
}

// ParseFormatType validates s against the supported formats.
func ParseFormatType(s string) (FormatType, error) {
    f := FormatType(strings.ToLower(strings.TrimSpace(s)))
    if f.Valid() {
        return f, nil
    }
    return "", Errorf(KindInvalidArgument, "parse format", "", "unsupported format type %q", s)
}

func (f FormatType) Valid() bool {
    for _, known := range FormatTypes {
        if f == known {
            return true
        }
    }
    return false
}

func (f FormatType) String() string { return string(f) }

// PreprocessOptions 图像预处理选项
type PreprocessOptions struct {
    MaxDimension int     `json:"maxDimension" yaml:"maxDimension"` // longest side after resize
    MinDimension int     `json:"minDimension" yaml:"minDimension"` // shortest side is never downscaled below this
    Quality      int     `json:"quality" yaml:"quality"`           // 0 = PNG, 1..100 = JPEG quality
    Grayscale    bool    `json:"grayscale" yaml:"grayscale"`
    Contrast     float64 `json:"contrast" yaml:"contrast"` // percentage, 0 disables
    Sharpen      float64 `json:"sharpen" yaml:"sharpen"`   // sigma, 0 disables
}

// DefaultPreprocessOptions returns the options used when none are configured.
func DefaultPreprocessOptions() PreprocessOptions {
    return PreprocessOptions{
        MaxDimension: 2048,
        MinDimension: 1024,
        Quality:      0,
        Grayscale:    true,
    }
}

// ImageInput 单个待识别图像
type ImageInput struct {
    ID      string             `json:"id"`
    Path    string             `json:"path,omitempty"`
    Data    []byte             `json:"-"`
    Options *PreprocessOptions `json:"options,omitempty"` // nil uses the service defaults
}

// EncodedImage 编码后的图像载荷
type EncodedImage struct {
    SourceID string `json:"sourceId"`
    MIMEType string `json:"mimeType"`
    Data     string `json:"data"` // base64
    Width    int    `json:"width"`
    Height   int    `json:"height"`
}

// OCRRequest 发送给模型后端的请求
type OCRRequest struct {
    ImageID string
    Image   EncodedImage
    Format  FormatType
    Model   string
}

// KeyValuePair keeps key_value output in the order it was recognized.
type KeyValuePair struct {
    Key   string `json:"key"`
    Value string `json:"value"`
}

// StructuredDocument 结构化输出
type StructuredDocument struct {
    Sections     []Section `json:"sections"`
    Unstructured bool      `json:"unstructured"`
}

type Section struct {
    Heading string     `json:"heading,omitempty"`
    Level   int        `json:"level,omitempty"`
    Text    []string   `json:"text,omitempty"`
    Tables  []Table    `json:"tables,omitempty"`
    Lists   [][]string `json:"lists,omitempty"`
}

type Table struct {
    Header []string   `json:"header"`
    Rows   [][]string `json:"rows"`
}

// FormattedResult 按格式整形后的模型输出
type FormattedResult struct {
    Format     FormatType          `json:"format"`
    Text       string              `json:"text"`
    JSON       interface{}         `json:"json,omitempty"`
    Structured *StructuredDocument `json:"structured,omitempty"`
    KeyValues  map[string]string   `json:"keyValues,omitempty"`
    Pairs      []KeyValuePair      `json:"pairs,omitempty"`
    Raw        string              `json:"raw"`
    Degraded   bool                `json:"degraded"`
    Warning    string              `json:"warning,omitempty"`
}

// Failure 失败描述
type Failure struct {
    Kind    ErrorKind `json:"kind"`
    Message string    `json:"message"`
}

// FailureFrom converts err into a Failure.
func FailureFrom(err error) *Failure {
    if err == nil {
        return nil
    }
    return &Failure{Kind: KindOf(err), Message: err.Error()}
}

// OCRResult 单个图像的结果
type OCRResult struct {
    ImageID  string           `json:"imageId"`
    Success  bool             `json:"success"`
    Output   *FormattedResult `json:"output,omitempty"`
    Error    *Failure         `json:"error,omitempty"`
    Duration time.Duration    `json:"duration"`
}

type Statistics struct {
    Total      int `json:"total"`
    Successful int `json:"successful"`
    Failed     int `json:"failed"`
}

// BatchReport 批处理汇总
type BatchReport struct {
    Format     FormatType           `json:"format"`
    Model      string               `json:"model"`
    Results    map[string]OCRResult `json:"results"`
    Statistics Statistics           `json:"statistics"`
    StartedAt  time.Time            `json:"startedAt"`
    FinishedAt time.Time            `json:"finishedAt"`
}

// Errors returns the failed results keyed by image id.
func (r *BatchReport) Errors() map[string]*Failure {
    out := make(map[string]*Failure)
    for id, res := range r.Results {
        if !res.Success {
            out[id] = res.Error
        }
    }
    return out
}

func (s Statistics) String() string {
    return fmt.Sprintf("total=%d successful=%d failed=%d", s.Total, s.Successful, s.Failed)
}
