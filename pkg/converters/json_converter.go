package converters

import (
    "encoding/json"
    "fmt"
    "sort"
    "strings"

    "github.com/feichai0017/vision-ocr/internal/models"
)

// ReportConverter 定义报告转换器接口
type ReportConverter interface {
    Convert(report *models.BatchReport) ([]byte, error)
    ContentType() string
    Extension() string
}

// ReportDocument is the downloadable JSON form of a batch report. It keeps
// every BatchReport field and adds the failures keyed by image id.
type ReportDocument struct {
    *models.BatchReport
    Errors map[string]*models.Failure `json:"errors"`
}

// JSONConverter renders a report as indented JSON.
type JSONConverter struct{}

func NewJSONConverter() *JSONConverter {
    return &JSONConverter{}
}

func (c *JSONConverter) Convert(report *models.BatchReport) ([]byte, error) {
    if report == nil {
        return nil, fmt.Errorf("no report to convert")
    }
    data, err := json.MarshalIndent(ReportDocument{BatchReport: report, Errors: report.Errors()}, "", "  ")
    if err != nil {
        return nil, fmt.Errorf("failed to marshal report: %w", err)
    }
    return data, nil
}

func (c *JSONConverter) ContentType() string { return "application/json" }
func (c *JSONConverter) Extension() string   { return ".json" }

// MarkdownConverter concatenates every result into one markdown document,
// one section per image in id order.
type MarkdownConverter struct{}

func NewMarkdownConverter() *MarkdownConverter {
    return &MarkdownConverter{}
}

func (c *MarkdownConverter) Convert(report *models.BatchReport) ([]byte, error) {
    if report == nil {
        return nil, fmt.Errorf("no report to convert")
    }

    var sb strings.Builder
    sb.WriteString("# OCR Report\n\n")
    fmt.Fprintf(&sb, "- Format: %s\n", report.Format)
    if report.Model != "" {
        fmt.Fprintf(&sb, "- Model: %s\n", report.Model)
    }
    fmt.Fprintf(&sb, "- Total: %d, successful: %d, failed: %d\n",
        report.Statistics.Total, report.Statistics.Successful, report.Statistics.Failed)

    for _, id := range SortedIDs(report) {
        r := report.Results[id]
        fmt.Fprintf(&sb, "\n## %s\n\n", id)
        switch {
        case !r.Success:
            kind, msg := models.KindUnknown, ""
            if r.Error != nil {
                kind, msg = r.Error.Kind, r.Error.Message
            }
            fmt.Fprintf(&sb, "> **Failed** (%s): %s\n", kind, msg)
        case r.Output == nil:
            sb.WriteString("_No output_\n")
        case report.Format == models.FormatJSON && r.Output.JSON != nil:
            sb.WriteString("```json\n" + r.Output.Text + "\n```\n")
        default:
            sb.WriteString(strings.TrimRight(r.Output.Text, "\n") + "\n")
        }
        if r.Success && r.Output != nil && r.Output.Degraded && r.Output.Warning != "" {
            fmt.Fprintf(&sb, "\n> Note: %s\n", r.Output.Warning)
        }
    }
    return []byte(sb.String()), nil
}

func (c *MarkdownConverter) ContentType() string { return "text/markdown; charset=utf-8" }
func (c *MarkdownConverter) Extension() string   { return ".md" }

// TextConverter renders plain text with a banner line per image.
type TextConverter struct{}

func (c *TextConverter) Convert(report *models.BatchReport) ([]byte, error) {
    if report == nil {
        return nil, fmt.Errorf("no report to convert")
    }
    var sb strings.Builder
    for i, id := range SortedIDs(report) {
        if i > 0 {
            sb.WriteString("\n")
        }
        r := report.Results[id]
        fmt.Fprintf(&sb, "=== %s ===\n", id)
        if !r.Success || r.Output == nil {
            if r.Error != nil {
                fmt.Fprintf(&sb, "ERROR (%s): %s\n", r.Error.Kind, r.Error.Message)
            }
            continue
        }
        sb.WriteString(strings.TrimRight(r.Output.Text, "\n") + "\n")
    }
    fmt.Fprintf(&sb, "\n%s\n", report.Statistics)
    return []byte(sb.String()), nil
}

func (c *TextConverter) ContentType() string { return "text/plain; charset=utf-8" }
func (c *TextConverter) Extension() string   { return ".txt" }

// ForName returns the converter for "json", "markdown" (or "md") and "text".
func ForName(name string) (ReportConverter, error) {
    switch strings.ToLower(strings.TrimSpace(name)) {
    case "", "json":
        return NewJSONConverter(), nil
    case "markdown", "md":
        return NewMarkdownConverter(), nil
    case "text", "txt":
        return &TextConverter{}, nil
    default:
        return nil, fmt.Errorf("unsupported report format: %s", name)
    }
}

// SortedIDs returns the report's image ids in lexical order.
func SortedIDs(report *models.BatchReport) []string {
    ids := make([]string, 0, len(report.Results))
    for id := range report.Results {
        ids = append(ids, id)
    }
    sort.Strings(ids)
    return ids
}
