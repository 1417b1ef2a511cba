package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/feichai0017/vision-ocr/internal/models"
	"github.com/feichai0017/vision-ocr/pkg/converters"
)

func parseFormat(flag, fallback string) (models.FormatType, error) {
	if flag == "" {
		flag = fallback
	}
	return models.ParseFormatType(flag)
}

// converterFor picks the report converter from the output file extension.
func converterFor(path string) (converters.ReportConverter, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return converters.ForName("json")
	case ".md", ".markdown":
		return converters.ForName("markdown")
	case ".txt":
		return converters.ForName("text")
	default:
		return nil, fmt.Errorf("cannot infer report format from %q: use .json, .md or .txt", path)
	}
}

func resultText(out *models.FormattedResult) string {
	if out == nil {
		return ""
	}
	if out.Degraded && out.Text == "" {
		return out.Raw
	}
	return out.Text
}

// writeText writes to path, or to stdout when path is empty.
func writeText(path, text string) error {
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	if path == "" {
		_, err := os.Stdout.WriteString(text)
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
