package interpreter

import (
    "strings"

    "github.com/feichai0017/vision-ocr/internal/models"
)

func interpretText(raw string) (*models.FormattedResult, error) {
    lines := strings.Split(normalizeNewlines(raw), "\n")
    for i, line := range lines {
        lines[i] = strings.TrimRight(line, " \t")
    }
    return &models.FormattedResult{Text: strings.Join(trimBlankLines(lines), "\n")}, nil
}

// interpretMarkdown keeps the document verbatim, including trailing double
// spaces that mark hard line breaks.
func interpretMarkdown(raw string) (*models.FormattedResult, error) {
    lines := strings.Split(normalizeNewlines(raw), "\n")
    return &models.FormattedResult{Text: strings.Join(trimBlankLines(lines), "\n")}, nil
}
