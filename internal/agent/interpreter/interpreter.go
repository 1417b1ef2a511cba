// Package interpreter shapes raw model output into the requested FormatType.
//
// Every handler is best effort: when the output cannot be parsed into the
// requested shape the raw text is preserved and the result is marked degraded.
package interpreter

import (
    "strings"

    "github.com/feichai0017/vision-ocr/internal/models"
    "github.com/feichai0017/vision-ocr/pkg/logger"
)

// Handler converts raw model text for a single format.
type Handler func(raw string) (*models.FormattedResult, error)

type Interpreter struct {
    handlers map[models.FormatType]Handler
    logger   logger.Logger
}

func New(log logger.Logger) *Interpreter {
    if log == nil {
        log = logger.NewNop()
    }
    return &Interpreter{
        handlers: map[models.FormatType]Handler{
            models.FormatText:       interpretText,
            models.FormatMarkdown:   interpretMarkdown,
            models.FormatJSON:       interpretJSON,
            models.FormatStructured: interpretStructured,
            models.FormatKeyValue:   interpretKeyValue,
        },
        logger: log.Named("interpreter"),
    }
}

// Interpret converts raw into the shape requested by format. A FormatMismatch
// error is returned together with a degraded result that still carries Raw.
func (i *Interpreter) Interpret(raw string, format models.FormatType) (*models.FormattedResult, error) {
    h, ok := i.handlers[format]
    if !ok {
        return nil, models.Errorf(models.KindInvalidArgument, "interpret", "", "unsupported format type %q", format)
    }

    res, err := h(raw)
    if res != nil {
        res.Format = format
        res.Raw = raw
    }
    if err != nil {
        i.logger.Warn("Model output did not match format",
            logger.String("format", format.String()),
            logger.Int("rawLength", len(raw)),
            logger.Error(err),
        )
        return res, err
    }
    if res.Degraded {
        i.logger.Debug("Model output interpreted with fallback",
            logger.String("format", format.String()),
            logger.String("warning", res.Warning),
        )
    }
    return res, nil
}

// normalizeNewlines converts CRLF and lone CR line endings to LF.
func normalizeNewlines(s string) string {
    s = strings.ReplaceAll(s, "\r\n", "\n")
    return strings.ReplaceAll(s, "\r", "\n")
}

// trimBlankLines drops leading and trailing lines that are empty or whitespace only.
func trimBlankLines(lines []string) []string {
    start, end := 0, len(lines)
    for start < end && strings.TrimSpace(lines[start]) == "" {
        start++
    }
    for end > start && strings.TrimSpace(lines[end-1]) == "" {
        end--
    }
    return lines[start:end]
}
