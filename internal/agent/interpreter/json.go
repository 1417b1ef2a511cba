package interpreter

import (
    "bytes"
    "encoding/json"
    "strings"

    "github.com/feichai0017/vision-ocr/internal/models"
)

func interpretJSON(raw string) (*models.FormattedResult, error) {
    trimmed := strings.TrimSpace(normalizeNewlines(raw))
    if res, ok := parseJSON(trimmed); ok {
        return res, nil
    }

    body := stripCodeFences(trimmed)
    for start := 0; start < len(body); start++ {
        if body[start] != '{' && body[start] != '[' {
            continue
        }
        end := balancedEnd(body, start)
        if end < 0 {
            continue
        }
        if res, ok := parseJSON(body[start:end]); ok {
            res.Degraded = true
            res.Warning = "extracted json from surrounding text"
            return res, nil
        }
    }

    res := &models.FormattedResult{
        Text:     trimmed,
        Degraded: true,
        Warning:  "model output is not valid json, returning raw text",
    }
    return res, models.Errorf(models.KindFormatMismatch, "interpret", "", "no json value found in %d bytes of output", len(raw))
}

// parseJSON decodes s and re-indents it with two spaces, keeping key order.
func parseJSON(s string) (*models.FormattedResult, bool) {
    if s == "" || !json.Valid([]byte(s)) {
        return nil, false
    }
    dec := json.NewDecoder(strings.NewReader(s))
    dec.UseNumber()
    var v interface{}
    if err := dec.Decode(&v); err != nil {
        return nil, false
    }
    var buf bytes.Buffer
    if err := json.Indent(&buf, []byte(s), "", "  "); err != nil {
        return nil, false
    }
    return &models.FormattedResult{Text: buf.String(), JSON: v}, true
}

// stripCodeFences removes markdown fence lines such as ```json.
func stripCodeFences(s string) string {
    lines := strings.Split(s, "\n")
    kept := lines[:0]
    for _, line := range lines {
        if strings.HasPrefix(strings.TrimSpace(line), "```") {
            continue
        }
        kept = append(kept, line)
    }
    return strings.Join(kept, "\n")
}

// balancedEnd returns the index just past the bracket closing s[start], or -1.
// Brackets inside string literals are ignored.
func balancedEnd(s string, start int) int {
    depth := 0
    inString, escaped := false, false
    for i := start; i < len(s); i++ {
        c := s[i]
        if inString {
            switch {
            case escaped:
                escaped = false
            case c == '\\':
                escaped = true
            case c == '"':
                inString = false
            }
            continue
        }
        switch c {
        case '"':
            inString = true
        case '{', '[':
            depth++
        case '}', ']':
            depth--
            if depth == 0 {
                return i + 1
            }
            if depth < 0 {
                return -1
            }
        }
    }
    return -1
}

