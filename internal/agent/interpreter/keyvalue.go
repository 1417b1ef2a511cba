package interpreter

import (
    "fmt"
    "regexp"
    "strings"

    "github.com/feichai0017/vision-ocr/internal/models"
)

// UnmatchedKey collects key_value lines that have no recognizable delimiter.
const UnmatchedKey = "_unmatched"

var (
    bulletPattern    = regexp.MustCompile(`^(?:[-*+•]\s+|\d+[.)]\s+)`)
    separatorPattern = regexp.MustCompile(`^[\s|:\-]+$`) // only applied to lines holding a pipe
    delimiters       = []string{":", "=", "|", "\t", " - "}
)

func interpretKeyValue(raw string) (*models.FormattedResult, error) {
    res := &models.FormattedResult{KeyValues: map[string]string{}}
    var unmatched []string

    for _, line := range strings.Split(normalizeNewlines(raw), "\n") {
        if isTableSeparator(strings.TrimSpace(line)) {
            continue
        }
        line = cleanKeyValueLine(line)
        if line == "" {
            continue
        }
        key, value, ok := splitKeyValue(line)
        if !ok {
            unmatched = append(unmatched, line)
            continue
        }
        key = uniqueKey(res.KeyValues, key)
        res.KeyValues[key] = value
        res.Pairs = append(res.Pairs, models.KeyValuePair{Key: key, Value: value})
    }

    if len(unmatched) > 0 {
        key := uniqueKey(res.KeyValues, UnmatchedKey)
        value := strings.Join(unmatched, "\n")
        res.KeyValues[key] = value
        res.Pairs = append(res.Pairs, models.KeyValuePair{Key: key, Value: value})
        if len(res.Pairs) == 1 {
            res.Degraded = true
            res.Warning = "no key-value pairs found"
        }
    }

    var sb strings.Builder
    for _, p := range res.Pairs {
        if strings.HasPrefix(p.Key, UnmatchedKey) {
            sb.WriteString(p.Value + "\n")
            continue
        }
        fmt.Fprintf(&sb, "%s: %s\n", p.Key, p.Value)
    }
    res.Text = strings.TrimSuffix(sb.String(), "\n")
    return res, nil
}

// isTableSeparator reports whether line is the |---|---| row under a
// markdown table header.
func isTableSeparator(line string) bool {
    return strings.Contains(line, "|") && strings.Contains(line, "-") && separatorPattern.MatchString(line)
}

// cleanKeyValueLine strips list markers, a leading bold label and table borders.
func cleanKeyValueLine(line string) string {
    line = strings.TrimSpace(line)
    line = bulletPattern.ReplaceAllString(line, "")
    line = unwrapLeadingBold(line)
    if strings.HasPrefix(line, "|") && strings.HasSuffix(line, "|") && len(line) > 1 {
        line = line[1 : len(line)-1]
    }
    return strings.TrimSpace(line)
}

// unwrapLeadingBold turns "**Name:** Alice" and "**Name**: Alice" into plain
// labels. Bold elsewhere in the line is left alone.
func unwrapLeadingBold(line string) string {
    if !strings.HasPrefix(line, "**") {
        return line
    }
    end := strings.Index(line[2:], "**")
    if end <= 0 {
        return line
    }
    return line[2:2+end] + line[4+end:]
}

// unwrapBold removes a bold marker pair enclosing all of s.
func unwrapBold(s string) string {
    if len(s) > 4 && strings.HasPrefix(s, "**") && strings.HasSuffix(s, "**") {
        return strings.TrimSpace(s[2 : len(s)-2])
    }
    return s
}

// splitKeyValue splits at whichever delimiter occurs first in line.
func splitKeyValue(line string) (string, string, bool) {
    at, width := -1, 0
    for _, d := range delimiters {
        if i := strings.Index(line, d); i >= 0 && (at < 0 || i < at) {
            at, width = i, len(d)
        }
    }
    if at < 0 {
        return "", "", false
    }
    key := unwrapBold(strings.TrimSpace(line[:at]))
    if key == "" {
        return "", "", false
    }
    return key, unwrapBold(strings.TrimSpace(line[at+width:])), true
}

// uniqueKey suffixes repeated keys with " (2)", " (3)" and so on.
func uniqueKey(seen map[string]string, key string) string {
    if _, dup := seen[key]; !dup {
        return key
    }
    for n := 2; ; n++ {
        candidate := fmt.Sprintf("%s (%d)", key, n)
        if _, dup := seen[candidate]; !dup {
            return candidate
        }
    }
}
