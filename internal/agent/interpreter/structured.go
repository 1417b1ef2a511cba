package interpreter

import (
    "strings"

    "github.com/yuin/goldmark"
    "github.com/yuin/goldmark/ast"
    "github.com/yuin/goldmark/extension"
    extast "github.com/yuin/goldmark/extension/ast"
    "github.com/yuin/goldmark/text"

    "github.com/feichai0017/vision-ocr/internal/models"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.Table))

func interpretStructured(raw string) (*models.FormattedResult, error) {
    lines := strings.Split(normalizeNewlines(raw), "\n")
    src := strings.Join(trimBlankLines(lines), "\n")

    b := &sectionBuilder{source: []byte(src), current: -1}
    doc := markdown.Parser().Parse(text.NewReader(b.source))
    for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
        b.block(n)
    }

    res := &models.FormattedResult{Text: src}
    if !b.structured {
        // No table or list markers: keep everything as one section.
        res.Structured = &models.StructuredDocument{
            Sections:     []models.Section{{Text: []string{src}}},
            Unstructured: true,
        }
        res.Degraded = true
        res.Warning = "no tables or lists found, returning unstructured text"
        return res, nil
    }
    res.Structured = &models.StructuredDocument{Sections: b.all}
    return res, nil
}

type sectionBuilder struct {
    source     []byte
    all        []models.Section
    current    int // index into all, -1 before the first section
    structured bool
}

func (b *sectionBuilder) section() *models.Section {
    if b.current < 0 {
        b.all = append(b.all, models.Section{})
        b.current = len(b.all) - 1
    }
    return &b.all[b.current]
}

func (b *sectionBuilder) block(n ast.Node) {
    switch node := n.(type) {
    case *ast.Heading:
        b.all = append(b.all, models.Section{
            Heading: b.inline(node),
            Level:   node.Level,
        })
        b.current = len(b.all) - 1
    case *ast.Paragraph, *ast.TextBlock:
        if t := b.inline(node); t != "" {
            s := b.section()
            s.Text = append(s.Text, t)
        }
    case *ast.List:
        b.structured = true
        s := b.section()
        s.Lists = append(s.Lists, b.listItems(node, nil))
    case *extast.Table:
        b.structured = true
        s := b.section()
        s.Tables = append(s.Tables, b.table(node))
    case *ast.FencedCodeBlock, *ast.CodeBlock:
        var sb strings.Builder
        lines := n.Lines()
        for i := 0; i < lines.Len(); i++ {
            seg := lines.At(i)
            sb.Write(seg.Value(b.source))
        }
        if t := strings.TrimRight(sb.String(), "\n"); t != "" {
            s := b.section()
            s.Text = append(s.Text, t)
        }
    case *ast.Blockquote:
        for c := n.FirstChild(); c != nil; c = c.NextSibling() {
            b.block(c)
        }
    }
}

// listItems flattens a list, nested lists included, into item texts.
func (b *sectionBuilder) listItems(list *ast.List, items []string) []string {
    for item := list.FirstChild(); item != nil; item = item.NextSibling() {
        var parts []string
        var nested []*ast.List
        for c := item.FirstChild(); c != nil; c = c.NextSibling() {
            if l, ok := c.(*ast.List); ok {
                nested = append(nested, l)
                continue
            }
            if t := b.inline(c); t != "" {
                parts = append(parts, t)
            }
        }
        if len(parts) > 0 {
            items = append(items, strings.Join(parts, " "))
        }
        for _, l := range nested {
            items = b.listItems(l, items)
        }
    }
    return items
}

func (b *sectionBuilder) table(t *extast.Table) models.Table {
    var out models.Table
    for row := t.FirstChild(); row != nil; row = row.NextSibling() {
        var cells []string
        for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
            cells = append(cells, b.inline(cell))
        }
        if _, ok := row.(*extast.TableHeader); ok {
            out.Header = cells
            continue
        }
        out.Rows = append(out.Rows, cells)
    }
    return out
}

// inline concatenates the text of n's inline descendants. Soft line breaks
// become spaces.
func (b *sectionBuilder) inline(n ast.Node) string {
    var sb strings.Builder
    var walk func(ast.Node)
    walk = func(n ast.Node) {
        for c := n.FirstChild(); c != nil; c = c.NextSibling() {
            switch node := c.(type) {
            case *ast.Text:
                sb.Write(node.Segment.Value(b.source))
                if node.SoftLineBreak() || node.HardLineBreak() {
                    sb.WriteByte(' ')
                }
            case *ast.String:
                sb.Write(node.Value)
            default:
                walk(c)
            }
        }
    }
    walk(n)
    return strings.TrimSpace(sb.String())
}
