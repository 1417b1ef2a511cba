package model

import (
    "context"
    "encoding/base64"
    "encoding/json"
    "errors"
    "fmt"
    "strings"

    awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
    "github.com/aws/aws-sdk-go-v2/config"
    "github.com/aws/aws-sdk-go-v2/credentials"
    "github.com/aws/aws-sdk-go-v2/service/textract"
    "github.com/aws/aws-sdk-go-v2/service/textract/types"

    "github.com/feichai0017/vision-ocr/internal/models"
    "github.com/feichai0017/vision-ocr/pkg/logger"
)

// TextractAPI is the subset of the Textract client used here.
type TextractAPI interface {
    AnalyzeDocument(ctx context.Context, params *textract.AnalyzeDocumentInput, optFns ...func(*textract.Options)) (*textract.AnalyzeDocumentOutput, error)
}

type TextractConfig struct {
    Region        string
    AccessKey     string
    SecretKey     string
    MinConfidence float32
}

// TextractClient renders AWS Textract analysis as the text a vision model
// would have produced for the requested format.
type TextractClient struct {
    api    TextractAPI
    config *TextractConfig
    logger logger.Logger
}

func NewTextractClient(ctx context.Context, cfg *TextractConfig, log logger.Logger) (*TextractClient, error) {
    loadOpts := []func(*config.LoadOptions) error{
        config.WithRegion(cfg.Region),
    }
    if cfg.AccessKey != "" {
        loadOpts = append(loadOpts, config.WithCredentialsProvider(
            credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
        ))
    }

    awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
    if err != nil {
        return nil, fmt.Errorf("unable to load AWS config: %w", err)
    }
    return NewTextractClientWithAPI(textract.NewFromConfig(awsCfg), cfg, log), nil
}

func NewTextractClientWithAPI(api TextractAPI, cfg *TextractConfig, log logger.Logger) *TextractClient {
    if log == nil {
        log = logger.NewNop()
    }
    return &TextractClient{api: api, config: cfg, logger: log.Named("textract")}
}

func (c *TextractClient) Name() string { return "textract" }

func (c *TextractClient) Query(ctx context.Context, req models.OCRRequest) (string, error) {
    if !req.Format.Valid() {
        return "", models.Errorf(models.KindInvalidArgument, "query", req.ImageID, "unsupported format type %q", req.Format)
    }
    data, err := base64.StdEncoding.DecodeString(req.Image.Data)
    if err != nil {
        return "", models.NewError(models.KindUnsupportedFormat, "query", req.ImageID, err)
    }

    input := &textract.AnalyzeDocumentInput{
        Document:     &types.Document{Bytes: data},
        FeatureTypes: []types.FeatureType{types.FeatureTypeTables, types.FeatureTypeForms},
    }
    result, err := c.api.AnalyzeDocument(ctx, input)
    if err != nil {
        return "", c.classify(ctx, req.ImageID, err)
    }

    analysis := c.analyze(result.Blocks)
    c.logger.Debug("Textract analysis finished",
        logger.String("image", req.ImageID),
        logger.Int("lines", len(analysis.lines)),
        logger.Int("tables", len(analysis.tables)),
        logger.Int("fields", len(analysis.fields)),
    )
    return analysis.render(req.Format)
}

func (c *TextractClient) classify(ctx context.Context, imageID string, err error) error {
    if ctx.Err() != nil {
        return contextError(ctx, imageID, err)
    }
    var re *awshttp.ResponseError
    if errors.As(err, &re) {
        return models.NewError(models.KindModelError, "query", imageID, err)
    }
    if isTimeout(err) {
        return models.NewError(models.KindTimeout, "query", imageID, err)
    }
    return models.NewError(models.KindBackendUnavailable, "query", imageID, err)
}

type formField struct {
    Key   string `json:"key"`
    Value string `json:"value"`
}

type layoutAnalysis struct {
    lines  []string
    tables [][][]string
    fields []formField
    // line indexes whose words were also recognized inside a table or a form field
    inTable map[int]bool
    inField map[int]bool
}

func (c *TextractClient) analyze(blocks []types.Block) layoutAnalysis {
    byID := make(map[string]types.Block, len(blocks))
    for _, b := range blocks {
        if b.Id != nil {
            byID[*b.Id] = b
        }
    }

    var out layoutAnalysis
    var lineWords [][]string
    tableWords := map[string]bool{}
    fieldWords := map[string]bool{}
    for _, block := range blocks {
        switch block.BlockType {
        case types.BlockTypeLine:
            if block.Text != nil && (block.Confidence == nil || *block.Confidence >= c.config.MinConfidence) {
                out.lines = append(out.lines, *block.Text)
                lineWords = append(lineWords, wordIDs(block, byID))
            }
        case types.BlockTypeTable:
            if t := tableCells(block, byID); len(t) > 0 {
                out.tables = append(out.tables, t)
                markWords(block, byID, tableWords)
            }
        case types.BlockTypeKeyValueSet:
            if len(block.EntityTypes) > 0 && block.EntityTypes[0] == types.EntityTypeKey {
                key := childText(block, byID)
                value := valueText(block, byID)
                if key != "" {
                    out.fields = append(out.fields, formField{Key: key, Value: value})
                    markWords(block, byID, fieldWords)
                }
            }
        }
    }

    out.inTable = make(map[int]bool)
    out.inField = make(map[int]bool)
    for i, words := range lineWords {
        for _, w := range words {
            if tableWords[w] {
                out.inTable[i] = true
            }
            if fieldWords[w] {
                out.inField[i] = true
            }
        }
    }
    return out
}

func (a layoutAnalysis) render(format models.FormatType) (string, error) {
    switch format {
    case models.FormatText:
        return strings.Join(a.lines, "\n"), nil
    case models.FormatKeyValue:
        var sb strings.Builder
        for _, f := range a.fields {
            fmt.Fprintf(&sb, "%s: %s\n", strings.TrimSuffix(f.Key, ":"), f.Value)
        }
        // Text outside any form field is kept so it can still be filed as unmatched.
        for i, line := range a.lines {
            if !a.inField[i] {
                sb.WriteString(line + "\n")
            }
        }
        return sb.String(), nil
    case models.FormatJSON:
        doc := map[string]interface{}{
            "lines":  a.lines,
            "tables": a.tables,
            "fields": a.fields,
        }
        data, err := json.Marshal(doc)
        if err != nil {
            return "", fmt.Errorf("failed to marshal analysis: %w", err)
        }
        return string(data), nil
    default: // markdown, structured
        paragraphs := make([]string, 0, len(a.lines)+len(a.tables))
        for i, line := range a.lines {
            if !a.inTable[i] {
                paragraphs = append(paragraphs, line)
            }
        }
        for _, t := range a.tables {
            paragraphs = append(paragraphs, markdownTable(t))
        }
        return strings.Join(paragraphs, "\n\n"), nil
    }
}

// tableCells lays out the CELL children of a TABLE block on a row/column grid.
func tableCells(table types.Block, byID map[string]types.Block) [][]string {
    var cells []types.Block
    rows, cols := 0, 0
    for _, rel := range table.Relationships {
        if rel.Type != types.RelationshipTypeChild {
            continue
        }
        for _, id := range rel.Ids {
            cell, ok := byID[id]
            if !ok || cell.BlockType != types.BlockTypeCell || cell.RowIndex == nil || cell.ColumnIndex == nil {
                continue
            }
            cells = append(cells, cell)
            if int(*cell.RowIndex) > rows {
                rows = int(*cell.RowIndex)
            }
            if int(*cell.ColumnIndex) > cols {
                cols = int(*cell.ColumnIndex)
            }
        }
    }
    if rows == 0 || cols == 0 {
        return nil
    }
    grid := make([][]string, rows)
    for i := range grid {
        grid[i] = make([]string, cols)
    }
    for _, cell := range cells {
        grid[*cell.RowIndex-1][*cell.ColumnIndex-1] = childText(cell, byID)
    }
    return grid
}

func childText(block types.Block, byID map[string]types.Block) string {
    var words []string
    for _, rel := range block.Relationships {
        if rel.Type != types.RelationshipTypeChild {
            continue
        }
        for _, id := range rel.Ids {
            if child, ok := byID[id]; ok && child.Text != nil && child.BlockType == types.BlockTypeWord {
                words = append(words, *child.Text)
            }
        }
    }
    return strings.Join(words, " ")
}

// wordIDs returns the ids of the WORD children of block.
func wordIDs(block types.Block, byID map[string]types.Block) []string {
    var ids []string
    for _, rel := range block.Relationships {
        if rel.Type != types.RelationshipTypeChild {
            continue
        }
        for _, id := range rel.Ids {
            if child, ok := byID[id]; ok && child.BlockType == types.BlockTypeWord {
                ids = append(ids, id)
            }
        }
    }
    return ids
}

// markWords records every WORD reachable from block through its cells or its
// value blocks.
func markWords(block types.Block, byID map[string]types.Block, into map[string]bool) {
    for _, rel := range block.Relationships {
        if rel.Type != types.RelationshipTypeChild && rel.Type != types.RelationshipTypeValue {
            continue
        }
        for _, id := range rel.Ids {
            child, ok := byID[id]
            if !ok {
                continue
            }
            switch child.BlockType {
            case types.BlockTypeWord:
                into[id] = true
            case types.BlockTypeCell, types.BlockTypeKeyValueSet:
                markWords(child, byID, into)
            }
        }
    }
}

func valueText(key types.Block, byID map[string]types.Block) string {
    var parts []string
    for _, rel := range key.Relationships {
        if rel.Type != types.RelationshipTypeValue {
            continue
        }
        for _, id := range rel.Ids {
            if v, ok := byID[id]; ok {
                if t := childText(v, byID); t != "" {
                    parts = append(parts, t)
                }
            }
        }
    }
    return strings.Join(parts, " ")
}

func markdownTable(grid [][]string) string {
    var sb strings.Builder
    for i, row := range grid {
        escaped := make([]string, len(row))
        for j, cell := range row {
            escaped[j] = strings.ReplaceAll(cell, "|", `\|`)
        }
        sb.WriteString("| " + strings.Join(escaped, " | ") + " |\n")
        if i == 0 {
            seps := make([]string, len(row))
            for j := range seps {
                seps[j] = "---"
            }
            sb.WriteString("| " + strings.Join(seps, " | ") + " |\n")
        }
    }
    return strings.TrimSuffix(sb.String(), "\n")
}

