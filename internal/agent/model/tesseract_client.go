//go:build tesseract

package model

import (
    "context"
    "encoding/base64"
    "strings"

    "github.com/otiai10/gosseract/v2"

    "github.com/feichai0017/vision-ocr/internal/models"
    "github.com/feichai0017/vision-ocr/pkg/logger"
)

// TesseractClient recognizes text locally with Tesseract. It has no notion
// of prompts, so the requested format only shapes how the lines are joined.
type TesseractClient struct {
    config *TesseractConfig
    logger logger.Logger
}

func NewTesseractClient(cfg *TesseractConfig, log logger.Logger) (Client, error) {
    if cfg == nil {
        cfg = &TesseractConfig{}
    }
    if len(cfg.Languages) == 0 {
        cfg.Languages = []string{"eng"}
    }
    if log == nil {
        log = logger.NewNop()
    }
    return &TesseractClient{config: cfg, logger: log.Named("tesseract")}, nil
}

func (c *TesseractClient) Name() string { return "tesseract" }

func (c *TesseractClient) Query(ctx context.Context, req models.OCRRequest) (string, error) {
    if !req.Format.Valid() {
        return "", models.Errorf(models.KindInvalidArgument, "query", req.ImageID, "unsupported format type %q", req.Format)
    }
    if err := ctx.Err(); err != nil {
        return "", contextError(ctx, req.ImageID, err)
    }
    data, err := base64.StdEncoding.DecodeString(req.Image.Data)
    if err != nil {
        return "", models.NewError(models.KindUnsupportedFormat, "query", req.ImageID, err)
    }

    // 为每个请求创建新的 Tesseract 客户端
    client := gosseract.NewClient()
    defer client.Close()

    if err := client.SetLanguage(c.config.Languages...); err != nil {
        return "", models.NewError(models.KindBackendUnavailable, "query", req.ImageID, err)
    }
    if err := client.SetPageSegMode(gosseract.PSM_AUTO); err != nil {
        return "", models.NewError(models.KindBackendUnavailable, "query", req.ImageID, err)
    }
    if err := client.SetImageFromBytes(data); err != nil {
        return "", models.NewError(models.KindUnsupportedFormat, "query", req.ImageID, err)
    }

    boxes, err := client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
    if err != nil {
        return "", models.NewError(models.KindModelError, "query", req.ImageID, err)
    }

    var analysis layoutAnalysis
    for _, b := range boxes {
        line := strings.TrimSpace(b.Word)
        if line == "" || b.Confidence < c.config.MinConfidence {
            continue
        }
        analysis.lines = append(analysis.lines, line)
    }
    c.logger.Debug("Tesseract recognition finished",
        logger.String("image", req.ImageID),
        logger.Int("lines", len(analysis.lines)),
        logger.Int("dropped", len(boxes)-len(analysis.lines)),
    )
    return analysis.render(req.Format)
}
