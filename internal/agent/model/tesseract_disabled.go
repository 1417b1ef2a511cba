//go:build !tesseract

package model

import (
    "errors"

    "github.com/feichai0017/vision-ocr/pkg/logger"
)

// ErrTesseractUnavailable is returned when the binary was built without
// the tesseract tag.
var ErrTesseractUnavailable = errors.New("tesseract backend not compiled in: rebuild with -tags tesseract")

func NewTesseractClient(cfg *TesseractConfig, log logger.Logger) (Client, error) {
    return nil, ErrTesseractUnavailable
}
