package handlers

import (
	"github.com/feichai0017/vision-ocr/internal/service/ocr"
	"github.com/feichai0017/vision-ocr/internal/utils/validator"
	"github.com/feichai0017/vision-ocr/pkg/logger"
)

type Handlers struct {
	OCR *OCRHandler
}

func NewHandlers(
	ocrService ocr.OCRProcessor,
	imageValidator *validator.ImageValidator,
	logger logger.Logger,
	maxFiles int,
) *Handlers {
	return &Handlers{
		OCR: NewOCRHandler(ocrService, imageValidator, logger, maxFiles),
	}
}
