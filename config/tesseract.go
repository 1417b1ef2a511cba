package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
)

var (
	tesseractOnce   sync.Once
	tesseractConfig *TesseractConfig
)

// TesseractConfig configures the local Tesseract backend.
type TesseractConfig struct {
	Languages     []string
	MinConfidence float64
}

func GetTesseractConfig() *TesseractConfig {
	tesseractOnce.Do(func() {
		loadDotEnv()

		languages := []string{"eng"}
		if v := os.Getenv("TESSERACT_LANGUAGES"); v != "" {
			languages = strings.Split(v, "+")
		}
		minConfidence := 60.0
		if v, err := strconv.ParseFloat(os.Getenv("TESSERACT_MIN_CONFIDENCE"), 64); err == nil {
			minConfidence = v
		}
		tesseractConfig = &TesseractConfig{
			Languages:     languages,
			MinConfidence: minConfidence,
		}
	})
	return tesseractConfig
}
