package config

import (
	"os"
	"strconv"
	"sync"
)

var (
	textractOnce   sync.Once
	textractConfig *TextractConfig
)

// TextractConfig configures the AWS Textract recognition backend.
type TextractConfig struct {
	Region        string
	AccessKey     string
	SecretKey     string
	MinConfidence float32
}

func GetTextractConfig() *TextractConfig {
	textractOnce.Do(func() {
		loadDotEnv()

		minConfidence := float32(80)
		if v, err := strconv.ParseFloat(os.Getenv("TEXTRACT_MIN_CONFIDENCE"), 32); err == nil {
			minConfidence = float32(v)
		}
		textractConfig = &TextractConfig{
			Region:        os.Getenv("AWS_REGION"),
			AccessKey:     os.Getenv("AWS_ACCESS_KEY"),
			SecretKey:     os.Getenv("AWS_SECRET_KEY"),
			MinConfidence: minConfidence,
		}
	})
	return textractConfig
}
