package codec

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/vision-ocr/internal/models"
	"github.com/feichai0017/vision-ocr/pkg/logger"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestEncodeWithoutPreprocessKeepsBytes(t *testing.T) {
	data := pngBytes(t, 40, 20)
	path := writeFile(t, t.TempDir(), "page.png", data)
	c := NewCodec(logger.NewNop(), models.DefaultPreprocessOptions())

	enc, err := c.Encode(context.Background(), models.ImageInput{ID: path, Path: path}, false)
	require.NoError(t, err)

	assert.Equal(t, path, enc.SourceID)
	assert.Equal(t, "image/png", enc.MIMEType)
	assert.Equal(t, 40, enc.Width)
	assert.Equal(t, 20, enc.Height)
	decoded, err := base64.StdEncoding.DecodeString(enc.Data)
	require.NoError(t, err)
	assert.Equal(t, data, decoded)
}

func TestEncodeIsDeterministic(t *testing.T) {
	data := pngBytes(t, 64, 64)
	c := NewCodec(logger.NewNop(), models.DefaultPreprocessOptions())
	input := models.ImageInput{ID: "scan", Data: data}

	first, err := c.Encode(context.Background(), input, true)
	require.NoError(t, err)
	second, err := c.Encode(context.Background(), input, true)
	require.NoError(t, err)
	assert.Equal(t, first.Data, second.Data)
}

func TestEncodePreprocessResizesOversizedImage(t *testing.T) {
	data := pngBytes(t, 300, 150)
	c := NewCodec(logger.NewNop(), models.DefaultPreprocessOptions())
	input := models.ImageInput{
		ID:      "big",
		Data:    data,
		Options: &models.PreprocessOptions{MaxDimension: 100, Grayscale: true},
	}

	enc, err := c.Encode(context.Background(), input, true)
	require.NoError(t, err)
	assert.Equal(t, 100, enc.Width)
	assert.Equal(t, 50, enc.Height)
	assert.Equal(t, "image/png", enc.MIMEType)
}

func TestEncodePreprocessRespectsLegibilityFloor(t *testing.T) {
	data := pngBytes(t, 300, 150)
	c := NewCodec(logger.NewNop(), models.DefaultPreprocessOptions())
	input := models.ImageInput{
		ID:      "floor",
		Data:    data,
		Options: &models.PreprocessOptions{MaxDimension: 100, MinDimension: 75, Quality: 90},
	}

	enc, err := c.Encode(context.Background(), input, true)
	require.NoError(t, err)
	assert.Equal(t, 150, enc.Width)
	assert.Equal(t, 75, enc.Height)
	assert.Equal(t, "image/jpeg", enc.MIMEType)
}

func TestEncodeElongatedPageKeepsShortSide(t *testing.T) {
	data := pngBytes(t, 120, 900)
	c := NewCodec(logger.NewNop(), models.DefaultPreprocessOptions())
	input := models.ImageInput{
		ID:      "receipt",
		Data:    data,
		Options: &models.PreprocessOptions{MaxDimension: 200, MinDimension: 100, Grayscale: true},
	}

	enc, err := c.Encode(context.Background(), input, true)
	require.NoError(t, err)
	assert.Equal(t, 100, enc.Width)
	assert.Equal(t, 750, enc.Height)
}

func TestResizeProcessorDefaultsOnReceipt(t *testing.T) {
	opts := models.DefaultPreprocessOptions()
	p := NewResizeProcessor(opts.MaxDimension, opts.MinDimension)

	out, err := p.Process(image.NewGray(image.Rect(0, 0, 1200, 9000)))
	require.NoError(t, err)
	assert.Equal(t, 1024, out.Bounds().Dx())
	assert.Equal(t, 7680, out.Bounds().Dy())

	assert.Equal(t, 1.0, p.Scale(900, 3000), "short side already below the floor")
	assert.InDelta(t, 2048.0/4000, p.Scale(4000, 3000), 1e-9)
}

func TestEncodeZeroOptionsDisableResize(t *testing.T) {
	data := pngBytes(t, 300, 150)
	c := NewCodec(logger.NewNop(), models.PreprocessOptions{MaxDimension: 100})

	enc, err := c.Encode(context.Background(), models.ImageInput{ID: "raw", Data: data, Options: &models.PreprocessOptions{}}, true)
	require.NoError(t, err)
	assert.Equal(t, 300, enc.Width)
	assert.Equal(t, 150, enc.Height)

	enc, err = c.Encode(context.Background(), models.ImageInput{ID: "default", Data: data}, true)
	require.NoError(t, err)
	assert.Equal(t, 100, enc.Width)
}

func TestEncodeSmallImageIsNotUpscaled(t *testing.T) {
	data := pngBytes(t, 30, 10)
	c := NewCodec(logger.NewNop(), models.DefaultPreprocessOptions())

	enc, err := c.Encode(context.Background(), models.ImageInput{ID: "small", Data: data}, true)
	require.NoError(t, err)
	assert.Equal(t, 30, enc.Width)
	assert.Equal(t, 10, enc.Height)
}

func TestEncodeErrors(t *testing.T) {
	dir := t.TempDir()
	garbage := writeFile(t, dir, "notes.png", []byte("definitely not an image"))
	c := NewCodec(logger.NewNop(), models.DefaultPreprocessOptions())

	tests := []struct {
		name       string
		input      models.ImageInput
		preprocess bool
		kind       models.ErrorKind
	}{
		{"missing file", models.ImageInput{ID: "missing", Path: filepath.Join(dir, "missing.png")}, false, models.KindIO},
		{"missing file with preprocess", models.ImageInput{ID: "missing", Path: filepath.Join(dir, "missing.png")}, true, models.KindIO},
		{"undecodable", models.ImageInput{ID: garbage, Path: garbage}, false, models.KindUnsupportedFormat},
		{"undecodable with preprocess", models.ImageInput{ID: garbage, Path: garbage}, true, models.KindUnsupportedFormat},
		{"empty bytes", models.ImageInput{ID: "empty", Data: []byte{}}, false, models.KindUnsupportedFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Encode(context.Background(), tt.input, tt.preprocess)
			require.Error(t, err)
			assert.Equal(t, tt.kind, models.KindOf(err))
		})
	}
}

func TestEncodeCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewCodec(logger.NewNop(), models.DefaultPreprocessOptions())

	_, err := c.Encode(ctx, models.ImageInput{ID: "x", Data: pngBytes(t, 4, 4)}, false)
	assert.Equal(t, models.KindCanceled, models.KindOf(err))
}

func TestInspect(t *testing.T) {
	c := NewCodec(logger.NewNop(), models.DefaultPreprocessOptions())
	meta, err := c.Inspect("a.png", pngBytes(t, 12, 7))
	require.NoError(t, err)
	assert.Equal(t, "image/png", meta.MimeType)
	assert.Equal(t, 12, meta.Width)
	assert.Equal(t, 7, meta.Height)
	assert.Len(t, meta.Hash, 64)

	_, err = c.Inspect("b.png", []byte("nope"))
	assert.Equal(t, models.KindUnsupportedFormat, models.KindOf(err))
}
