// Package codec loads images, optionally normalizes them and encodes them for
// transport to the model backend.
package codec

import (
    "bytes"
    "context"
    "crypto/sha256"
    "encoding/base64"
    "encoding/hex"
    "errors"
    "fmt"
    "image"
    _ "image/gif"
    _ "image/jpeg"
    _ "image/png"
    "os"

    "github.com/disintegration/imaging"
    _ "golang.org/x/image/bmp"
    _ "golang.org/x/image/tiff"
    _ "golang.org/x/image/webp"

    "github.com/feichai0017/vision-ocr/internal/models"
    "github.com/feichai0017/vision-ocr/pkg/logger"
)

var formatMIME = map[string]string{
    "png":  "image/png",
    "jpeg": "image/jpeg",
    "gif":  "image/gif",
    "tiff": "image/tiff",
    "bmp":  "image/bmp",
    "webp": "image/webp",
}

// Codec turns an ImageInput into an EncodedImage.
type Codec struct {
    logger   logger.Logger
    defaults models.PreprocessOptions
}

func NewCodec(log logger.Logger, defaults models.PreprocessOptions) *Codec {
    if log == nil {
        log = logger.NewNop()
    }
    return &Codec{
        logger:   log.Named("codec"),
        defaults: defaults,
    }
}

// Encode loads the input and returns its base64 payload. When preprocess is
// false the original bytes are sent unchanged once they are known to decode.
func (c *Codec) Encode(ctx context.Context, input models.ImageInput, preprocess bool) (models.EncodedImage, error) {
    if err := ctx.Err(); err != nil {
        return models.EncodedImage{}, models.NewError(models.KindCanceled, "encode", input.ID, err)
    }

    data, err := c.load(input)
    if err != nil {
        return models.EncodedImage{}, err
    }

    if !preprocess {
        cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
        if err != nil {
            return models.EncodedImage{}, models.NewError(models.KindUnsupportedFormat, "encode", input.ID, err)
        }
        return models.EncodedImage{
            SourceID: input.ID,
            MIMEType: mimeFor(format),
            Data:     base64.StdEncoding.EncodeToString(data),
            Width:    cfg.Width,
            Height:   cfg.Height,
        }, nil
    }

    opts := c.defaults
    if input.Options != nil {
        opts = *input.Options
    }

    img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
    if err != nil {
        return models.EncodedImage{}, models.NewError(models.KindUnsupportedFormat, "encode", input.ID, err)
    }

    processed, err := c.applyPreprocessing(img, BuildPipeline(opts))
    if err != nil {
        return models.EncodedImage{}, models.NewError(models.KindUnsupportedFormat, "preprocess", input.ID, err)
    }

    buf := new(bytes.Buffer)
    mimeType := "image/png"
    if opts.Quality > 0 {
        mimeType = "image/jpeg"
        err = imaging.Encode(buf, processed, imaging.JPEG, imaging.JPEGQuality(opts.Quality))
    } else {
        err = imaging.Encode(buf, processed, imaging.PNG)
    }
    if err != nil {
        return models.EncodedImage{}, models.NewError(models.KindUnsupportedFormat, "encode", input.ID,
            fmt.Errorf("failed to encode image: %w", err))
    }

    bounds := processed.Bounds()
    c.logger.Debug("Image preprocessed",
        logger.String("image", input.ID),
        logger.Int("originalBytes", len(data)),
        logger.Int("encodedBytes", buf.Len()),
        logger.Int("width", bounds.Dx()),
        logger.Int("height", bounds.Dy()),
    )

    return models.EncodedImage{
        SourceID: input.ID,
        MIMEType: mimeType,
        Data:     base64.StdEncoding.EncodeToString(buf.Bytes()),
        Width:    bounds.Dx(),
        Height:   bounds.Dy(),
    }, nil
}

// Inspect decodes only the header of data and describes it.
func (c *Codec) Inspect(name string, data []byte) (models.ImageMetadata, error) {
    cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
    if err != nil {
        return models.ImageMetadata{}, models.NewError(models.KindUnsupportedFormat, "inspect", name, err)
    }
    hash := sha256.Sum256(data)
    hashString := hex.EncodeToString(hash[:])
    return models.ImageMetadata{
        ID:       hashString[:8],
        Filename: name,
        FileSize: int64(len(data)),
        MimeType: mimeFor(format),
        Width:    cfg.Width,
        Height:   cfg.Height,
        Hash:     hashString,
    }, nil
}

func (c *Codec) load(input models.ImageInput) ([]byte, error) {
    if input.Data != nil {
        if len(input.Data) == 0 {
            return nil, models.Errorf(models.KindUnsupportedFormat, "load", input.ID, "empty image data")
        }
        return input.Data, nil
    }
    if input.Path == "" {
        return nil, models.Errorf(models.KindIO, "load", input.ID, "image has neither path nor data")
    }
    data, err := os.ReadFile(input.Path)
    if err != nil {
        return nil, models.NewError(models.KindIO, "load", input.ID, err)
    }
    return data, nil
}

func (c *Codec) applyPreprocessing(img image.Image, pipeline []ImagePreprocessor) (image.Image, error) {
    if img == nil {
        return nil, errors.New("input image is nil")
    }
    result := img
    for _, p := range pipeline {
        var err error
        result, err = p.Process(result)
        if err != nil {
            c.logger.Error("Preprocessing failed", logger.String("stage", p.Name()), logger.Error(err))
            return nil, fmt.Errorf("preprocessing stage %s failed: %w", p.Name(), err)
        }
        if result == nil {
            return nil, fmt.Errorf("preprocessing stage %s returned nil image", p.Name())
        }
    }
    return result, nil
}

func mimeFor(format string) string {
    if m, ok := formatMIME[format]; ok {
        return m
    }
    return "image/" + format
}
