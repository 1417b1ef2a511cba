package codec

import (
    "fmt"
    "image"
    "math"

    "github.com/disintegration/imaging"

    "github.com/feichai0017/vision-ocr/internal/models"
)

// ImagePreprocessor 图像预处理接口
type ImagePreprocessor interface {
    Name() string
    Process(img image.Image) (image.Image, error)
}

// BuildPipeline assembles the preprocessing chain for opts.
func BuildPipeline(opts models.PreprocessOptions) []ImagePreprocessor {
    pipeline := []ImagePreprocessor{
        NewResizeProcessor(opts.MaxDimension, opts.MinDimension),
    }
    if opts.Grayscale {
        pipeline = append(pipeline, NewGrayscaleProcessor())
    } else {
        pipeline = append(pipeline, NewColorNormalizeProcessor())
    }
    if opts.Contrast != 0 {
        pipeline = append(pipeline, NewContrastProcessor(opts.Contrast))
    }
    if opts.Sharpen > 0 {
        pipeline = append(pipeline, NewSharpenProcessor(opts.Sharpen))
    }
    return pipeline
}

// 缩放处理器
type ResizeProcessor struct {
    maxDimension int
    minDimension int
}

func NewResizeProcessor(maxDimension, minDimension int) *ResizeProcessor {
    return &ResizeProcessor{maxDimension: maxDimension, minDimension: minDimension}
}

func (p *ResizeProcessor) Name() string { return "resize" }

// Scale returns the factor applied to an image of the given size. The long
// side is bounded by maxDimension, but the short side is never taken below
// minDimension, and images are never upscaled.
func (p *ResizeProcessor) Scale(width, height int) float64 {
    long, short := width, height
    if short > long {
        long, short = short, long
    }
    if p.maxDimension <= 0 || long <= p.maxDimension || short <= 0 {
        return 1
    }
    scale := float64(p.maxDimension) / float64(long)
    if p.minDimension > 0 {
        scale = math.Max(scale, float64(p.minDimension)/float64(short))
    }
    return math.Min(scale, 1)
}

func (p *ResizeProcessor) Process(img image.Image) (image.Image, error) {
    if img == nil {
        return nil, fmt.Errorf("input image is nil")
    }
    b := img.Bounds()
    scale := p.Scale(b.Dx(), b.Dy())
    if scale >= 1 {
        return img, nil
    }
    w := max(int(math.Round(float64(b.Dx())*scale)), 1)
    h := max(int(math.Round(float64(b.Dy())*scale)), 1)
    return imaging.Resize(img, w, h, imaging.Lanczos), nil
}

// 灰度处理器
type GrayscaleProcessor struct{}

func NewGrayscaleProcessor() *GrayscaleProcessor {
    return &GrayscaleProcessor{}
}

func (p *GrayscaleProcessor) Name() string { return "grayscale" }

func (p *GrayscaleProcessor) Process(img image.Image) (image.Image, error) {
    return imaging.Grayscale(img), nil
}

// ColorNormalizeProcessor converts paletted, CMYK or 16-bit images to 8-bit NRGBA.
type ColorNormalizeProcessor struct{}

func NewColorNormalizeProcessor() *ColorNormalizeProcessor {
    return &ColorNormalizeProcessor{}
}

func (p *ColorNormalizeProcessor) Name() string { return "normalize" }

func (p *ColorNormalizeProcessor) Process(img image.Image) (image.Image, error) {
    return imaging.Clone(img), nil
}

// 对比度处理器
type ContrastProcessor struct {
    amount float64
}

func NewContrastProcessor(amount float64) *ContrastProcessor {
    return &ContrastProcessor{amount: amount}
}

func (p *ContrastProcessor) Name() string { return "contrast" }

func (p *ContrastProcessor) Process(img image.Image) (image.Image, error) {
    return imaging.AdjustContrast(img, p.amount), nil
}

// 锐化处理器
type SharpenProcessor struct {
    strength float64
}

func NewSharpenProcessor(strength float64) *SharpenProcessor {
    return &SharpenProcessor{strength: strength}
}

func (p *SharpenProcessor) Name() string { return "sharpen" }

func (p *SharpenProcessor) Process(img image.Image) (image.Image, error) {
    return imaging.Sharpen(img, p.strength), nil
}
