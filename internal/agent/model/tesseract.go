package model

// TesseractConfig configures the local Tesseract backend. It is only usable
// in binaries built with the tesseract tag, which needs libtesseract.
type TesseractConfig struct {
    Languages     []string
    MinConfidence float64 // 0..100, lines below are dropped
}
