package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// OCREngine 识别图片中的文字。输入统一为 PNG 编码。
type OCREngine interface {
	Recognize(ctx context.Context, image []byte, contentType string) (string, error)
}

// ImageExtractor 解码图片后交给 OCR 引擎识别。
type ImageExtractor struct {
	OCR OCREngine
}

// ExtractText implements Extractor.
func (e ImageExtractor) ExtractText(ctx context.Context, content []byte) (string, error) {
	img, format, err := image.Decode(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("%w: cannot decode image: %w", ErrExtractionFailure, err)
	}
	if e.OCR == nil {
		return "", fmt.Errorf("%w: no OCR engine configured", ErrExtractionFailure)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("%w: re-encode %s image: %w", ErrExtractionFailure, format, err)
	}

	text, err := e.OCR.Recognize(ctx, buf.Bytes(), "image/png")
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", fmt.Errorf("%w: ocr: %w", ErrExtractionFailure, err)
	}
	return text, nil
}
