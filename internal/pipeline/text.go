package pipeline

import (
	"context"
	"strings"
)

// TextExtractor 按 UTF-8 解码，丢弃非法字节序列。
type TextExtractor struct{}

// ExtractText implements Extractor.
func (TextExtractor) ExtractText(_ context.Context, content []byte) (string, error) {
	return strings.ToValidUTF8(string(content), ""), nil
}
