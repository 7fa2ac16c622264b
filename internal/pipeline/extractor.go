// Package pipeline 定义了文件处理的核心流程：按后缀分派的文本抽取与重叠窗口切块。
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"docqa-go/internal/config"
	"docqa-go/internal/model"
)

// Extractor 将一种格式族的原始字节转换为纯文本。
type Extractor interface {
	ExtractText(ctx context.Context, content []byte) (string, error)
}

// ExtractorFunc 允许普通函数充当 Extractor。
type ExtractorFunc func(ctx context.Context, content []byte) (string, error)

// ExtractText implements Extractor.
func (f ExtractorFunc) ExtractText(ctx context.Context, content []byte) (string, error) {
	return f(ctx, content)
}

// Extraction 是一次抽取的结果。
type Extraction struct {
	Text       string
	SourceType string
}

type family struct {
	sourceType string
	extractor  Extractor
}

// Registry 维护后缀到格式族的映射，可并发读取。
type Registry struct {
	mu       sync.RWMutex
	families map[string]family
}

// NewConfiguredRegistry 按导入配置构建注册表：parser 非 nil 时作为 PDF 无文本层时的回退解析器，
// cfg.HTMLEnabled 为 true 时启用 HTML 格式族。
func NewConfiguredRegistry(ocr OCREngine, parser DocumentParser, cfg config.IngestConfig) *Registry {
	r := NewRegistry(ocr)
	if parser != nil {
		r.Register(model.SourceTypePDF, []string{".pdf"}, PDFExtractor{Fallback: parser})
	}
	if cfg.HTMLEnabled {
		r.EnableHTML()
	}
	return r
}

// NewRegistry 返回内置 text、pdf、image 三个格式族的注册表。
// ocr 为 nil 时图片格式仍会被识别，但抽取会失败。
func NewRegistry(ocr OCREngine) *Registry {
	r := &Registry{families: make(map[string]family)}
	r.Register(model.SourceTypeText, []string{".txt", ".md", ".csv", ".log"}, TextExtractor{})
	r.Register(model.SourceTypePDF, []string{".pdf"}, PDFExtractor{})
	r.Register(model.SourceTypeImage, []string{".png", ".jpg", ".jpeg", ".bmp", ".tiff", ".webp"}, ImageExtractor{OCR: ocr})
	return r
}

// EnableHTML 注册 .html/.htm 格式族。
func (r *Registry) EnableHTML() {
	r.Register(model.SourceTypeHTML, []string{".html", ".htm"}, HTMLExtractor{})
}

// Register 为一组后缀注册格式族，已存在的后缀会被覆盖。
func (r *Registry) Register(sourceType string, suffixes []string, e Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range suffixes {
		r.families[strings.ToLower(s)] = family{sourceType: sourceType, extractor: e}
	}
}

// SupportedExtensions 返回所有已注册的后缀，按字典序排列。
func (r *Registry) SupportedExtensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.families))
	for s := range r.families {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// fileSuffix 返回文件名最后一个点开始的后缀。以点开头且不含其他点的文件名（如 ".txt"）
// 以及以点结尾的文件名视为没有后缀。
func fileSuffix(filename string) string {
	base := filepath.Base(filename)
	i := strings.LastIndex(base, ".")
	if i <= 0 || i == len(base)-1 {
		return ""
	}
	return base[i:]
}

// Extract 仅根据文件名后缀（不区分大小写）选择抽取器，不做内容嗅探。
func (r *Registry) Extract(ctx context.Context, filename string, content []byte) (Extraction, error) {
	suffix := strings.ToLower(fileSuffix(filename))

	r.mu.RLock()
	fam, ok := r.families[suffix]
	r.mu.RUnlock()
	if !ok {
		if suffix == "" {
			return Extraction{}, fmt.Errorf("%w: %q has no file extension", ErrUnsupportedFormat, filename)
		}
		return Extraction{}, fmt.Errorf("%w: %s (%s)", ErrUnsupportedFormat, suffix, filename)
	}

	text, err := fam.extractor.ExtractText(ctx, content)
	if err != nil {
		return Extraction{}, fmt.Errorf("%s: %w", filename, err)
	}
	return Extraction{Text: text, SourceType: fam.sourceType}, nil
}
