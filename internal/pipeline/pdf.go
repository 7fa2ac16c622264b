package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"docqa-go/pkg/log"

	"github.com/ledongthuc/pdf"
)

// DocumentParser 解析整份文档，pkg/tika 的 Client 实现了该接口。
type DocumentParser interface {
	ExtractText(ctx context.Context, r io.Reader, fileName string) (string, error)
}

// PDFExtractor 逐页抽取文本，页之间以换行连接。
// 无法抽取文本的页贡献空字符串。所有页都没有文本（如扫描件）且配置了 Fallback 时，
// 整份文档交给 Fallback 解析；回退失败时保留逐页结果。
type PDFExtractor struct {
	Fallback DocumentParser
}

// ExtractText implements Extractor.
func (e PDFExtractor) ExtractText(ctx context.Context, content []byte) (string, error) {
	text, err := extractPages(ctx, content)
	if err != nil || e.Fallback == nil || strings.TrimSpace(text) != "" {
		return text, err
	}

	parsed, ferr := e.Fallback.ExtractText(ctx, bytes.NewReader(content), "document.pdf")
	if ferr != nil {
		log.Warnf("[PDFExtractor] 回退解析失败，使用逐页结果: %v", ferr)
		return text, nil
	}
	return parsed, nil
}

func extractPages(ctx context.Context, content []byte) (text string, err error) {
	// 解析库在畸形输入上可能 panic
	defer func() {
		if p := recover(); p != nil {
			text, err = "", fmt.Errorf("%w: malformed pdf: %v", ErrExtractionFailure, p)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrExtractionFailure, err)
	}

	n := r.NumPage()
	pages := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		pages = append(pages, pageText(r, i))
	}
	return strings.Join(pages, "\n"), nil
}

func pageText(r *pdf.Reader, num int) (text string) {
	defer func() {
		if p := recover(); p != nil {
			log.Warnf("pdf page %d: %v", num, p)
			text = ""
		}
	}()
	page := r.Page(num)
	if page.V.IsNull() {
		return ""
	}
	t, err := page.GetPlainText(nil)
	if err != nil {
		log.Warnf("pdf page %d: %v", num, err)
		return ""
	}
	return t
}
