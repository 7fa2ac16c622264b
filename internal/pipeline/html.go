package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HTMLExtractor 抽取 HTML 页面中的可见文本，按块级元素分行。
type HTMLExtractor struct{}

// ExtractText implements Extractor.
func (HTMLExtractor) ExtractText(_ context.Context, content []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("%w: parse html: %v", ErrExtractionFailure, err)
	}
	doc.Find("script, style, noscript, template").Remove()

	var lines []string
	doc.Find("title, h1, h2, h3, h4, h5, h6, p, li, td, th, pre, blockquote, dt, dd").Each(func(_ int, s *goquery.Selection) {
		// 嵌套的块级元素只在最内层输出一次
		if s.Find("p, li, pre, blockquote").Length() > 0 {
			return
		}
		if line := strings.Join(strings.Fields(s.Text()), " "); line != "" {
			lines = append(lines, line)
		}
	})
	if len(lines) == 0 {
		// 没有块级结构时退化为整页文本
		return strings.Join(strings.Fields(doc.Text()), " "), nil
	}
	return strings.Join(lines, "\n"), nil
}
