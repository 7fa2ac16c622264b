// Package tika 提供了一个与 Apache Tika 服务器交互的客户端。
// 图片 OCR 与扫描版 PDF 的解析由 Tika 内置的 Tesseract 完成。
package tika

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"docqa-go/internal/config"
)

// Client 是 Tika 服务器的客户端。
type Client struct {
	serverURL   string
	ocrLanguage string
	httpClient  *http.Client
}

// NewClient 创建一个新的 Tika 客户端实例。
func NewClient(cfg config.TikaConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		serverURL:   strings.TrimRight(cfg.ServerURL, "/"),
		ocrLanguage: cfg.OCRLanguage,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// Recognize 将图片交给 Tika 做 OCR，返回识别出的纯文本。
func (c *Client) Recognize(ctx context.Context, image []byte, contentType string) (string, error) {
	headers := map[string]string{}
	if c.ocrLanguage != "" {
		headers["X-Tika-OCRLanguage"] = c.ocrLanguage
	}
	return c.put(ctx, bytes.NewReader(image), contentType, headers)
}

// ExtractText 自动根据文件后缀推断 MIME 类型，并调用 Tika 提取文本。
// 作为没有文本层的 PDF 的回退解析器（pipeline.DocumentParser）。
func (c *Client) ExtractText(ctx context.Context, fileReader io.Reader, fileName string) (string, error) {
	return c.put(ctx, fileReader, detectMimeType(fileName), nil)
}

func (c *Client) put(ctx context.Context, body io.Reader, contentType string, headers map[string]string) (string, error) {
	if c.serverURL == "" {
		return "", fmt.Errorf("tika server url is not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.serverURL+"/tika", body)
	if err != nil {
		return "", fmt.Errorf("创建请求失败: %w", err)
	}

	req.Header.Set("Accept", "text/plain")
	req.Header.Set("Content-Type", contentType)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("调用 Tika 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("Tika 返回错误 [%d]: %s", resp.StatusCode, string(b))
	}

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, resp.Body); err != nil {
		return "", fmt.Errorf("读取 Tika 响应失败: %w", err)
	}

	return buf.String(), nil
}

// detectMimeType 根据文件扩展名判断 Content-Type
func detectMimeType(fileName string) string {
	ext := filepath.Ext(fileName)
	if ext == "" {
		return "application/octet-stream"
	}
	mimeType := mime.TypeByExtension(ext)
	if mimeType == "" {
		return "application/octet-stream"
	}
	return mimeType
}
