// Package middleware 存放 Gin 框架的中间件。
package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"time"

	"docqa-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// maxLoggedBody 是日志中保留的请求/响应体最大字节数。
const maxLoggedBody = 2048

// redactedFields 中的字段不会以明文出现在日志中。
var redactedFields = map[string]struct{}{
	"password":     {},
	"refreshToken": {},
	"accessToken":  {},
}

// bodyLogWriter 用于捕获响应体
type bodyLogWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

// Write 实现了 io.Writer 接口，将响应写入 gin.ResponseWriter 和一个内部的 buffer
func (w bodyLogWriter) Write(b []byte) (int, error) {
	if room := maxLoggedBody - w.body.Len(); room > 0 {
		if len(b) > room {
			w.body.Write(b[:room])
		} else {
			w.body.Write(b)
		}
	}
	return w.ResponseWriter.Write(b)
}

// RequestLogger 是一个 Gin 中间件，用于记录请求和响应日志。
// multipart 上传只记录长度；JSON 体中的凭据字段会被替换。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		requestBody := "<omitted>"
		if c.Request.Body != nil && !strings.HasPrefix(c.ContentType(), "multipart/") {
			raw, _ := io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(raw))
			requestBody = sanitize(raw)
		}

		blw := &bodyLogWriter{body: bytes.NewBufferString(""), ResponseWriter: c.Writer}
		c.Writer = blw

		c.Next()

		log.Infow("HTTP Request Log",
			"statusCode", c.Writer.Status(),
			"latency", time.Since(startTime).String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"requestSize", c.Request.ContentLength,
			"requestBody", requestBody,
			"responseBody", sanitize(blw.body.Bytes()),
		)
	}
}

// sanitize 屏蔽 JSON 对象中的敏感字段并截断过长的内容。
func sanitize(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err == nil {
		redact(obj)
		if b, err := json.Marshal(obj); err == nil {
			raw = b
		}
	}
	if len(raw) > maxLoggedBody {
		return string(raw[:maxLoggedBody]) + "...(truncated)"
	}
	return string(raw)
}

func redact(obj map[string]interface{}) {
	for k, v := range obj {
		if _, ok := redactedFields[k]; ok {
			obj[k] = "***"
			continue
		}
		if nested, ok := v.(map[string]interface{}); ok {
			redact(nested)
		}
	}
}
