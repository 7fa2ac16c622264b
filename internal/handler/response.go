// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"docqa-go/internal/model"
	"docqa-go/internal/pipeline"
	"docqa-go/internal/rag"
	"docqa-go/internal/service"
	"docqa-go/pkg/log"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// statusFor 将业务错误映射为 HTTP 状态码。
// 输入类错误均为客户端可修正的 4xx；远端模型失败为 502/504。
func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrUnsupportedFormat),
		errors.Is(err, pipeline.ErrExtractionFailure),
		errors.Is(err, rag.ErrMissingCredential),
		errors.Is(err, rag.ErrUnsupportedProvider),
		errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, service.ErrNotArchived):
		return http.StatusNotFound
	case errors.Is(err, rag.ErrGenerationTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, rag.ErrGenerationFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError 写出统一格式的错误响应，服务端错误不向客户端暴露细节。
func respondError(c *gin.Context, op string, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		log.Errorf("%s: %v", op, err)
		message = "服务器内部错误"
	} else {
		log.Warnf("%s: %v", op, err)
	}
	c.JSON(status, gin.H{"code": status, "message": message, "data": nil})
}

func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": data})
}

// currentUser 返回 AuthMiddleware 注入的用户。
func currentUser(c *gin.Context) (*model.User, bool) {
	v, ok := c.Get("user")
	if !ok {
		return nil, false
	}
	user, ok := v.(*model.User)
	return user, ok && user != nil
}
