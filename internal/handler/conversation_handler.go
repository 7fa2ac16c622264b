// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"

	"docqa-go/internal/service"

	"github.com/gin-gonic/gin"
)

// ConversationHandler 处理与对话相关的 API 请求。
type ConversationHandler struct {
	service service.ConversationService
}

// NewConversationHandler 创建一个新的 ConversationHandler。
func NewConversationHandler(service service.ConversationService) *ConversationHandler {
	return &ConversationHandler{service: service}
}

// GetConversations 返回当前会话中按时间排列的问答记录。
func (h *ConversationHandler) GetConversations(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "无法获取用户信息"})
		return
	}

	history, err := h.service.GetConversationHistory(c.Request.Context(), user.ID)
	if err != nil {
		respondError(c, "GetConversations", err)
		return
	}
	respondOK(c, history)
}

// ResetConversation 清空当前会话，之后的问答记入新会话。
func (h *ConversationHandler) ResetConversation(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "无法获取用户信息"})
		return
	}

	if err := h.service.ResetConversation(c.Request.Context(), user.ID); err != nil {
		respondError(c, "ResetConversation", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "会话已重置"})
}
