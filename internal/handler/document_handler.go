// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"
	"strconv"

	"docqa-go/internal/service"
	"docqa-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// DocumentHandler 负责处理所有与文档管理相关的 API 请求。
type DocumentHandler struct {
	docService service.DocumentService
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。
func NewDocumentHandler(docService service.DocumentService) *DocumentHandler {
	return &DocumentHandler{docService: docService}
}

// ListDocuments 返回当前用户语料库中的文档。
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "无法获取用户信息"})
		return
	}

	docs, err := h.docService.ListDocuments(c.Request.Context(), user.ID)
	if err != nil {
		respondError(c, "ListDocuments", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "获取文档列表成功",
		"data":    docs,
	})
}

// DeleteDocument 删除文档及其全部分块。
func (h *DocumentHandler) DeleteDocument(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "无法获取用户信息"})
		return
	}
	id, ok := documentID(c)
	if !ok {
		return
	}

	if err := h.docService.DeleteDocument(c.Request.Context(), user.ID, id); err != nil {
		respondError(c, "DeleteDocument", err)
		return
	}

	log.Infof("[DocumentHandler] 文档已删除, userID: %d, documentID: %d", user.ID, id)
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "文档删除成功",
	})
}

// GenerateDownloadURL 为已归档的原始文件生成临时下载链接。
func (h *DocumentHandler) GenerateDownloadURL(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "无法获取用户信息"})
		return
	}
	id, ok := documentID(c)
	if !ok {
		return
	}

	info, err := h.docService.GenerateDownloadURL(c.Request.Context(), user.ID, id)
	if err != nil {
		respondError(c, "GenerateDownloadURL", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "文件下载链接生成成功",
		"data":    info,
	})
}

func documentID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的文档 ID"})
		return 0, false
	}
	return uint(id), true
}
