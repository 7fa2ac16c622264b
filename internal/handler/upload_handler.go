// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"fmt"
	"io"
	"net/http"

	"docqa-go/internal/config"
	"docqa-go/internal/service"
	"docqa-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// uploadFieldName 是 multipart 表单中承载文件的字段名。
const uploadFieldName = "files"

// UploadHandler 负责处理所有与文件上传相关的 API 请求。
type UploadHandler struct {
	docService service.DocumentService
	maxFiles   int
	maxBytes   int64
}

// NewUploadHandler 创建一个新的 UploadHandler 实例。
func NewUploadHandler(docService service.DocumentService, cfg config.IngestConfig) *UploadHandler {
	return &UploadHandler{
		docService: docService,
		maxFiles:   cfg.MaxFiles,
		maxBytes:   cfg.MaxFileSizeMB * 1024 * 1024,
	}
}

// Upload 接收一个或多个文件，抽取文本、切分并写入当前用户的语料库。
// 任一文件失败时整个请求不产生任何文档。
func (h *UploadHandler) Upload(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "无法获取用户信息"})
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		log.Warnf("[UploadHandler] 解析 multipart 表单失败, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的上传请求"})
		return
	}
	headers := form.File[uploadFieldName]
	if len(headers) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "未上传任何文件"})
		return
	}
	if h.maxFiles > 0 && len(headers) > h.maxFiles {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": fmt.Sprintf("单次最多上传 %d 个文件", h.maxFiles),
		})
		return
	}

	files := make([]service.UploadedFile, 0, len(headers))
	for _, fh := range headers {
		if h.maxBytes > 0 && fh.Size > h.maxBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"code":    http.StatusRequestEntityTooLarge,
				"message": fmt.Sprintf("文件 %s 超过大小限制", fh.Filename),
			})
			return
		}
		f, err := fh.Open()
		if err != nil {
			log.Errorf("[UploadHandler] 打开上传文件失败, file: %s, error: %v", fh.Filename, err)
			c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无法读取上传的文件"})
			return
		}
		content, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			log.Errorf("[UploadHandler] 读取上传文件失败, file: %s, error: %v", fh.Filename, err)
			c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无法读取上传的文件"})
			return
		}
		files = append(files, service.UploadedFile{Filename: fh.Filename, Content: content})
	}

	log.Infof("[UploadHandler] 收到上传请求, userID: %d, 文件数: %d", user.ID, len(files))
	result, err := h.docService.Ingest(c.Request.Context(), user.ID, files)
	if err != nil {
		respondError(c, "Upload", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "文件导入成功",
		"data":    result,
	})
}

// SupportedTypes 返回服务端可以处理的文件扩展名。
func (h *UploadHandler) SupportedTypes(c *gin.Context) {
	respondOK(c, gin.H{"extensions": h.docService.SupportedExtensions()})
}
