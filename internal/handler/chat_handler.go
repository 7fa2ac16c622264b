// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"docqa-go/internal/service"
	"docqa-go/pkg/log"
	"docqa-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // 允许所有来源
		},
	}
)

// QueryLimiter 按用户限制问答频率。
type QueryLimiter interface {
	Allow(userID uint) bool
}

// ChatHandler 负责处理问答请求，同时支持 HTTP 和 WebSocket 两种接入方式。
type ChatHandler struct {
	chatService service.ChatService
	userService service.UserService
	jwtManager  *token.JWTManager
	limiter     QueryLimiter
}

// NewChatHandler 创建一个新的 ChatHandler。limiter 为 nil 时 WebSocket 问答不限流，
// HTTP 问答由路由上的限流中间件负责。
func NewChatHandler(chatService service.ChatService, userService service.UserService, jwtManager *token.JWTManager, limiter QueryLimiter) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		userService: userService,
		jwtManager:  jwtManager,
		limiter:     limiter,
	}
}

// Query 基于当前用户的语料库回答一个问题。
func (h *ChatHandler) Query(c *gin.Context) {
	var req service.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("[ChatHandler] 无效的问答请求, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载：query、provider、model 不能为空，topK 取值 1-20"})
		return
	}

	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "无法获取用户信息"})
		return
	}

	result, err := h.chatService.Query(c.Request.Context(), user, req)
	if err != nil {
		respondError(c, "Query", err)
		return
	}
	respondOK(c, result)
}

// wsError 是 WebSocket 通道上的错误消息。
type wsError struct {
	Error     string `json:"error"`
	Status    int    `json:"status"`
	Timestamp int64  `json:"timestamp"`
}

// Handle 处理一个传入的 WebSocket 连接。
// 每条客户端消息是一个 JSON 格式的 QueryRequest，服务端对每条消息回复一个结果或错误。
func (h *ChatHandler) Handle(c *gin.Context) {
	tokenString := c.Param("token")
	claims, err := h.jwtManager.VerifyToken(tokenString)
	if err != nil || claims.Kind != token.KindAccess {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的 token", "data": nil})
		return
	}
	if revoked, err := h.userService.IsTokenRevoked(c.Request.Context(), tokenString); err != nil || revoked {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "token 已失效", "data": nil})
		return
	}

	user, err := h.userService.GetProfile(c.Request.Context(), claims.Subject)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无法获取用户信息", "data": nil})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("WebSocket 连接已建立，用户: %s", user.Email)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnf("从 WebSocket 读取消息失败: %v", err)
			}
			break
		}

		var req service.QueryRequest
		if err := json.Unmarshal(message, &req); err != nil {
			h.writeError(conn, http.StatusBadRequest, "消息必须是 JSON 格式的问答请求")
			continue
		}
		if h.limiter != nil && !h.limiter.Allow(user.ID) {
			h.writeError(conn, http.StatusTooManyRequests, "请求过于频繁，请稍后再试")
			continue
		}

		result, err := h.chatService.Query(c.Request.Context(), user, req)
		if err != nil {
			status := statusFor(err)
			msg := err.Error()
			if status == http.StatusInternalServerError {
				log.Errorf("处理 WebSocket 问答失败: %v", err)
				msg = "服务器内部错误"
			}
			h.writeError(conn, status, msg)
			continue
		}
		if err := conn.WriteJSON(result); err != nil {
			log.Warnf("向 WebSocket 写入结果失败: %v", err)
			break
		}
	}
}

func (h *ChatHandler) writeError(conn *websocket.Conn, status int, msg string) {
	_ = conn.WriteJSON(wsError{Error: msg, Status: status, Timestamp: time.Now().UnixMilli()})
}
