package model

import "time"

// 对话消息的角色。
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage 是会话中的一条消息。助手消息附带生成答案时使用的上下文分块。
type ChatMessage struct {
	Role          string    `json:"role"`
	Content       string    `json:"content"`
	ContextChunks []string  `json:"contextChunks,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}
