// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"time"

	"docqa-go/internal/model"
	"docqa-go/internal/repository"
	"docqa-go/pkg/log"
)

// ConversationService 管理用户当前会话的问答记录。
type ConversationService interface {
	GetConversationHistory(ctx context.Context, userID uint) ([]model.ChatMessage, error)
	RecordExchange(ctx context.Context, userID uint, question, answer string, contextChunks []string) error
	ResetConversation(ctx context.Context, userID uint) error
}

type conversationService struct {
	repo repository.ConversationRepository
}

// NewConversationService 创建一个新的 ConversationService。
func NewConversationService(repo repository.ConversationRepository) ConversationService {
	return &conversationService{repo: repo}
}

// GetConversationHistory 获取用户当前会话的完整消息历史。
func (s *conversationService) GetConversationHistory(ctx context.Context, userID uint) ([]model.ChatMessage, error) {
	conversationID, err := s.repo.CurrentConversationID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.repo.History(ctx, conversationID)
}

// RecordExchange 将一问一答追加到用户当前会话。
func (s *conversationService) RecordExchange(ctx context.Context, userID uint, question, answer string, contextChunks []string) error {
	conversationID, err := s.repo.CurrentConversationID(ctx, userID)
	if err != nil {
		return err
	}
	now := time.Now()
	return s.repo.Append(ctx, conversationID,
		model.ChatMessage{Role: model.RoleUser, Content: question, Timestamp: now},
		model.ChatMessage{Role: model.RoleAssistant, Content: answer, ContextChunks: contextChunks, Timestamp: now},
	)
}

// ResetConversation 清空历史并开启新会话。
func (s *conversationService) ResetConversation(ctx context.Context, userID uint) error {
	conversationID, err := s.repo.Reset(ctx, userID)
	if err != nil {
		return err
	}
	log.Infof("[ConversationService] 会话已重置, userID: %d, conversationID: %s", userID, conversationID)
	return nil
}
