// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"docqa-go/internal/model"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	// maxHistoryMessages 为每个会话保留的最近消息条数。
	maxHistoryMessages = 20
	conversationTTL    = 7 * 24 * time.Hour
)

// ConversationRepository 以 Redis list 保存每个用户当前会话的问答记录。
type ConversationRepository interface {
	CurrentConversationID(ctx context.Context, userID uint) (string, error)
	Append(ctx context.Context, conversationID string, messages ...model.ChatMessage) error
	History(ctx context.Context, conversationID string) ([]model.ChatMessage, error)
	Reset(ctx context.Context, userID uint) (string, error)
}

type redisConversationRepository struct {
	redisClient *redis.Client
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。
func NewConversationRepository(redisClient *redis.Client) ConversationRepository {
	return &redisConversationRepository{redisClient: redisClient}
}

func currentConversationKey(userID uint) string {
	return fmt.Sprintf("user:%d:current_conversation", userID)
}

func conversationKey(conversationID string) string {
	return "conversation:" + conversationID
}

// CurrentConversationID 返回用户当前的会话 ID，不存在时创建。
// 使用 SETNX 保证并发请求拿到同一个 ID。
func (r *redisConversationRepository) CurrentConversationID(ctx context.Context, userID uint) (string, error) {
	key := currentConversationKey(userID)
	candidate := uuid.NewString()
	if _, err := r.redisClient.SetNX(ctx, key, candidate, conversationTTL).Result(); err != nil {
		return "", fmt.Errorf("failed to set conversation id: %w", err)
	}
	convID, err := r.redisClient.Get(ctx, key).Result()
	if err != nil {
		return "", fmt.Errorf("failed to get conversation id: %w", err)
	}
	return convID, nil
}

// Append 追加消息并裁剪到最近 maxHistoryMessages 条，同时续期。
func (r *redisConversationRepository) Append(ctx context.Context, conversationID string, messages ...model.ChatMessage) error {
	if len(messages) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(messages))
	for _, m := range messages {
		b, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("failed to marshal chat message: %w", err)
		}
		values = append(values, b)
	}

	key := conversationKey(conversationID)
	_, err := r.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, values...)
		pipe.LTrim(ctx, key, -maxHistoryMessages, -1)
		pipe.Expire(ctx, key, conversationTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append conversation history: %w", err)
	}
	return nil
}

// History 按时间顺序返回会话中的消息，会话不存在时返回空切片。
func (r *redisConversationRepository) History(ctx context.Context, conversationID string) ([]model.ChatMessage, error) {
	raw, err := r.redisClient.LRange(ctx, conversationKey(conversationID), 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get conversation history: %w", err)
	}
	messages := make([]model.ChatMessage, 0, len(raw))
	for _, item := range raw {
		var m model.ChatMessage
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			return nil, fmt.Errorf("failed to unmarshal chat message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, nil
}

// Reset 丢弃当前会话并开启一个新会话，返回新的会话 ID。
func (r *redisConversationRepository) Reset(ctx context.Context, userID uint) (string, error) {
	key := currentConversationKey(userID)
	old, err := r.redisClient.Get(ctx, key).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("failed to get conversation id: %w", err)
	}

	convID := uuid.NewString()
	_, err = r.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if old != "" {
			pipe.Del(ctx, conversationKey(old))
		}
		pipe.Set(ctx, key, convID, conversationTTL)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to reset conversation: %w", err)
	}
	return convID, nil
}
