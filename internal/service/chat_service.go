// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"fmt"
	"strings"

	"docqa-go/internal/model"
	"docqa-go/internal/rag"
	"docqa-go/internal/repository"
	"docqa-go/pkg/log"
)

// QueryRequest 是一次问答请求。
type QueryRequest struct {
	Query    string `json:"query" binding:"required"`
	Provider string `json:"provider" binding:"required"`
	Model    string `json:"model" binding:"required"`
	TopK     int    `json:"topK" binding:"omitempty,min=1,max=20"`
}

// QueryResult 返回答案以及实际使用的上下文分块，便于调用方核对依据。
type QueryResult struct {
	Answer        string   `json:"answer"`
	ContextChunks []string `json:"contextChunks"`
}

// AnswerSynthesizer 根据上下文生成答案，由 rag.Synthesizer 实现。
type AnswerSynthesizer interface {
	Synthesize(ctx context.Context, query string, chunks []string, provider, model string) (string, error)
}

// ChatService 定义了问答操作的接口。
type ChatService interface {
	Query(ctx context.Context, user *model.User, req QueryRequest) (*QueryResult, error)
}

type chatService struct {
	docRepo       repository.DocumentRepository
	retriever     *rag.Retriever
	synthesizer   AnswerSynthesizer
	conversations ConversationService
	defaultTopK   int
	maxTopK       int
}

// NewChatService 创建一个新的 ChatService 实例。conversations 为 nil 时不记录对话历史。
func NewChatService(docRepo repository.DocumentRepository, retriever *rag.Retriever, synthesizer AnswerSynthesizer, conversations ConversationService, defaultTopK, maxTopK int) ChatService {
	return &chatService{
		docRepo:       docRepo,
		retriever:     retriever,
		synthesizer:   synthesizer,
		conversations: conversations,
		defaultTopK:   defaultTopK,
		maxTopK:       maxTopK,
	}
}

// Query 读取用户全部分块，检索最相关的 topK 条并生成答案。
func (s *chatService) Query(ctx context.Context, user *model.User, req QueryRequest) (*QueryResult, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, fmt.Errorf("%w: query must not be empty", ErrInvalidInput)
	}
	topK := req.TopK
	if topK == 0 {
		topK = s.defaultTopK
	}
	if topK < 1 || topK > s.maxTopK {
		return nil, fmt.Errorf("%w: topK must be between 1 and %d", ErrInvalidInput, s.maxTopK)
	}

	// 1. 读取当前用户的语料并检索
	corpus, err := s.docRepo.ListChunkTexts(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load corpus: %w", err)
	}
	contextChunks := s.retriever.Retrieve(query, corpus, topK)
	log.Infof("[ChatService] 检索完成, userID: %d, 语料: %d, 命中: %d", user.ID, len(corpus), len(contextChunks))

	// 2. 生成答案
	answer, err := s.synthesizer.Synthesize(ctx, query, contextChunks, req.Provider, req.Model)
	if err != nil {
		return nil, err
	}

	// 3. 保存对话历史，失败只记录日志
	if s.conversations != nil {
		// 即使原始请求被取消，也希望保存已经生成的答案
		if err := s.conversations.RecordExchange(context.Background(), user.ID, query, answer, contextChunks); err != nil {
			log.Errorf("Failed to save conversation history: %v", err)
		}
	}

	return &QueryResult{Answer: answer, ContextChunks: contextChunks}, nil
}
