package rag

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"docqa-go/internal/config"
	"docqa-go/pkg/llm"
	"docqa-go/pkg/log"
)

// NoContextMarker 在没有检索到任何分块时代替上下文写入提示词。
const NoContextMarker = "No relevant context found."

const systemPrompt = "You provide accurate, concise answers grounded in context. " +
	"Answer using only the provided context, and state explicitly when the context is insufficient."

// Completer 是 OpenAI 兼容的补全接口，llm.Client 实现了它。
type Completer interface {
	ChatCompletion(ctx context.Context, ep llm.Endpoint, model string, messages []llm.Message, gen *llm.GenerationParams) (string, error)
}

// Synthesizer 基于检索到的上下文向外部模型请求答案。
// 它是整个流程中唯一发起网络调用的组件，不做重试。
type Synthesizer struct {
	registry    *ProviderRegistry
	completer   Completer
	temperature float64
	maxTokens   int
	timeout     time.Duration
}

// NewSynthesizer 创建一个 Synthesizer，生成参数取自 cfg。
func NewSynthesizer(cfg config.LLMConfig, registry *ProviderRegistry, completer Completer) *Synthesizer {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Synthesizer{
		registry:    registry,
		completer:   completer,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     timeout,
	}
}

// BuildMessages 构造发送给模型的消息：一条 system 指令与一条包含上下文和问题的 user 消息。
// 分块按给定顺序以空行连接。
func BuildMessages(query string, chunks []string) []llm.Message {
	contextText := NoContextMarker
	if len(chunks) > 0 {
		contextText = strings.Join(chunks, "\n\n")
	}
	prompt := "You are a RAG assistant. Use the context to answer the user's question. " +
		"If the context is insufficient, say what is missing.\n\n" +
		"Context:\n" + contextText + "\n\n" +
		"Question: " + query
	return []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: prompt},
	}
}

// Synthesize 解析服务商、构造提示词并返回第一条补全的文本。
// 未知服务商与缺失凭证在发起任何网络请求之前失败。
func (s *Synthesizer) Synthesize(ctx context.Context, query string, chunks []string, provider, model string) (string, error) {
	ep, err := s.registry.Resolve(provider)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	answer, err := s.completer.ChatCompletion(ctx, ep, model, BuildMessages(query, chunks), s.generationParams())
	if err != nil {
		if isTimeout(ctx, err) {
			return "", fmt.Errorf("%w: %s/%s after %s: %w", ErrGenerationTimeout, provider, model, s.timeout, err)
		}
		return "", fmt.Errorf("%w: %s/%s: %w", ErrGenerationFailed, provider, model, err)
	}
	log.Infow("answer generated",
		"provider", provider,
		"model", model,
		"contextChunks", len(chunks),
		"latency", time.Since(start).String(),
	)
	return answer, nil
}

func (s *Synthesizer) generationParams() *llm.GenerationParams {
	t := s.temperature
	gp := &llm.GenerationParams{Temperature: &t}
	if s.maxTokens > 0 {
		m := s.maxTokens
		gp.MaxTokens = &m
	}
	return gp
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
