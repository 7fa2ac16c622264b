// Package service 提供了搜索相关的业务逻辑。
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

// SearchService 接口定义了分块检索操作，结果只包含当前用户的分块。
type SearchService interface {
	Search(ctx context.Context, ownerID uint, query string, topK int) ([]model.SearchResultDTO, error)
}

type searchService struct {
	docRepo   repository.DocumentRepository
	retriever *rag.Retriever
	index     ChunkIndex
}

// NewSearchService 创建一个新的 SearchService 实例。index 为 nil 时使用内存 TF-IDF 排序。
func NewSearchService(docRepo repository.DocumentRepository, retriever *rag.Retriever, index ChunkIndex) SearchService {
	return &searchService{docRepo: docRepo, retriever: retriever, index: index}
}

// Search 优先使用 Elasticsearch，失败时回退到对用户全部分块的 TF-IDF 排序。
func (s *searchService) Search(ctx context.Context, ownerID uint, query string, topK int) ([]model.SearchResultDTO, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query must not be empty", ErrInvalidInput)
	}

	if s.index != nil {
		results, err := s.index.Search(ctx, ownerID, query, topK)
		if err == nil {
			log.Infof("[SearchService] ES 检索完成, query: '%s', 命中: %d", query, len(results))
			return results, nil
		}
		log.Warnf("[SearchService] ES 检索失败，回退到 TF-IDF: %v", err)
	}

	rows, err := s.docRepo.ListChunkResults(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	corpus := make([]string, len(rows))
	for i, r := range rows {
		corpus[i] = r.Content
	}
	matches := s.retriever.Rank(query, corpus, topK)
	results := make([]model.SearchResultDTO, 0, len(matches))
	for _, m := range matches {
		r := rows[m.Index]
		r.Score = m.Score
		results = append(results, r)
	}
	log.Infof("[SearchService] TF-IDF 检索完成, query: '%s', 语料: %d, 命中: %d", query, len(corpus), len(results))
	return results, nil
}
