// Package rag 实现检索增强生成的两个核心环节：
// 基于 TF-IDF 的分块检索，以及按服务商路由的答案生成。
package rag

import "sort"

// Match 是一条带分数的检索结果，Index 为其在语料中的位置。
type Match struct {
	Index int
	Text  string
	Score float64
}

// Retriever 对单个用户的分块语料做词法相关性排序。
// Retriever 只持有只读配置，可被并发调用。
type Retriever struct {
	vectorizer Vectorizer
	minScore   float64
}

// NewRetriever 创建一个 Retriever。vectorizer 为 nil 时使用 TF-IDF。
// 只有得分严格大于 minScore 的分块才会被返回。
func NewRetriever(vectorizer Vectorizer, minScore float64) *Retriever {
	if vectorizer == nil {
		vectorizer = NewTFIDFVectorizer()
	}
	if minScore < 0 {
		minScore = 0
	}
	return &Retriever{vectorizer: vectorizer, minScore: minScore}
}

// Rank 按得分降序返回最多 topK 条结果，同分保持语料原有顺序。
func (r *Retriever) Rank(query string, corpus []string, topK int) []Match {
	if len(corpus) == 0 || topK <= 0 {
		return []Match{}
	}

	scores := r.vectorizer.Similarities(query, corpus)
	matches := make([]Match, 0, len(corpus))
	for i, text := range corpus {
		if i >= len(scores) || !(scores[i] > r.minScore) {
			continue
		}
		matches = append(matches, Match{Index: i, Text: text, Score: scores[i]})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}

// Retrieve 返回与查询最相关的分块原文，顺序即相关性顺序。
func (r *Retriever) Retrieve(query string, corpus []string, topK int) []string {
	matches := r.Rank(query, corpus, topK)
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.Text
	}
	return out
}
