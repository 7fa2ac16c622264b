package rag

import (
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Vectorizer 计算查询与语料中每一项的相似度，返回值与 corpus 一一对应。
type Vectorizer interface {
	Similarities(query string, corpus []string) []float64
}

// TFIDFVectorizer 在语料与查询上联合拟合 TF-IDF，并以余弦相似度打分。
// 词项为长度不小于 2 的字母、数字、下划线串，统一小写并剔除英文停用词。
// idf 采用平滑形式 ln((1+n)/(1+df))+1，词频为原始计数，向量做 L2 归一化。
type TFIDFVectorizer struct {
	stopWords map[string]struct{}
}

// NewTFIDFVectorizer 创建使用内置英文停用词表的 TFIDFVectorizer。
func NewTFIDFVectorizer() *TFIDFVectorizer {
	return &TFIDFVectorizer{stopWords: englishStopWords}
}

type sparseVector map[string]float64

// Similarities implements Vectorizer.
func (v *TFIDFVectorizer) Similarities(query string, corpus []string) []float64 {
	scores := make([]float64, len(corpus))
	if len(corpus) == 0 {
		return scores
	}

	counts := make([]map[string]int, len(corpus)+1)
	df := make(map[string]int)
	for i, text := range corpus {
		counts[i] = v.termCounts(text)
	}
	counts[len(corpus)] = v.termCounts(query)
	for _, c := range counts {
		for term := range c {
			df[term]++
		}
	}

	n := float64(len(counts))
	idf := make(map[string]float64, len(df))
	for term, d := range df {
		idf[term] = math.Log((1+n)/(1+float64(d))) + 1
	}

	q := weigh(counts[len(corpus)], idf)
	if len(q) == 0 {
		return scores
	}
	for i := range corpus {
		scores[i] = dot(q, weigh(counts[i], idf))
	}
	return scores
}

func (v *TFIDFVectorizer) termCounts(text string) map[string]int {
	counts := make(map[string]int)
	for _, tok := range tokenize(text) {
		if _, stop := v.stopWords[tok]; stop {
			continue
		}
		counts[tok]++
	}
	return counts
}

// weigh 返回 L2 归一化后的 tf-idf 向量。
// 按词项字典序累加，保证相同输入得到逐位相同的分数。
func weigh(counts map[string]int, idf map[string]float64) sparseVector {
	vec := make(sparseVector, len(counts))
	norm := 0.0
	for _, term := range sortedTerms(counts) {
		w := float64(counts[term]) * idf[term]
		vec[term] = w
		norm += w * w
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for term := range vec {
		vec[term] /= norm
	}
	return vec
}

func dot(a, b sparseVector) float64 {
	if len(b) < len(a) {
		a, b = b, a
	}
	sum := 0.0
	for _, term := range sortedTerms(a) {
		sum += a[term] * b[term]
	}
	return sum
}

func sortedTerms[V any](m map[string]V) []string {
	terms := make([]string, 0, len(m))
	for t := range m {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	return terms
}

func tokenize(text string) []string {
	var tokens []string
	start := -1
	flush := func(end int) {
		if start < 0 {
			return
		}
		word := text[start:end]
		if utf8.RuneCountInString(word) >= 2 {
			tokens = append(tokens, strings.ToLower(word))
		}
		start = -1
	}
	for i, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			if start < 0 {
				start = i
			}
			continue
		}
		flush(i)
	}
	flush(len(text))
	return tokens
}
