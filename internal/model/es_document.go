// Package model 定义了与数据库表对应的 Go 结构体。
package model

// SearchResultDTO 定义了返回给前端的关键词检索结果结构。
type SearchResultDTO struct {
	DocumentID uint    `json:"documentId"`
	Filename   string  `json:"filename"`
	ChunkID    uint    `json:"chunkId"`
	Content    string  `json:"content"`
	Score      float64 `json:"score"`
}

// EsChunk 代表存储在 Elasticsearch 中的分块文档结构。
type EsChunk struct {
	ChunkID    uint   `json:"chunk_id"`
	DocumentID uint   `json:"document_id"`
	OwnerID    uint   `json:"owner_id"`
	Filename   string `json:"filename"`
	Seq        int    `json:"seq"`
	Content    string `json:"content"`
}
