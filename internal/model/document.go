// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// 文档来源类型。
const (
	SourceTypeText  = "text"
	SourceTypePDF   = "pdf"
	SourceTypeImage = "image"
	SourceTypeHTML  = "html"
)

// Document 对应于数据库中的 documents 表。
// 每次成功导入一个文件生成一条记录，创建后不再修改。
type Document struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Filename   string    `gorm:"type:varchar(512);not null" json:"filename"`
	SourceType string    `gorm:"type:varchar(32);not null" json:"sourceType"`
	OwnerID    uint      `gorm:"not null;index" json:"ownerId"`
	ObjectKey  string    `gorm:"type:varchar(255)" json:"-"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"createdAt"`

	Chunks []Chunk `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Document) TableName() string {
	return "documents"
}

// Chunk 对应于数据库中的 chunks 表。
// OwnerID 冗余自所属 Document，用于按用户快速读取语料。
type Chunk struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	DocumentID uint   `gorm:"not null;index" json:"documentId"`
	OwnerID    uint   `gorm:"not null;index" json:"ownerId"`
	Seq        int    `gorm:"not null" json:"seq"`
	Content    string `gorm:"type:text;not null" json:"content"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Chunk) TableName() string {
	return "chunks"
}

// DocumentDTO 是返回给前端的文档信息。
type DocumentDTO struct {
	ID         uint      `json:"id"`
	Filename   string    `json:"filename"`
	SourceType string    `json:"sourceType"`
	ChunkCount int64     `json:"chunkCount"`
	Archived   bool      `json:"archived"`
	CreatedAt  LocalTime `json:"createdAt"`
}
