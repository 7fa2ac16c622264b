// Package tasks defines the messages exchanged over Kafka.
package tasks

import (
	"strconv"
	"time"
)

// 文档事件类型。
const (
	EventDocumentCreated = "document.created"
	EventDocumentDeleted = "document.deleted"
)

// DocumentEvent describes a change in a document's lifecycle.
// Consumers use it to keep the keyword index and the object store in sync.
type DocumentEvent struct {
	Type       string    `json:"type"`
	DocumentID uint      `json:"document_id"`
	OwnerID    uint      `json:"owner_id"`
	Filename   string    `json:"filename"`
	ObjectKey  string    `json:"object_key,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Key 返回用于分区和重试计数的键。
func (e DocumentEvent) Key() string {
	return e.Type + ":" + strconv.FormatUint(uint64(e.DocumentID), 10)
}
