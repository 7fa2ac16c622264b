// Package service 包含了应用的业务逻辑层。
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"docqa-go/internal/config"
	"docqa-go/internal/model"
	"docqa-go/internal/pipeline"
	"docqa-go/internal/repository"
	"docqa-go/pkg/log"
	"docqa-go/pkg/tasks"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrNotArchived 表示文档没有可下载的原始文件。
var ErrNotArchived = errors.New("original file is not archived")

const downloadURLExpiry = time.Hour

// ObjectStore 保存上传的原始文件，由 storage.MinIOStore 实现。
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	Remove(ctx context.Context, key string) error
}

// ChunkIndex 是可选的关键词索引，由 es.Index 实现。
type ChunkIndex interface {
	IndexChunks(ctx context.Context, chunks []model.EsChunk) error
	DeleteByDocument(ctx context.Context, documentID uint) error
	Search(ctx context.Context, ownerID uint, query string, topK int) ([]model.SearchResultDTO, error)
}

// EventPublisher 发布文档生命周期事件，由 kafka.Producer 实现。
type EventPublisher interface {
	Publish(ctx context.Context, event tasks.DocumentEvent) error
}

// UploadedFile 是一次上传中的单个文件。
type UploadedFile struct {
	Filename string
	Content  []byte
}

// IngestedDocument 描述一次导入生成的文档。
type IngestedDocument struct {
	ID         uint   `json:"id"`
	Filename   string `json:"filename"`
	SourceType string `json:"sourceType"`
	Chunks     int    `json:"chunks"`
}

// IngestResult 是一次上传请求的汇总结果。
type IngestResult struct {
	DocumentsIngested int                `json:"documentsIngested"`
	ChunksCreated     int                `json:"chunksCreated"`
	Documents         []IngestedDocument `json:"documents"`
}

// DownloadInfoDTO 封装了文件下载链接所需的信息。
type DownloadInfoDTO struct {
	FileName    string `json:"fileName"`
	DownloadURL string `json:"downloadUrl"`
}

// DocumentService 接口定义了文档导入与管理相关的业务操作。
type DocumentService interface {
	Ingest(ctx context.Context, ownerID uint, files []UploadedFile) (*IngestResult, error)
	ListDocuments(ctx context.Context, ownerID uint) ([]model.DocumentDTO, error)
	DeleteDocument(ctx context.Context, ownerID, documentID uint) error
	GenerateDownloadURL(ctx context.Context, ownerID, documentID uint) (*DownloadInfoDTO, error)
	HasDocument(ctx context.Context, ownerID uint, filename string) (bool, error)
	SupportedExtensions() []string
	Process(ctx context.Context, event tasks.DocumentEvent) error
}

type documentService struct {
	docRepo     repository.DocumentRepository
	processor   *pipeline.Processor
	store       ObjectStore
	index       ChunkIndex
	publisher   EventPublisher
	parallelism int
}

// NewDocumentService 创建一个新的 DocumentService 实例。
// store、index、publisher 均可为 nil：没有 publisher 时事件在本进程内直接处理。
func NewDocumentService(docRepo repository.DocumentRepository, processor *pipeline.Processor, store ObjectStore, index ChunkIndex, publisher EventPublisher, cfg config.IngestConfig) DocumentService {
	parallelism := cfg.Parallelism
	if parallelism <= 0 {
		parallelism = 1
	}
	return &documentService{
		docRepo:     docRepo,
		processor:   processor,
		store:       store,
		index:       index,
		publisher:   publisher,
		parallelism: parallelism,
	}
}

// Ingest 并行抽取、切块请求中的每个文件，全部成功后在一个事务内写入。
// 任一文件失败则整个请求失败，不会留下部分导入的数据。
func (s *documentService) Ingest(ctx context.Context, ownerID uint, files []UploadedFile) (*IngestResult, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no files provided", ErrInvalidInput)
	}
	for i := range files {
		files[i].Filename = filepath.Base(strings.TrimSpace(files[i].Filename))
		if files[i].Filename == "." || files[i].Filename == "/" || files[i].Filename == "" {
			return nil, fmt.Errorf("%w: file %d has no name", ErrInvalidInput, i+1)
		}
		if len(files[i].Content) == 0 {
			return nil, fmt.Errorf("%w: file %q is empty", ErrInvalidInput, files[i].Filename)
		}
	}

	// 1. 并行抽取与切块，结果按请求中的文件顺序归位
	prepared := make([]pipeline.PreparedFile, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for i, f := range files {
		g.Go(func() error {
			p, err := s.processor.Prepare(gctx, f.Filename, f.Content)
			if err != nil {
				return err
			}
			prepared[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// 2. 归档原始文件（可选）
	docs := make([]*model.Document, len(prepared))
	for i, p := range prepared {
		doc := &model.Document{
			Filename:   p.Filename,
			SourceType: p.SourceType,
			OwnerID:    ownerID,
			ObjectKey:  s.archive(ctx, ownerID, p),
		}
		for _, c := range p.Chunks {
			doc.Chunks = append(doc.Chunks, model.Chunk{Content: c})
		}
		docs[i] = doc
	}

	// 3. 文档与分块一次性写入
	if err := s.docRepo.CreateWithChunks(ctx, docs); err != nil {
		log.Errorf("[DocumentService] 写入文档失败, ownerID: %d, error: %v", ownerID, err)
		for _, d := range docs {
			s.removeObject(ctx, d.ObjectKey)
		}
		return nil, fmt.Errorf("failed to save documents: %w", err)
	}

	result := &IngestResult{Documents: make([]IngestedDocument, 0, len(docs))}
	for _, d := range docs {
		result.DocumentsIngested++
		result.ChunksCreated += len(d.Chunks)
		result.Documents = append(result.Documents, IngestedDocument{
			ID:         d.ID,
			Filename:   d.Filename,
			SourceType: d.SourceType,
			Chunks:     len(d.Chunks),
		})
		s.dispatch(ctx, tasks.DocumentEvent{
			Type:       tasks.EventDocumentCreated,
			DocumentID: d.ID,
			OwnerID:    ownerID,
			Filename:   d.Filename,
			ObjectKey:  d.ObjectKey,
			OccurredAt: time.Now(),
		})
	}
	log.Infof("[DocumentService] 导入完成, ownerID: %d, 文档数: %d, 分块数: %d", ownerID, result.DocumentsIngested, result.ChunksCreated)
	return result, nil
}

// archive 上传原始文件，失败时只记录日志，返回空的对象键。
func (s *documentService) archive(ctx context.Context, ownerID uint, p pipeline.PreparedFile) string {
	if s.store == nil {
		return ""
	}
	ext := strings.ToLower(filepath.Ext(p.Filename))
	key := fmt.Sprintf("documents/%d/%s%s", ownerID, uuid.NewString(), ext)
	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := s.store.Put(ctx, key, bytes.NewReader(p.Content), int64(len(p.Content)), contentType); err != nil {
		log.Warnf("[DocumentService] 归档原始文件失败, FileName: %s, error: %v", p.Filename, err)
		return ""
	}
	return key
}

func (s *documentService) removeObject(ctx context.Context, key string) {
	if s.store == nil || key == "" {
		return
	}
	if err := s.store.Remove(ctx, key); err != nil {
		log.Warnf("[DocumentService] 删除归档文件失败, key: %s, error: %v", key, err)
	}
}

// dispatch 发布事件；未配置消息队列时直接在本进程处理。事件处理失败不影响主流程。
func (s *documentService) dispatch(ctx context.Context, event tasks.DocumentEvent) {
	var err error
	if s.publisher != nil {
		err = s.publisher.Publish(ctx, event)
	} else {
		err = s.Process(ctx, event)
	}
	if err != nil {
		log.Warnf("[DocumentService] 文档事件处理失败: %s, error: %v", event.Key(), err)
	}
}

// Process 同步关键词索引与对象存储，实现 kafka.EventProcessor。
func (s *documentService) Process(ctx context.Context, event tasks.DocumentEvent) error {
	switch event.Type {
	case tasks.EventDocumentCreated:
		if s.index == nil {
			return nil
		}
		chunks, err := s.docRepo.ListChunksByDocument(ctx, event.OwnerID, event.DocumentID)
		if err != nil {
			return err
		}
		esChunks := make([]model.EsChunk, 0, len(chunks))
		for _, c := range chunks {
			esChunks = append(esChunks, model.EsChunk{
				ChunkID:    c.ID,
				DocumentID: c.DocumentID,
				OwnerID:    c.OwnerID,
				Filename:   event.Filename,
				Seq:        c.Seq,
				Content:    c.Content,
			})
		}
		return s.index.IndexChunks(ctx, esChunks)
	case tasks.EventDocumentDeleted:
		var errs []error
		if s.index != nil {
			if err := s.index.DeleteByDocument(ctx, event.DocumentID); err != nil {
				errs = append(errs, err)
			}
		}
		if s.store != nil && event.ObjectKey != "" {
			if err := s.store.Remove(ctx, event.ObjectKey); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	default:
		log.Warnf("[DocumentService] 未知的文档事件类型: %s", event.Type)
		return nil
	}
}

// ListDocuments 返回用户的文档列表及每个文档的分块数。
func (s *documentService) ListDocuments(ctx context.Context, ownerID uint) ([]model.DocumentDTO, error) {
	docs, err := s.docRepo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	counts, err := s.docRepo.CountChunksByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	out := make([]model.DocumentDTO, 0, len(docs))
	for _, d := range docs {
		out = append(out, model.DocumentDTO{
			ID:         d.ID,
			Filename:   d.Filename,
			SourceType: d.SourceType,
			ChunkCount: counts[d.ID],
			Archived:   d.ObjectKey != "",
			CreatedAt:  model.LocalTime(d.CreatedAt),
		})
	}
	return out, nil
}

// DeleteDocument 删除用户的文档及其分块，索引与归档文件通过事件异步清理。
func (s *documentService) DeleteDocument(ctx context.Context, ownerID, documentID uint) error {
	doc, err := s.docRepo.Delete(ctx, ownerID, documentID)
	if err != nil {
		return err
	}
	log.Infof("[DocumentService] 文档已删除, ownerID: %d, documentID: %d, FileName: %s", ownerID, documentID, doc.Filename)
	s.dispatch(ctx, tasks.DocumentEvent{
		Type:       tasks.EventDocumentDeleted,
		DocumentID: doc.ID,
		OwnerID:    ownerID,
		Filename:   doc.Filename,
		ObjectKey:  doc.ObjectKey,
		OccurredAt: time.Now(),
	})
	return nil
}

// GenerateDownloadURL 为归档的原始文件生成预签名下载地址。
func (s *documentService) GenerateDownloadURL(ctx context.Context, ownerID, documentID uint) (*DownloadInfoDTO, error) {
	doc, err := s.docRepo.FindByID(ctx, ownerID, documentID)
	if err != nil {
		return nil, err
	}
	if s.store == nil || doc.ObjectKey == "" {
		return nil, fmt.Errorf("%w: %s", ErrNotArchived, doc.Filename)
	}
	url, err := s.store.PresignedURL(ctx, doc.ObjectKey, downloadURLExpiry)
	if err != nil {
		return nil, err
	}
	return &DownloadInfoDTO{FileName: doc.Filename, DownloadURL: url}, nil
}

// HasDocument 判断用户是否已导入同名文件。
func (s *documentService) HasDocument(ctx context.Context, ownerID uint, filename string) (bool, error) {
	return s.docRepo.ExistsByFilename(ctx, ownerID, filename)
}

// SupportedExtensions 返回可上传的文件后缀。
func (s *documentService) SupportedExtensions() []string {
	return s.processor.SupportedExtensions()
}
