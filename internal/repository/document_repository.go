package repository

import (
	"context"
	"strings"

	"docqa-go/internal/model"

	"gorm.io/gorm"
)

// chunkBatchSize 控制批量插入分块时每条 INSERT 的行数。
const chunkBatchSize = 200

// DocumentRepository 是文档与分块的存储层，所有读写都按所属用户隔离。
type DocumentRepository interface {
	CreateWithChunks(ctx context.Context, docs []*model.Document) error
	ListChunkTexts(ctx context.Context, ownerID uint) ([]string, error)
	ListChunkResults(ctx context.Context, ownerID uint) ([]model.SearchResultDTO, error)
	ListChunksByDocument(ctx context.Context, ownerID, documentID uint) ([]model.Chunk, error)
	ListByOwner(ctx context.Context, ownerID uint) ([]model.Document, error)
	CountChunksByOwner(ctx context.Context, ownerID uint) (map[uint]int64, error)
	FindByID(ctx context.Context, ownerID, documentID uint) (*model.Document, error)
	ExistsByFilename(ctx context.Context, ownerID uint, filename string) (bool, error)
	Delete(ctx context.Context, ownerID, documentID uint) (*model.Document, error)
}

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

// CreateWithChunks 在一个事务内写入多个文档及其全部分块，任一失败则整体回滚。
// 分块的 OwnerID 与 DocumentID 一律取自所属文档，空白分块被丢弃。
// 成功后 docs 中的 ID 与 Chunks 会被回填。
func (r *documentRepository) CreateWithChunks(ctx context.Context, docs []*model.Document) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, doc := range docs {
			chunks := doc.Chunks
			doc.Chunks = nil
			if err := tx.Create(doc).Error; err != nil {
				return err
			}

			kept := make([]model.Chunk, 0, len(chunks))
			for _, c := range chunks {
				content := strings.TrimSpace(c.Content)
				if content == "" {
					continue
				}
				kept = append(kept, model.Chunk{
					DocumentID: doc.ID,
					OwnerID:    doc.OwnerID,
					Seq:        len(kept),
					Content:    content,
				})
			}
			if len(kept) > 0 {
				if err := tx.CreateInBatches(&kept, chunkBatchSize).Error; err != nil {
					return err
				}
			}
			doc.Chunks = kept
		}
		return nil
	})
}

// ListChunkTexts 返回用户全部分块的内容，按文档与文档内顺序排列。
func (r *documentRepository) ListChunkTexts(ctx context.Context, ownerID uint) ([]string, error) {
	texts := make([]string, 0)
	err := r.db.WithContext(ctx).Model(&model.Chunk{}).
		Where("owner_id = ?", ownerID).
		Order("document_id asc, seq asc").
		Pluck("content", &texts).Error
	return texts, err
}

// ListChunkResults 与 ListChunkTexts 顺序一致，额外带上分块与文档的标识。
func (r *documentRepository) ListChunkResults(ctx context.Context, ownerID uint) ([]model.SearchResultDTO, error) {
	results := make([]model.SearchResultDTO, 0)
	err := r.db.WithContext(ctx).Model(&model.Chunk{}).
		Select("chunks.id AS chunk_id, chunks.document_id AS document_id, documents.filename AS filename, chunks.content AS content").
		Joins("JOIN documents ON documents.id = chunks.document_id").
		Where("chunks.owner_id = ? AND documents.owner_id = ?", ownerID, ownerID).
		Order("chunks.document_id asc, chunks.seq asc").
		Scan(&results).Error
	return results, err
}

// ListChunksByDocument 返回某个文档的全部分块。
func (r *documentRepository) ListChunksByDocument(ctx context.Context, ownerID, documentID uint) ([]model.Chunk, error) {
	var chunks []model.Chunk
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND document_id = ?", ownerID, documentID).
		Order("seq asc").
		Find(&chunks).Error
	return chunks, err
}

// ListByOwner 返回用户的全部文档，最新的在前。
func (r *documentRepository) ListByOwner(ctx context.Context, ownerID uint) ([]model.Document, error) {
	var docs []model.Document
	err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("id desc").Find(&docs).Error
	return docs, err
}

// CountChunksByOwner 返回用户每个文档的分块数。
func (r *documentRepository) CountChunksByOwner(ctx context.Context, ownerID uint) (map[uint]int64, error) {
	var rows []struct {
		DocumentID uint
		N          int64
	}
	err := r.db.WithContext(ctx).Model(&model.Chunk{}).
		Select("document_id, count(*) AS n").
		Where("owner_id = ?", ownerID).
		Group("document_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[uint]int64, len(rows))
	for _, row := range rows {
		counts[row.DocumentID] = row.N
	}
	return counts, nil
}

// FindByID 查找属于该用户的文档，不属于该用户时返回 gorm.ErrRecordNotFound。
func (r *documentRepository) FindByID(ctx context.Context, ownerID, documentID uint) (*model.Document, error) {
	var doc model.Document
	err := r.db.WithContext(ctx).Where("id = ? AND owner_id = ?", documentID, ownerID).First(&doc).Error
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// ExistsByFilename 判断用户是否已导入过同名文件。
func (r *documentRepository) ExistsByFilename(ctx context.Context, ownerID uint, filename string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Document{}).
		Where("owner_id = ? AND filename = ?", ownerID, filename).
		Count(&n).Error
	return n > 0, err
}

// Delete 删除文档及其全部分块，返回被删除的文档。
func (r *documentRepository) Delete(ctx context.Context, ownerID, documentID uint) (*model.Document, error) {
	var doc model.Document
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND owner_id = ?", documentID, ownerID).First(&doc).Error; err != nil {
			return err
		}
		if err := tx.Where("document_id = ?", doc.ID).Delete(&model.Chunk{}).Error; err != nil {
			return err
		}
		return tx.Delete(&doc).Error
	})
	if err != nil {
		return nil, err
	}
	return &doc, nil
}
