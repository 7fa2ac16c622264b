package pipeline

import (
	"context"
	"unicode/utf8"

	"docqa-go/internal/config"
	"docqa-go/pkg/log"
)

// PreparedFile 是单个文件抽取并切块后的结果，尚未持久化。
type PreparedFile struct {
	Filename   string
	SourceType string
	Content    []byte
	Chunks     []string
}

// Processor 封装了文件处理的依赖：格式注册表与切块参数。
// Processor 不持有可变状态，可被多个 goroutine 同时使用。
type Processor struct {
	registry     *Registry
	chunkSize    int
	chunkOverlap int
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(registry *Registry, cfg config.IngestConfig) *Processor {
	return &Processor{
		registry:     registry,
		chunkSize:    cfg.ChunkSize,
		chunkOverlap: cfg.ChunkOverlap,
	}
}

// SupportedExtensions 返回可处理的文件后缀。
func (p *Processor) SupportedExtensions() []string {
	return p.registry.SupportedExtensions()
}

// Prepare 抽取文本并切块。抽取出的文本为空时返回零个分块，不视为错误。
func (p *Processor) Prepare(ctx context.Context, filename string, content []byte) (PreparedFile, error) {
	log.Debugf("[Processor] 开始处理文件, FileName: %s, Size: %d", filename, len(content))

	extraction, err := p.registry.Extract(ctx, filename, content)
	if err != nil {
		log.Warnf("[Processor] 文本抽取失败, FileName: %s, Error: %v", filename, err)
		return PreparedFile{}, err
	}
	log.Debugf("[Processor] 文本抽取成功, FileName: %s, SourceType: %s, 内容长度: %d 字符",
		filename, extraction.SourceType, utf8.RuneCountInString(extraction.Text))

	chunks := Chunk(extraction.Text, p.chunkSize, p.chunkOverlap)
	if len(chunks) == 0 {
		log.Warnf("[Processor] 未生成任何文本分块, FileName: %s", filename)
	}
	log.Infof("[Processor] 文件处理完成, FileName: %s, 共生成 %d 个分块", filename, len(chunks))

	return PreparedFile{
		Filename:   filename,
		SourceType: extraction.SourceType,
		Content:    content,
		Chunks:     chunks,
	}, nil
}
