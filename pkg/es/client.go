// Package es 提供了与 Elasticsearch 交互的客户端功能，用于分块的关键词检索。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"docqa-go/internal/config"
	"docqa-go/internal/model"
	"docqa-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// chunkMapping 为分块索引的结构，owner_id 用于按用户过滤。
const chunkMapping = `{
	"mappings": {
		"properties": {
			"chunk_id": { "type": "long" },
			"document_id": { "type": "long" },
			"owner_id": { "type": "long" },
			"filename": { "type": "keyword" },
			"seq": { "type": "integer" },
			"content": { "type": "text", "analyzer": "standard" }
		}
	}
}`

// Index 封装了一个分块索引。
type Index struct {
	client *elasticsearch.Client
	name   string
}

// NewIndex 初始化 Elasticsearch 客户端。
func NewIndex(esCfg config.ElasticsearchConfig) (*Index, error) {
	cfg := elasticsearch.Config{
		Addresses: strings.Split(esCfg.Addresses, ","),
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Index{client: client, name: esCfg.IndexName}, nil
}

// EnsureIndex 检查索引是否存在，如果不存在则创建它
func (x *Index) EnsureIndex(ctx context.Context) error {
	res, err := x.client.Indices.Exists([]string{x.name}, x.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("检查索引是否存在时出错: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", x.name)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	res, err = x.client.Indices.Create(
		x.name,
		x.client.Indices.Create.WithContext(ctx),
		x.client.Indices.Create.WithBody(strings.NewReader(chunkMapping)),
	)
	if err != nil {
		return fmt.Errorf("创建索引 '%s' 失败: %w", x.name, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("创建索引时 Elasticsearch 返回错误: %s", res.String())
	}

	log.Infof("索引 '%s' 创建成功", x.name)
	return nil
}

// IndexChunks 通过 bulk 接口批量写入分块。
func (x *Index) IndexChunks(ctx context.Context, chunks []model.EsChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	var buf bytes.Buffer
	for _, c := range chunks {
		meta := map[string]map[string]string{
			"index": {"_index": x.name, "_id": strconv.FormatUint(uint64(c.ChunkID), 10)},
		}
		if err := json.NewEncoder(&buf).Encode(meta); err != nil {
			return err
		}
		if err := json.NewEncoder(&buf).Encode(c); err != nil {
			return err
		}
	}

	req := esapi.BulkRequest{
		Body:    &buf,
		Refresh: "true",
	}
	res, err := req.Do(ctx, x.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("bulk index failed: %s", res.String())
	}

	var out struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}
	if out.Errors {
		return errors.New("bulk index reported item errors")
	}
	return nil
}

// DeleteByDocument 删除某个文档的全部分块。
func (x *Index) DeleteByDocument(ctx context.Context, documentID uint) error {
	body := fmt.Sprintf(`{"query":{"term":{"document_id":%d}}}`, documentID)
	req := esapi.DeleteByQueryRequest{
		Index:   []string{x.name},
		Body:    strings.NewReader(body),
		Refresh: esapi.BoolPtr(true),
	}
	res, err := req.Do(ctx, x.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete by query failed: %s", res.String())
	}
	return nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Score  float64       `json:"_score"`
			Source model.EsChunk `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search 在指定用户的分块中做关键词检索。
func (x *Index) Search(ctx context.Context, ownerID uint, query string, topK int) ([]model.SearchResultDTO, error) {
	q := map[string]interface{}{
		"size": topK,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": map[string]interface{}{
					"match": map[string]interface{}{"content": query},
				},
				"filter": map[string]interface{}{
					"term": map[string]interface{}{"owner_id": ownerID},
				},
			},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(q); err != nil {
		return nil, err
	}

	res, err := x.client.Search(
		x.client.Search.WithContext(ctx),
		x.client.Search.WithIndex(x.name),
		x.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.IsError() {
		b, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("search failed [%d]: %s", res.StatusCode, string(b))
	}

	var out searchResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	results := make([]model.SearchResultDTO, 0, len(out.Hits.Hits))
	for _, h := range out.Hits.Hits {
		results = append(results, model.SearchResultDTO{
			DocumentID: h.Source.DocumentID,
			Filename:   h.Source.Filename,
			ChunkID:    h.Source.ChunkID,
			Content:    h.Source.Content,
			Score:      h.Score,
		})
	}
	return results, nil
}
