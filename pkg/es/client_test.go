package es

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"docqa-go/internal/config"
	"docqa-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T, h http.HandlerFunc) *Index {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	x, err := NewIndex(config.ElasticsearchConfig{Addresses: srv.URL, IndexName: "chunks_test"})
	require.NoError(t, err)
	return x
}

func TestIndex_SearchFiltersByOwner(t *testing.T) {
	x := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chunks_test/_search", r.URL.Path)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		filter := body["query"].(map[string]interface{})["bool"].(map[string]interface{})["filter"]
		owner := filter.(map[string]interface{})["term"].(map[string]interface{})["owner_id"]
		assert.EqualValues(t, 7, owner)
		assert.EqualValues(t, 3, body["size"])

		_, _ = io.WriteString(w, `{"hits":{"hits":[
			{"_score":1.5,"_source":{"chunk_id":11,"document_id":2,"owner_id":7,"filename":"a.txt","seq":0,"content":"cats are mammals"}}
		]}}`)
	})

	got, err := x.Search(context.Background(), 7, "cats", 3)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.SearchResultDTO{DocumentID: 2, Filename: "a.txt", ChunkID: 11, Content: "cats are mammals", Score: 1.5}, got[0])
}

func TestIndex_IndexChunksBulkBody(t *testing.T) {
	var lines []string
	x := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/_bulk", r.URL.Path)
		sc := bufio.NewScanner(r.Body)
		for sc.Scan() {
			lines = append(lines, sc.Text())
		}
		_, _ = io.WriteString(w, `{"errors":false,"items":[]}`)
	})

	err := x.IndexChunks(context.Background(), []model.EsChunk{
		{ChunkID: 1, DocumentID: 1, OwnerID: 1, Seq: 0, Content: "a"},
		{ChunkID: 2, DocumentID: 1, OwnerID: 1, Seq: 1, Content: "b"},
	})
	require.NoError(t, err)
	require.Len(t, lines, 4)
	assert.True(t, strings.Contains(lines[0], `"_id":"1"`))
	assert.True(t, strings.Contains(lines[3], `"content":"b"`))
}

func TestIndex_IndexChunksItemErrors(t *testing.T) {
	x := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"errors":true,"items":[]}`)
	})
	err := x.IndexChunks(context.Background(), []model.EsChunk{{ChunkID: 1, Content: "a"}})
	assert.Error(t, err)
}

func TestIndex_EnsureIndexCreatesWhenMissing(t *testing.T) {
	var created bool
	x := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodHead:
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPut:
			created = true
			body, _ := io.ReadAll(r.Body)
			assert.Contains(t, string(body), "owner_id")
			_, _ = io.WriteString(w, `{"acknowledged":true}`)
		}
	})
	require.NoError(t, x.EnsureIndex(context.Background()))
	assert.True(t, created)
}
