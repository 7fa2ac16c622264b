package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"docqa-go/internal/config"
	"docqa-go/internal/model"
	"docqa-go/internal/pipeline"
	"docqa-go/internal/rag"
	"docqa-go/internal/repository"
	"docqa-go/pkg/database"
	"docqa-go/pkg/tasks"
	"docqa-go/pkg/token"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "svc.db")},
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	return db
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMemStore() *memStore { return &memStore{objects: map[string][]byte{}} }

func (m *memStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	if m.putErr != nil {
		return m.putErr
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = b
	return nil
}

func (m *memStore) PresignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "http://minio.local/" + key + "?sig=x", nil
}

func (m *memStore) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

type memIndex struct {
	chunks    map[uint]model.EsChunk
	searchErr error
}

func newMemIndex() *memIndex { return &memIndex{chunks: map[uint]model.EsChunk{}} }

func (m *memIndex) IndexChunks(_ context.Context, chunks []model.EsChunk) error {
	for _, c := range chunks {
		m.chunks[c.ChunkID] = c
	}
	return nil
}

func (m *memIndex) DeleteByDocument(_ context.Context, documentID uint) error {
	for id, c := range m.chunks {
		if c.DocumentID == documentID {
			delete(m.chunks, id)
		}
	}
	return nil
}

func (m *memIndex) Search(_ context.Context, ownerID uint, query string, topK int) ([]model.SearchResultDTO, error) {
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	var out []model.SearchResultDTO
	for _, c := range m.chunks {
		if c.OwnerID == ownerID && bytes.Contains([]byte(c.Content), []byte(query)) && len(out) < topK {
			out = append(out, model.SearchResultDTO{ChunkID: c.ChunkID, DocumentID: c.DocumentID, Content: c.Content, Score: 1})
		}
	}
	return out, nil
}

type recordingPublisher struct {
	events []tasks.DocumentEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev tasks.DocumentEvent) error {
	p.events = append(p.events, ev)
	return nil
}

func newProcessor(size, overlap int) *pipeline.Processor {
	return pipeline.NewProcessor(pipeline.NewRegistry(nil), config.IngestConfig{ChunkSize: size, ChunkOverlap: overlap})
}

func seedUser(t *testing.T, db *gorm.DB, email string) *model.User {
	t.Helper()
	u := &model.User{Email: email, Password: "x"}
	require.NoError(t, repository.NewUserRepository(db).Create(context.Background(), u))
	return u
}

func TestDocumentService_IngestPreservesPerFileChunks(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	alice := seedUser(t, db, "alice@example.com")
	repo := repository.NewDocumentRepository(db)
	store, index := newMemStore(), newMemIndex()
	svc := NewDocumentService(repo, newProcessor(20, 5), store, index, nil, config.IngestConfig{Parallelism: 3})

	files := []UploadedFile{
		{Filename: "notes.txt", Content: []byte("cats are mammals. dogs are mammals too.")},
		{Filename: "../short.md", Content: []byte("tiny")},
		{Filename: "blank.log", Content: []byte("   ")},
	}
	res, err := svc.Ingest(ctx, alice.ID, files)
	require.NoError(t, err)

	assert.Equal(t, 3, res.DocumentsIngested)
	assert.Equal(t, 4, res.ChunksCreated)
	require.Len(t, res.Documents, 3)
	assert.Equal(t, "notes.txt", res.Documents[0].Filename)
	assert.Equal(t, 3, res.Documents[0].Chunks)
	assert.Equal(t, "short.md", res.Documents[1].Filename)
	assert.Equal(t, 1, res.Documents[1].Chunks)
	assert.Equal(t, 0, res.Documents[2].Chunks)

	texts, err := repo.ListChunkTexts(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"cats are mammals. do", "s. dogs are mammals", "mals too.", "tiny"}, texts)

	// 无消息队列时事件在进程内处理：分块进入索引，原始文件已归档
	assert.Len(t, index.chunks, 4)
	assert.Len(t, store.objects, 3)

	docs, err := svc.ListDocuments(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.True(t, docs[0].Archived)
}

func TestDocumentService_IngestAbortsOnUnsupportedFile(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	alice := seedUser(t, db, "alice@example.com")
	repo := repository.NewDocumentRepository(db)
	svc := NewDocumentService(repo, newProcessor(900, 120), nil, nil, nil, config.IngestConfig{Parallelism: 2})

	_, err := svc.Ingest(ctx, alice.ID, []UploadedFile{
		{Filename: "ok.txt", Content: []byte("fine")},
		{Filename: "slides.pptx", Content: []byte("nope")},
	})
	assert.ErrorIs(t, err, pipeline.ErrUnsupportedFormat)
	assert.Contains(t, err.Error(), ".pptx")

	texts, err := repo.ListChunkTexts(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, texts)
}

func TestDocumentService_IngestRejectsEmptyFile(t *testing.T) {
	svc := NewDocumentService(nil, newProcessor(900, 120), nil, nil, nil, config.IngestConfig{})
	_, err := svc.Ingest(context.Background(), 1, []UploadedFile{{Filename: "a.txt"}})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Ingest(context.Background(), 1, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestDocumentService_ArchiveFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	alice := seedUser(t, db, "alice@example.com")
	store := newMemStore()
	store.putErr = errors.New("minio down")
	svc := NewDocumentService(repository.NewDocumentRepository(db), newProcessor(900, 120), store, nil, nil, config.IngestConfig{})

	res, err := svc.Ingest(ctx, alice.ID, []UploadedFile{{Filename: "a.txt", Content: []byte("hello")}})
	require.NoError(t, err)

	_, err = svc.GenerateDownloadURL(ctx, alice.ID, res.Documents[0].ID)
	assert.ErrorIs(t, err, ErrNotArchived)
}

func TestDocumentService_DeletePublishesEvent(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	alice := seedUser(t, db, "alice@example.com")
	bob := seedUser(t, db, "bob@example.com")
	pub := &recordingPublisher{}
	store := newMemStore()
	svc := NewDocumentService(repository.NewDocumentRepository(db), newProcessor(900, 120), store, nil, pub, config.IngestConfig{})

	res, err := svc.Ingest(ctx, alice.ID, []UploadedFile{{Filename: "a.txt", Content: []byte("hello")}})
	require.NoError(t, err)
	docID := res.Documents[0].ID
	require.Len(t, pub.events, 1)
	assert.Equal(t, tasks.EventDocumentCreated, pub.events[0].Type)

	info, err := svc.GenerateDownloadURL(ctx, alice.ID, docID)
	require.NoError(t, err)
	assert.Equal(t, "a.txt", info.FileName)
	assert.Contains(t, info.DownloadURL, "documents/")

	err = svc.DeleteDocument(ctx, bob.ID, docID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	require.NoError(t, svc.DeleteDocument(ctx, alice.ID, docID))
	require.Len(t, pub.events, 2)
	ev := pub.events[1]
	assert.Equal(t, tasks.EventDocumentDeleted, ev.Type)
	assert.NotEmpty(t, ev.ObjectKey)

	// 消费者处理删除事件时清理归档文件
	require.NoError(t, svc.Process(ctx, ev))
	assert.Empty(t, store.objects)
}

func TestSearchService_FallsBackToTFIDF(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	alice := seedUser(t, db, "alice@example.com")
	bob := seedUser(t, db, "bob@example.com")
	repo := repository.NewDocumentRepository(db)
	docs := NewDocumentService(repo, newProcessor(900, 120), nil, nil, nil, config.IngestConfig{})
	_, err := docs.Ingest(ctx, alice.ID, []UploadedFile{
		{Filename: "pets.txt", Content: []byte("cats purr softly")},
		{Filename: "cars.txt", Content: []byte("engines roar")},
	})
	require.NoError(t, err)
	_, err = docs.Ingest(ctx, bob.ID, []UploadedFile{{Filename: "bob.txt", Content: []byte("cats everywhere")}})
	require.NoError(t, err)

	index := newMemIndex()
	index.searchErr = errors.New("es unavailable")
	svc := NewSearchService(repo, rag.NewRetriever(nil, 0), index)

	results, err := svc.Search(ctx, alice.ID, "cats", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "pets.txt", results[0].Filename)
	assert.Greater(t, results[0].Score, 0.0)

	_, err = svc.Search(ctx, alice.ID, "  ", 5)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

type fakeSynthesizer struct {
	chunks []string
	answer string
	err    error
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, _ string, chunks []string, _, _ string) (string, error) {
	f.chunks = chunks
	return f.answer, f.err
}

func TestChatService_QueryIsOwnerScoped(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	alice := seedUser(t, db, "alice@example.com")
	bob := seedUser(t, db, "bob@example.com")
	repo := repository.NewDocumentRepository(db)
	docs := NewDocumentService(repo, newProcessor(20, 5), nil, nil, nil, config.IngestConfig{})
	_, err := docs.Ingest(ctx, alice.ID, []UploadedFile{{Filename: "notes.txt", Content: []byte("cats are mammals. dogs are mammals too.")}})
	require.NoError(t, err)
	_, err = docs.Ingest(ctx, bob.ID, []UploadedFile{{Filename: "secret.txt", Content: []byte("cats are secretly bob's")}})
	require.NoError(t, err)

	synth := &fakeSynthesizer{answer: "Cats are mammals."}
	conversations := NewConversationService(repository.NewConversationRepository(newTestRedis(t)))
	svc := NewChatService(repo, rag.NewRetriever(nil, 0), synth, conversations, 5, 20)

	res, err := svc.Query(ctx, alice, QueryRequest{Query: "what are cats", Provider: "deepseek", Model: "deepseek-chat"})
	require.NoError(t, err)
	assert.Equal(t, "Cats are mammals.", res.Answer)
	assert.Equal(t, []string{"cats are mammals. do"}, res.ContextChunks)
	assert.Equal(t, res.ContextChunks, synth.chunks)

	history, err := conversations.GetConversationHistory(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, model.RoleAssistant, history[1].Role)
	assert.Equal(t, res.ContextChunks, history[1].ContextChunks)

	history, err = conversations.GetConversationHistory(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, history)

	require.NoError(t, conversations.ResetConversation(ctx, alice.ID))
	history, err = conversations.GetConversationHistory(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestChatService_ValidationAndErrors(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	alice := seedUser(t, db, "alice@example.com")
	synth := &fakeSynthesizer{err: rag.ErrUnsupportedProvider}
	svc := NewChatService(repository.NewDocumentRepository(db), rag.NewRetriever(nil, 0), synth, nil, 5, 20)

	_, err := svc.Query(ctx, alice, QueryRequest{Query: "q", Provider: "p", Model: "m", TopK: 21})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.Query(ctx, alice, QueryRequest{Query: " ", Provider: "p", Model: "m"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Query(ctx, alice, QueryRequest{Query: "q", Provider: "unknown", Model: "m"})
	assert.ErrorIs(t, err, rag.ErrUnsupportedProvider)
	assert.Empty(t, synth.chunks)
}

func TestUserService_Lifecycle(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	jwt := token.NewJWTManager("test-secret", 1, 1)
	svc := NewUserService(repository.NewUserRepository(db), repository.NewTokenBlacklist(newTestRedis(t)), jwt)

	_, _, err := svc.Register(ctx, "not-an-email", "password123")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, _, err = svc.Register(ctx, "alice@example.com", "short")
	assert.ErrorIs(t, err, ErrInvalidInput)

	user, tokens, err := svc.Register(ctx, " Alice@Example.com ", "password123")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.NotEqual(t, "password123", user.Password)
	assert.Equal(t, "bearer", tokens.TokenType)

	_, _, err = svc.Register(ctx, "alice@example.com", "password123")
	assert.ErrorIs(t, err, ErrEmailTaken)

	_, err = svc.Login(ctx, "alice@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, "ghost@example.com", "password123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	login, err := svc.Login(ctx, "alice@example.com", "password123")
	require.NoError(t, err)

	_, err = svc.RefreshToken(ctx, login.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
	refreshed, err := svc.RefreshToken(ctx, login.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)
	_, err = svc.RefreshToken(ctx, login.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken, "refresh tokens are single use")

	require.NoError(t, svc.Logout(ctx, login.AccessToken))
	revoked, err := svc.IsTokenRevoked(ctx, login.AccessToken)
	require.NoError(t, err)
	assert.True(t, revoked)
}
