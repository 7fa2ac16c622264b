package rag

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"docqa-go/internal/config"
	"docqa-go/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	answer   string
	err      error
	block    bool
	calls    int
	endpoint llm.Endpoint
	model    string
	messages []llm.Message
	gen      *llm.GenerationParams
}

func (f *fakeCompleter) ChatCompletion(ctx context.Context, ep llm.Endpoint, model string, messages []llm.Message, gen *llm.GenerationParams) (string, error) {
	f.calls++
	f.endpoint, f.model, f.messages, f.gen = ep, model, messages, gen
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.answer, f.err
}

func envMap(m map[string]string) LookupFunc {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func newTestSynthesizer(c Completer, env map[string]string) *Synthesizer {
	cfg := config.LLMConfig{Temperature: 0.2, TimeoutSeconds: 5}
	return NewSynthesizer(cfg, NewProviderRegistry(config.DefaultProviders(), envMap(env)), c)
}

func TestSynthesize_UnknownProviderMakesNoCall(t *testing.T) {
	c := &fakeCompleter{}
	_, err := newTestSynthesizer(c, map[string]string{"DEEPSEEK_API_KEY": "k"}).
		Synthesize(context.Background(), "q", nil, "unknown", "m")
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
	assert.Contains(t, err.Error(), "unknown")
	assert.Zero(t, c.calls)
}

func TestSynthesize_MissingCredential(t *testing.T) {
	c := &fakeCompleter{}
	_, err := newTestSynthesizer(c, map[string]string{"QWEN_API_KEY": ""}).
		Synthesize(context.Background(), "q", nil, "qwen", "qwen-plus")
	assert.ErrorIs(t, err, ErrMissingCredential)
	assert.Contains(t, err.Error(), "QWEN_API_KEY")
	assert.Contains(t, err.Error(), "qwen")
	assert.Zero(t, c.calls)
}

func TestSynthesize_EmptyContextUsesMarker(t *testing.T) {
	c := &fakeCompleter{answer: "I don't know."}
	got, err := newTestSynthesizer(c, map[string]string{"DEEPSEEK_API_KEY": "sk"}).
		Synthesize(context.Background(), "what are cats", nil, "deepseek", "deepseek-chat")
	require.NoError(t, err)
	assert.Equal(t, "I don't know.", got)

	require.Len(t, c.messages, 2)
	assert.Equal(t, "system", c.messages[0].Role)
	assert.Contains(t, c.messages[0].Content, "only the provided context")
	assert.Contains(t, c.messages[1].Content, NoContextMarker)
	assert.Contains(t, c.messages[1].Content, "Question: what are cats")
}

func TestSynthesize_ContextOrderAndParams(t *testing.T) {
	c := &fakeCompleter{answer: "Cats are mammals."}
	s := newTestSynthesizer(c, map[string]string{
		"DEEPSEEK_API_KEY":  "sk-live",
		"DEEPSEEK_BASE_URL": "http://proxy.local/v1",
	})
	_, err := s.Synthesize(context.Background(), "q", []string{"first chunk", "second chunk"}, "DeepSeek", "deepseek-chat")
	require.NoError(t, err)

	assert.Equal(t, llm.Endpoint{BaseURL: "http://proxy.local/v1", APIKey: "sk-live"}, c.endpoint)
	assert.Equal(t, "deepseek-chat", c.model)
	assert.Contains(t, c.messages[1].Content, "first chunk\n\nsecond chunk")
	assert.NotContains(t, c.messages[1].Content, NoContextMarker)
	require.NotNil(t, c.gen)
	require.NotNil(t, c.gen.Temperature)
	assert.InDelta(t, 0.2, *c.gen.Temperature, 1e-9)
	assert.Nil(t, c.gen.MaxTokens)
}

func TestSynthesize_RemoteFailureWrapped(t *testing.T) {
	cause := &llm.StatusError{StatusCode: http.StatusBadGateway, Body: "upstream"}
	c := &fakeCompleter{err: cause}
	_, err := newTestSynthesizer(c, map[string]string{"QWEN_API_KEY": "k"}).
		Synthesize(context.Background(), "q", []string{"x"}, "qwen", "qwen-plus")
	assert.ErrorIs(t, err, ErrGenerationFailed)
	assert.NotErrorIs(t, err, ErrGenerationTimeout)

	var se *llm.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadGateway, se.StatusCode)
}

func TestSynthesize_Timeout(t *testing.T) {
	c := &fakeCompleter{block: true}
	s := newTestSynthesizer(c, map[string]string{"QWEN_API_KEY": "k"})
	s.timeout = 20 * time.Millisecond

	_, err := s.Synthesize(context.Background(), "q", nil, "qwen", "qwen-plus")
	assert.ErrorIs(t, err, ErrGenerationTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSynthesize_OverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-qwen", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	s := newTestSynthesizer(llm.NewClient(srv.Client()), map[string]string{
		"QWEN_API_KEY":  "sk-qwen",
		"QWEN_BASE_URL": srv.URL,
	})
	got, err := s.Synthesize(context.Background(), "q", []string{"ctx"}, "qwen", "qwen-plus")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestProviderRegistry_ExtensibleByConfig(t *testing.T) {
	providers := append(config.DefaultProviders(), config.ProviderConfig{
		Name:      "local",
		BaseURL:   "http://127.0.0.1:11434/v1",
		APIKeyEnv: "LOCAL_API_KEY",
	})
	r := NewProviderRegistry(providers, envMap(map[string]string{"LOCAL_API_KEY": "x"}))

	assert.Equal(t, []string{"deepseek", "local", "qwen"}, r.Names())
	ep, err := r.Resolve("local")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:11434/v1", ep.BaseURL)
}
