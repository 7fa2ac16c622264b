package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_ChatCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		assert.False(t, req.Stream)
		require.NotNil(t, req.Temperature)
		assert.InDelta(t, 0.2, *req.Temperature, 1e-9)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Cats are mammals."}},{"message":{"content":"ignored"}}]}`))
	}))
	defer srv.Close()

	temp := 0.2
	c := NewClient(srv.Client())
	got, err := c.ChatCompletion(context.Background(),
		Endpoint{BaseURL: srv.URL + "/v1/", APIKey: "sk-test"},
		"test-model",
		[]Message{{Role: "system", Content: "sys"}, {Role: "user", Content: "hi"}},
		&GenerationParams{Temperature: &temp},
	)
	require.NoError(t, err)
	assert.Equal(t, "Cats are mammals.", got)
}

func TestClient_ChatCompletionEmptyChoices(t *testing.T) {
	for _, body := range []string{`{"choices":[]}`, `{}`, `{"choices":[{"message":{"content":null}}]}`} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))
		got, err := NewClient(nil).ChatCompletion(context.Background(), Endpoint{BaseURL: srv.URL}, "m", nil, nil)
		srv.Close()
		require.NoError(t, err, body)
		assert.Equal(t, "", got, body)
	}
}

func TestClient_ChatCompletionStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"bad key"}`))
	}))
	defer srv.Close()

	_, err := NewClient(nil).ChatCompletion(context.Background(), Endpoint{BaseURL: srv.URL}, "m", nil, nil)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
	assert.Contains(t, se.Body, "bad key")
}
