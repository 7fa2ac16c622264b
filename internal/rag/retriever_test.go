package rag

import (
	"strings"
	"testing"

	"docqa-go/internal/pipeline"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedScores []float64

func (f fixedScores) Similarities(string, []string) []float64 { return f }

func TestRetrieve_EmptyCorpus(t *testing.T) {
	r := NewRetriever(nil, 0)
	for _, k := range []int{0, 1, 5, 20} {
		got := r.Retrieve("anything", nil, k)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	}
}

func TestRetrieve_OnlyOverlappingEntryReturned(t *testing.T) {
	corpus := []string{
		"golang channels and goroutines",
		"the quick brown fox jumps",
		"lorem ipsum dolor sit amet",
	}
	got := NewRetriever(nil, 0).Retrieve("brown bear", corpus, 3)
	assert.Equal(t, []string{"the quick brown fox jumps"}, got)
}

func TestRetrieve_StopWordsDoNotCount(t *testing.T) {
	corpus := []string{"the cat sat on the mat", "dogs bark loudly"}
	got := NewRetriever(nil, 0).Retrieve("what is the", corpus, 5)
	assert.Empty(t, got)
}

func TestRetrieve_BoundedByTopKAndCorpus(t *testing.T) {
	corpus := []string{"kafka topic", "kafka consumer group", "kafka producer", "redis cache"}
	r := NewRetriever(nil, 0)

	assert.Len(t, r.Retrieve("kafka", corpus, 2), 2)
	assert.Len(t, r.Retrieve("kafka", corpus, 10), 3)
	assert.Empty(t, r.Retrieve("kafka", corpus, 0))
}

func TestRetrieve_RareTermsDominate(t *testing.T) {
	corpus := []string{
		"report report report about revenue",
		"report mentioning zanzibar once",
		"another report",
	}
	got := NewRetriever(nil, 0).Rank("zanzibar report", corpus, 3)
	require.NotEmpty(t, got)
	assert.Equal(t, 1, got[0].Index)
}

func TestRank_TiesKeepCorpusOrder(t *testing.T) {
	corpus := []string{"banana split", "apple pie", "apple pie", "apple pie"}
	got := NewRetriever(nil, 0).Rank("apple", corpus, 2)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Index)
	assert.Equal(t, 2, got[1].Index)
	assert.InDelta(t, got[0].Score, got[1].Score, 1e-12)
}

func TestRank_MinScoreThreshold(t *testing.T) {
	corpus := []string{"a", "b", "c"}
	scores := fixedScores{0, 1e-12, 0.5}

	got := NewRetriever(scores, 0).Rank("q", corpus, 3)
	require.Len(t, got, 2)
	assert.Equal(t, 2, got[0].Index)
	assert.Equal(t, 1, got[1].Index)

	got = NewRetriever(scores, 1e-9).Rank("q", corpus, 3)
	require.Len(t, got, 1)
	assert.Equal(t, "c", got[0].Text)
}

func TestRetrieve_ChunkedNotesScenario(t *testing.T) {
	corpus := pipeline.Chunk("cats are mammals. dogs are mammals too.", 20, 5)
	require.Greater(t, len(corpus), 1)

	got := NewRetriever(nil, 0).Retrieve("what are cats", corpus, 5)
	require.NotEmpty(t, got)
	assert.True(t, strings.Contains(got[0], "cats"))
	for _, c := range got {
		assert.Contains(t, c, "cats")
	}
}

func TestTFIDFVectorizer_IdenticalTextScoresOne(t *testing.T) {
	scores := NewTFIDFVectorizer().Similarities("distributed tracing", []string{"distributed tracing", "tracing"})
	require.Len(t, scores, 2)
	assert.InDelta(t, 1.0, scores[0], 1e-9)
	assert.Greater(t, scores[0], scores[1])
}

func TestTokenize(t *testing.T) {
	assert.Equal(t,
		[]string{"hello", "world", "a_b", "42", "café"},
		tokenize("Hello, WORLD! a_b x 42 Café"),
	)
}
