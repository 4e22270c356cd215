package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockLLM struct {
	Response      string
	ResponseQueue []string
	Err           error
	Prompts       []string
}

func (m *MockLLM) Generate(ctx context.Context, prompt string) (string, error) {
	m.Prompts = append(m.Prompts, prompt)
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.ResponseQueue) > 0 {
		resp := m.ResponseQueue[0]
		m.ResponseQueue = m.ResponseQueue[1:]
		return resp, nil
	}
	return m.Response, nil
}

func TestParseIndices(t *testing.T) {
	assert.Equal(t, []int{2, 0, 1}, parseIndices("2, 0, 1"))
	assert.Equal(t, []int{1, 0}, parseIndices("Ranking: [1] then [0]"))
	assert.Nil(t, parseIndices("none"))
}

func TestParseRanking(t *testing.T) {
	assert.Equal(t, []int{1, 2, 0}, parseRanking(`{"ranking": [1, 2, 0]}`))
	assert.Equal(t, []int{2, 0}, parseRanking("2, 0"))
	assert.Equal(t, []int{3}, parseRanking(`{"ranking": []} 3`))
}

func TestNormalizeRanking(t *testing.T) {
	assert.Equal(t, []int{2, 0, 1}, normalizeRanking([]int{2, 2, 7, 0}, 3))
	assert.Equal(t, []int{0, 1}, normalizeRanking(nil, 2))
}

func TestReranker_Score(t *testing.T) {
	mock := &MockLLM{Response: "2, 0, 1"}
	r := NewSimpleLLMReranker(mock, "gpt-test")

	scores, err := r.Score(context.Background(), "login fails", []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{2.0 / 3.0, 1.0 / 3.0, 1.0}, scores, 1e-9)
	assert.Equal(t, "llm-rank:gpt-test", r.Name())
	require.Len(t, mock.Prompts, 1)
	assert.Contains(t, mock.Prompts[0], "[2] c")
}

func TestReranker_SingleDocSkipsLLM(t *testing.T) {
	mock := &MockLLM{}
	scores, err := NewSimpleLLMReranker(mock, "m").Score(context.Background(), "q", []string{"only"})
	require.NoError(t, err)
	assert.Equal(t, []float64{1.0}, scores)
	assert.Empty(t, mock.Prompts)
}

func TestReranker_Error(t *testing.T) {
	mock := &MockLLM{Err: errors.New("rate limited")}
	_, err := NewSimpleLLMReranker(mock, "m").Score(context.Background(), "q", []string{"a", "b"})
	assert.ErrorContains(t, err, "rate limited")
}
