package llm

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/agenthands/roundup/internal/core/common"
)

var _ RerankerClient = (*SimpleLLMReranker)(nil)

var indexPattern = regexp.MustCompile(`\d+`)

// rankingReply is what JSON-mode providers return instead of a bare list.
type rankingReply struct {
	Ranking []int `json:"ranking"`
}

type SimpleLLMReranker struct {
	LLM   LLMClient
	Model string
}

func NewSimpleLLMReranker(client LLMClient, model string) *SimpleLLMReranker {
	return &SimpleLLMReranker{LLM: client, Model: model}
}

func (r *SimpleLLMReranker) Name() string {
	return "llm-rank:" + r.Model
}

func (r *SimpleLLMReranker) Rank(ctx context.Context, query string, docs []string) ([]int, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	if len(docs) == 1 {
		return []int{0}, nil
	}

	var docList strings.Builder
	for i, d := range docs {
		content := d
		if len(content) > 200 {
			content = content[:200] + "..."
		}
		fmt.Fprintf(&docList, "[%d] %s\n", i, content)
	}

	prompt := fmt.Sprintf(`You are a duplicate detection system.
Record: %s

Candidates:
%s
Rank the candidates above by how likely each one describes the same thing as the record.
Output ONLY the indices of the candidates in order, most likely duplicate first, separated by commas.
Example: 0, 2, 1
If you must answer in JSON, use {"ranking": [0, 2, 1]}.
Do not output any other text.`, query, docList.String())

	resp, err := r.LLM.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to rank candidates: %w", err)
	}

	return normalizeRanking(parseRanking(resp), len(docs)), nil
}

// Score converts the ranking into scores in (0,1]; the top candidate gets 1.
func (r *SimpleLLMReranker) Score(ctx context.Context, query string, docs []string) ([]float64, error) {
	order, err := r.Rank(ctx, query, docs)
	if err != nil {
		return nil, err
	}
	scores := make([]float64, len(docs))
	n := float64(len(docs))
	for rank, idx := range order {
		scores[idx] = (n - float64(rank)) / n
	}
	return scores, nil
}

func parseRanking(s string) []int {
	if reply, err := common.ParseJSON[rankingReply](s); err == nil && len(reply.Ranking) > 0 {
		return reply.Ranking
	}
	return parseIndices(s)
}

func parseIndices(s string) []int {
	matches := indexPattern.FindAllString(s, -1)
	var indices []int
	for _, m := range matches {
		if i, err := strconv.Atoi(m); err == nil {
			indices = append(indices, i)
		}
	}
	return indices
}

// normalizeRanking drops out-of-range and repeated indices and appends any
// candidate the model forgot, in original order.
func normalizeRanking(indices []int, n int) []int {
	seen := make([]bool, n)
	out := make([]int, 0, n)
	for _, i := range indices {
		if i < 0 || i >= n || seen[i] {
			continue
		}
		seen[i] = true
		out = append(out, i)
	}
	for i := 0; i < n; i++ {
		if !seen[i] {
			out = append(out, i)
		}
	}
	return out
}
