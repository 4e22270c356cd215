package model

// CandidateEdge is an undirected similarity edge between two items.
// Weight is the score clustering uses: the raw embedding score, or the
// blend with RerankScore when re-ranking is configured.
type CandidateEdge struct {
	Src           string   `json:"src"`
	Dst           string   `json:"dst"`
	EmbedScore    float64  `json:"embed_score"`
	RerankScore   *float64 `json:"rerank_score,omitempty"`
	SrcCategory   string   `json:"src_category"`
	DstCategory   string   `json:"dst_category"`
	CrossCategory bool     `json:"cross_category"`
	Weight        float64  `json:"weight"`
}

// PairKey returns the undirected key for a pair of ids.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "\x00" + b
}
