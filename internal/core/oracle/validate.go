package oracle

import (
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/agenthands/roundup/internal/core/common"
	"github.com/agenthands/roundup/internal/core/model"
)

// ValidationError is a fatal problem with an oracle reply. The attempt
// counts as failed and may be retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid oracle reply: " + e.Reason
}

func fatal(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// Validate turns a raw reply into a Decision. Soft problems (empty merge
// lists, malformed or foreign pairs) are repaired and reported as warnings;
// anything else returns a *ValidationError.
func Validate(raw string, members []string) (model.Decision, []string, error) {
	body, err := common.ExtractJSONObject(raw)
	if err != nil {
		return nil, nil, fatal("not a JSON object: %v", err)
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(body), &obj); err != nil {
		return nil, nil, fatal("not parseable as JSON: %v", err)
	}

	rawKind, _ := obj["decision"].(string)
	kind, ok := model.ParseDecisionKind(rawKind)
	if !ok {
		return nil, nil, fatal("unknown decision %v", obj["decision"])
	}

	notes, _ := obj["notes"].(string)
	var warnings []string

	switch kind {
	case model.KindKeepSeparate:
		return model.KeepSeparate{Notes: notes}, warnings, nil
	case model.KindManualReview:
		return model.ManualReview{Notes: notes}, warnings, nil
	}

	rawMerges, present := obj["merges"]
	if !present || rawMerges == nil {
		return nil, nil, fatal("%s without merges", kind)
	}
	list, ok := rawMerges.([]any)
	if !ok {
		return nil, nil, fatal("merges is %T, not a list", rawMerges)
	}
	if len(list) == 0 {
		warnings = append(warnings, fmt.Sprintf("%s with empty merges, downgraded to keep_separate", kind))
		return model.KeepSeparate{Notes: notes}, warnings, nil
	}

	inCluster := make(map[string]bool, len(members))
	for _, m := range members {
		inCluster[m] = true
	}

	seen := make(map[model.MergePair]bool)
	var pairs []model.MergePair
	for i, entry := range list {
		pair, ok := entry.([]any)
		if !ok || len(pair) != 2 {
			warnings = append(warnings, fmt.Sprintf("merge %d dropped: not a 2-element list", i))
			continue
		}
		src, okSrc := pair[0].(string)
		dst, okDst := pair[1].(string)
		if !okSrc || !okDst {
			warnings = append(warnings, fmt.Sprintf("merge %d dropped: ids must be strings", i))
			continue
		}
		if !inCluster[src] || !inCluster[dst] {
			warnings = append(warnings, fmt.Sprintf("merge %d dropped: [%s %s] references an id outside the cluster", i, src, dst))
			continue
		}
		if src == dst {
			warnings = append(warnings, fmt.Sprintf("merge %d dropped: %s merged into itself", i, src))
			continue
		}
		p := model.MergePair{Src: src, Dst: dst}
		if seen[p] {
			continue
		}
		seen[p] = true
		pairs = append(pairs, p)
	}

	if len(pairs) == 0 {
		warnings = append(warnings, fmt.Sprintf("%s had no valid merges, downgraded to keep_separate", kind))
		return model.KeepSeparate{Notes: notes}, warnings, nil
	}
	if kind == model.KindMergeAll {
		return model.MergeAll{Pairs: pairs, Notes: notes}, warnings, nil
	}
	return model.MergeSubset{Pairs: pairs, Notes: notes}, warnings, nil
}
