package oracle

import (
	"context"
	"fmt"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/invopop/jsonschema"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/agenthands/roundup/internal/llm"
)

// Reply is the shape the model is asked to return. Validate does the actual
// parsing so that partially wrong replies can be repaired.
type Reply struct {
	Decision string     `json:"decision" jsonschema:"enum=merge_all,enum=merge_subset,enum=keep_separate,enum=manual_review" jsonschema_description:"Outcome for the whole cluster"`
	Merges   [][]string `json:"merges,omitempty" jsonschema_description:"Pairs of [duplicate_id target_id]. The duplicate is superseded by the target"`
	Notes    string     `json:"notes,omitempty" jsonschema_description:"Short reasoning for reviewers"`
}

const defaultInstructions = `You are consolidating a backlog of records that may describe the same thing.
Decide whether the records below are duplicates of each other.

- merge_all: every record is a duplicate. List a merge pair for every record except the one that survives.
- merge_subset: only some records are duplicates. List merge pairs for those only.
- keep_separate: the records are related but distinct.
- manual_review: you cannot decide with confidence.

Only use ids from the list. Never merge a record into itself.`

type LLMOptions struct {
	// RequestsPerMinute throttles calls. Zero disables the limiter.
	RequestsPerMinute float64
	Instructions      string
}

type LLMOracle struct {
	client       llm.LLMClient
	limiter      *rate.Limiter
	instructions string
	schema       string
	logger       zerolog.Logger
}

func NewLLMOracle(client llm.LLMClient, opts LLMOptions, logger zerolog.Logger) *LLMOracle {
	o := &LLMOracle{
		client:       client,
		instructions: opts.Instructions,
		schema:       replySchema(),
		logger:       logger.With().Str("component", "oracle").Logger(),
	}
	if o.instructions == "" {
		o.instructions = defaultInstructions
	}
	if opts.RequestsPerMinute > 0 {
		o.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerMinute/60), 1)
	}
	return o
}

func (o *LLMOracle) Adjudicate(ctx context.Context, req Request) (string, error) {
	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}
	prompt := o.Prompt(req)
	o.logger.Debug().Str("cluster", req.ClusterID).Int("members", len(req.Members)).Msg("Adjudicating cluster")

	resp, err := o.client.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("oracle call for %s failed: %w", req.ClusterID, err)
	}
	return resp, nil
}

// Prompt renders the instructions, the reply schema and the cluster members.
func (o *LLMOracle) Prompt(req Request) string {
	var b strings.Builder
	b.WriteString(o.instructions)
	b.WriteString("\n\nCategory: ")
	b.WriteString(req.Category)
	fmt.Fprintf(&b, "\nCluster: %s (round %d)\n\nRecords:\n", req.ClusterID, req.Round)
	for _, m := range req.Members {
		fmt.Fprintf(&b, "- id: %s\n  title: %s\n", m.ID, m.Title)
		if m.Body != "" {
			fmt.Fprintf(&b, "  body: %s\n", indent(m.Body))
		}
		keys := make([]string, 0, len(m.Fields))
		for k := range m.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s: %s\n", k, m.Fields[k])
		}
	}
	b.WriteString("\nRespond with a single JSON object matching this schema:\n")
	b.WriteString(o.schema)
	return b.String()
}

func indent(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), "\n", "\n    ")
}

func replySchema() string {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	data, err := json.Marshal(reflector.Reflect(&Reply{}))
	if err != nil {
		return "{}"
	}
	return string(data)
}
