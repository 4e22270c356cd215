package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type LLMConfig struct {
	Provider    string  `toml:"provider"`
	Model       string  `toml:"model"`
	APIKey      string  `toml:"api_key"`
	BaseURL     string  `toml:"base_url"`
	MaxTokens   int     `toml:"max_tokens"`
	Temperature float32 `toml:"temperature"`
	JSONMode    bool    `toml:"json_mode"`
}

type OracleConfig struct {
	User              string  `toml:"user"`
	RequestsPerMinute float64 `toml:"requests_per_minute"`

	// Instructions replaces the default task description of the prompt.
	Instructions string `toml:"instructions"`

	MaxRetries       int       `toml:"max_retries"`
	RetryBackoff     string    `toml:"retry_backoff"`
	RetryBaseSeconds float64   `toml:"retry_base_seconds"`
	RetryDelays      []float64 `toml:"retry_delays"`
}

type MemgraphConfig struct {
	URI      string `toml:"uri"`
	User     string `toml:"user"`
	Password string `toml:"password"`
}

type StoreConfig struct {
	Driver     string         `toml:"driver"`
	SQLitePath string         `toml:"sqlite_path"`
	Memgraph   MemgraphConfig `toml:"memgraph"`
}

type SimilarityConfig struct {
	Provider     string `toml:"provider"`
	DatabaseURL  string `toml:"database_url"`
	Table        string `toml:"table"`
	ModelVersion string `toml:"model_version"`
}

type RerankConfig struct {
	Enabled bool    `toml:"enabled"`
	WEmbed  float64 `toml:"w_embed"`
	WRerank float64 `toml:"w_rerank"`
}

type GraphConfig struct {
	TopK                    int     `toml:"top_k"`
	MinThreshold            float64 `toml:"min_threshold"`
	EdgeThreshold           float64 `toml:"edge_threshold"`
	AutoDedupThreshold      float64 `toml:"auto_dedup_threshold"`
	AllowThresholdInversion bool    `toml:"allow_threshold_inversion"`
	PerCategory             bool    `toml:"per_category"`
	Concurrency             int     `toml:"concurrency"`
	Algorithm               string  `toml:"algorithm"`
	MinCommunitySize        int     `toml:"min_community_size"`
	MaxCommunitySize        int     `toml:"max_community_size"`
}

type RoundsConfig struct {
	MaxRounds            int     `toml:"max_rounds"`
	BatchSize            int     `toml:"batch_size"`
	ImprovementThreshold float64 `toml:"improvement_threshold"`
	ProcessOversized     bool    `toml:"process_oversized"`
	MaxRuntimeSeconds    float64 `toml:"max_runtime_seconds"`

	// With no explicit budget, a positive safety_multiplier derives one from
	// seconds_per_call and anticipated_calls.
	SecondsPerCall   float64 `toml:"seconds_per_call"`
	SafetyMultiplier float64 `toml:"safety_multiplier"`
	AnticipatedCalls int     `toml:"anticipated_calls"`

	DryRun        bool `toml:"dry_run"`
	SkipAutoDedup bool `toml:"skip_auto_dedup"`
}

type PathsConfig struct {
	WorkDir       string `toml:"work_dir"`
	NeighborCache string `toml:"neighbor_cache"`
	RerankCache   string `toml:"rerank_cache"`
	StateFile     string `toml:"state_file"`
	DecisionLog   string `toml:"decision_log"`
	Report        string `toml:"report"`
}

type ServerConfig struct {
	Port string `toml:"port"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type Config struct {
	LLM        LLMConfig        `toml:"llm"`
	Oracle     OracleConfig     `toml:"oracle"`
	Store      StoreConfig      `toml:"store"`
	Similarity SimilarityConfig `toml:"similarity"`
	Rerank     RerankConfig     `toml:"rerank"`
	Graph      GraphConfig      `toml:"graph"`
	Rounds     RoundsConfig     `toml:"rounds"`
	Paths      PathsConfig      `toml:"paths"`
	Server     ServerConfig     `toml:"server"`
	Log        LogConfig        `toml:"log"`
}

// Default returns a configuration that runs locally against Ollama and a
// SQLite item store.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:  "ollama",
			Model:     "gpt-oss:latest",
			BaseURL:   "http://localhost:11434",
			MaxTokens: 1000,
			JSONMode:  true,
		},
		Oracle: OracleConfig{
			User:             "roundup",
			MaxRetries:       3,
			RetryBackoff:     "exponential",
			RetryBaseSeconds: 5,
		},
		Store: StoreConfig{
			Driver:     "sqlite",
			SQLitePath: "roundup.db",
			Memgraph:   MemgraphConfig{URI: "bolt://localhost:7687"},
		},
		Similarity: SimilarityConfig{
			Provider: "pgvector",
			Table:    "item_embeddings",
		},
		Rerank: RerankConfig{
			WEmbed:  0.5,
			WRerank: 0.5,
		},
		Graph: GraphConfig{
			TopK:               10,
			MinThreshold:       0.5,
			EdgeThreshold:      0.75,
			AutoDedupThreshold: 0.97,
			PerCategory:        true,
			Concurrency:        8,
			Algorithm:          "modularity-leiden",
			MinCommunitySize:   2,
			MaxCommunitySize:   25,
		},
		Rounds: RoundsConfig{
			MaxRounds:            5,
			BatchSize:            0,
			ImprovementThreshold: 0.05,
			SecondsPerCall:       20,
		},
		Paths: PathsConfig{
			WorkDir:       ".roundup",
			NeighborCache: "neighbors.jsonl",
			RerankCache:   "rerank.json",
			StateFile:     "state.json",
			DecisionLog:   "decisions.csv",
			Report:        "report.json",
		},
		Server: ServerConfig{Port: "8080"},
		Log:    LogConfig{Level: "info"},
	}
}

// Load reads a TOML file over the defaults. A missing file is not an error
// when path is empty.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	g := c.Graph
	for name, v := range map[string]float64{
		"graph.min_threshold":          g.MinThreshold,
		"graph.edge_threshold":         g.EdgeThreshold,
		"graph.auto_dedup_threshold":   g.AutoDedupThreshold,
		"rounds.improvement_threshold": c.Rounds.ImprovementThreshold,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s must be between 0 and 1, got %g", name, v))
		}
	}
	if g.AutoDedupThreshold < g.EdgeThreshold && !g.AllowThresholdInversion {
		errs = append(errs, fmt.Errorf("graph.auto_dedup_threshold (%g) is below graph.edge_threshold (%g); set allow_threshold_inversion to permit this", g.AutoDedupThreshold, g.EdgeThreshold))
	}
	if g.TopK < 1 {
		errs = append(errs, fmt.Errorf("graph.top_k must be positive, got %d", g.TopK))
	}
	if g.MinCommunitySize < 1 {
		errs = append(errs, fmt.Errorf("graph.min_community_size must be positive, got %d", g.MinCommunitySize))
	}
	if g.MaxCommunitySize < 0 {
		errs = append(errs, fmt.Errorf("graph.max_community_size must not be negative, got %d", g.MaxCommunitySize))
	}
	if c.Rounds.MaxRounds < 1 {
		errs = append(errs, fmt.Errorf("rounds.max_rounds must be positive, got %d", c.Rounds.MaxRounds))
	}
	if c.Rounds.BatchSize < 0 {
		errs = append(errs, fmt.Errorf("rounds.batch_size must not be negative, got %d", c.Rounds.BatchSize))
	}
	if c.Rounds.MaxRuntimeSeconds < 0 || c.Rounds.SecondsPerCall < 0 || c.Rounds.SafetyMultiplier < 0 {
		errs = append(errs, errors.New("rounds runtime budget inputs must not be negative"))
	}
	if c.Oracle.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("oracle.max_retries must not be negative, got %d", c.Oracle.MaxRetries))
	}
	switch c.Oracle.RetryBackoff {
	case "linear", "exponential":
	default:
		errs = append(errs, fmt.Errorf("oracle.retry_backoff must be linear or exponential, got %q", c.Oracle.RetryBackoff))
	}
	switch c.Store.Driver {
	case "sqlite", "memgraph":
	default:
		errs = append(errs, fmt.Errorf("store.driver must be sqlite or memgraph, got %q", c.Store.Driver))
	}
	switch c.Similarity.Provider {
	case "pgvector", "none", "":
	default:
		errs = append(errs, fmt.Errorf("similarity.provider must be pgvector or none, got %q", c.Similarity.Provider))
	}
	return errors.Join(errs...)
}

// RetryDelays converts the configured per-attempt delays to durations.
func (c *Config) RetryDelays() []time.Duration {
	out := make([]time.Duration, len(c.Oracle.RetryDelays))
	for i, s := range c.Oracle.RetryDelays {
		out[i] = seconds(s)
	}
	return out
}

func (c *Config) RetryBase() time.Duration {
	return seconds(c.Oracle.RetryBaseSeconds)
}

// Path resolves a file under the work directory unless it is absolute.
func (c *Config) Path(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Paths.WorkDir, name)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
