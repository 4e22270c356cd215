package config

import (
	"fmt"
	"os"
	"strconv"
)

// ApplyEnv overrides configuration from ROUNDUP_* variables. The Memgraph
// and LLM variables keep the names used by existing deployments.
func (c *Config) ApplyEnv() error {
	parseEnvString("LLM_PROVIDER", &c.LLM.Provider)
	parseEnvString("LLM_MODEL", &c.LLM.Model)
	parseEnvString("LLM_API_KEY", &c.LLM.APIKey)
	parseEnvString("LLM_BASE_URL", &c.LLM.BaseURL)
	parseEnvString("ROUNDUP_LLM_PROVIDER", &c.LLM.Provider)
	parseEnvString("ROUNDUP_LLM_MODEL", &c.LLM.Model)
	parseEnvString("ROUNDUP_LLM_API_KEY", &c.LLM.APIKey)
	parseEnvString("ROUNDUP_LLM_BASE_URL", &c.LLM.BaseURL)

	parseEnvString("MEMGRAPH_URI", &c.Store.Memgraph.URI)
	parseEnvString("MEMGRAPH_USER", &c.Store.Memgraph.User)
	parseEnvString("MEMGRAPH_PASSWORD", &c.Store.Memgraph.Password)
	parseEnvString("ROUNDUP_STORE_DRIVER", &c.Store.Driver)
	parseEnvString("ROUNDUP_SQLITE_PATH", &c.Store.SQLitePath)
	parseEnvString("ROUNDUP_DATABASE_URL", &c.Similarity.DatabaseURL)
	parseEnvString("ROUNDUP_WORK_DIR", &c.Paths.WorkDir)
	parseEnvString("ROUNDUP_ALGORITHM", &c.Graph.Algorithm)
	parseEnvString("ROUNDUP_LOG_LEVEL", &c.Log.Level)
	parseEnvString("PORT", &c.Server.Port)

	if err := parseEnvInt("ROUNDUP_MAX_ROUNDS", &c.Rounds.MaxRounds); err != nil {
		return err
	}
	if err := parseEnvInt("ROUNDUP_BATCH_SIZE", &c.Rounds.BatchSize); err != nil {
		return err
	}
	if err := parseEnvInt("ROUNDUP_MAX_RETRIES", &c.Oracle.MaxRetries); err != nil {
		return err
	}
	if err := parseEnvFloat("ROUNDUP_MAX_RUNTIME_SECONDS", &c.Rounds.MaxRuntimeSeconds); err != nil {
		return err
	}
	if err := parseEnvFloat("ROUNDUP_EDGE_THRESHOLD", &c.Graph.EdgeThreshold); err != nil {
		return err
	}
	if err := parseEnvFloat("ROUNDUP_AUTO_DEDUP_THRESHOLD", &c.Graph.AutoDedupThreshold); err != nil {
		return err
	}
	if err := parseEnvBool("ROUNDUP_DRY_RUN", &c.Rounds.DryRun); err != nil {
		return err
	}
	return parseEnvBool("ROUNDUP_PER_CATEGORY", &c.Graph.PerCategory)
}

func parseEnvString(key string, dest *string) {
	if value := os.Getenv(key); value != "" {
		*dest = value
	}
}

func parseEnvFloat(key string, dest *float64) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

func parseEnvBool(key string, dest *bool) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}
