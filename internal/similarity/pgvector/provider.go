// Package pgvector serves nearest-neighbor queries from a PostgreSQL table
// of precomputed item embeddings.
package pgvector

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvec "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
	"github.com/rs/zerolog"

	"github.com/agenthands/roundup/internal/core/graph"
	"github.com/agenthands/roundup/internal/core/model"
)

type Config struct {
	DatabaseURL  string
	Table        string
	ModelVersion string
}

// Provider implements graph.SimilarityProvider with cosine distance.
type Provider struct {
	pool         *pgxpool.Pool
	table        string
	modelVersion string
	logger       zerolog.Logger
}

func NewProvider(ctx context.Context, cfg Config, logger zerolog.Logger) (*Provider, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("pgvector: database url is required")
	}
	if cfg.Table == "" {
		cfg.Table = "item_embeddings"
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Provider{
		pool:         pool,
		table:        pgx.Identifier{cfg.Table}.Sanitize(),
		modelVersion: cfg.ModelVersion,
		logger:       logger.With().Str("component", "pgvector").Logger(),
	}, nil
}

// EnsureSchema creates the extension and the embeddings table.
func (p *Provider) EnsureSchema(ctx context.Context, dims int) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			item_id TEXT PRIMARY KEY,
			category TEXT NOT NULL DEFAULT '',
			embedding vector(%d) NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, p.table, dims),
	}
	for _, stmt := range stmts {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Upsert stores an item's embedding.
func (p *Provider) Upsert(ctx context.Context, itemID, category string, embedding []float32) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (item_id, category, embedding, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (item_id) DO UPDATE
		SET category = EXCLUDED.category, embedding = EXCLUDED.embedding, updated_at = now()`, p.table)
	if _, err := p.pool.Exec(ctx, query, itemID, category, pgvec.NewVector(embedding)); err != nil {
		return fmt.Errorf("upsert embedding %s: %w", itemID, err)
	}
	return nil
}

// Neighbors returns the k nearest items to item by cosine similarity. An
// item without a stored embedding has no neighbors.
func (p *Provider) Neighbors(ctx context.Context, item model.Item, k int) ([]graph.Neighbor, error) {
	query := fmt.Sprintf(`
		SELECT e.item_id, e.embedding <=> q.embedding AS distance
		FROM %[1]s e, (SELECT embedding FROM %[1]s WHERE item_id = $1) q
		WHERE e.item_id <> $1
		ORDER BY distance
		LIMIT $2`, p.table)

	rows, err := p.pool.Query(ctx, query, item.ID, k)
	if err != nil {
		return nil, fmt.Errorf("query neighbors of %s: %w", item.ID, err)
	}
	defer rows.Close()

	var out []graph.Neighbor
	for rows.Next() {
		var (
			id       string
			distance float64
		)
		if err := rows.Scan(&id, &distance); err != nil {
			return nil, fmt.Errorf("scan neighbor: %w", err)
		}
		out = append(out, graph.Neighbor{ID: id, Score: DistanceToSimilarity(distance)})
	}
	return out, rows.Err()
}

func (p *Provider) ModelVersion() string {
	return p.modelVersion
}

// FreshnessMarker changes whenever rows are added or re-embedded.
func (p *Provider) FreshnessMarker(ctx context.Context) (string, error) {
	var (
		count  int64
		latest string
	)
	query := fmt.Sprintf(`SELECT count(*), coalesce(max(updated_at)::text, '') FROM %s`, p.table)
	if err := p.pool.QueryRow(ctx, query).Scan(&count, &latest); err != nil {
		return "", fmt.Errorf("read freshness marker: %w", err)
	}
	return fmt.Sprintf("%d@%s", count, latest), nil
}

func (p *Provider) Close() {
	p.pool.Close()
}

// DistanceToSimilarity maps cosine distance in [0, 2] to similarity in [0, 1].
func DistanceToSimilarity(distance float64) float64 {
	s := 1 - distance
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
