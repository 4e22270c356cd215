package driver

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/rs/zerolog"

	"github.com/agenthands/roundup/internal/core/model"
)

// MemgraphStore keeps items as (:Item) nodes and decision records as
// (:Decision)-[:FOR]->(:Item).
type MemgraphStore struct {
	Driver neo4j.DriverWithContext
	logger zerolog.Logger
}

func NewMemgraphStore(ctx context.Context, uri, username, password string, logger zerolog.Logger) (*MemgraphStore, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, err
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, err
	}

	logger = logger.With().Str("component", "memgraph").Logger()
	logger.Info().Str("uri", uri).Msg("Connected to Memgraph")
	return &MemgraphStore{Driver: driver, logger: logger}, nil
}

func (d *MemgraphStore) Close(ctx context.Context) error {
	return d.Driver.Close(ctx)
}

func (d *MemgraphStore) executeQuery(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	result, err := neo4j.ExecuteQuery(ctx, d.Driver, query, params, neo4j.EagerResultTransformer)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	return result, nil
}

func (d *MemgraphStore) BuildIndices(ctx context.Context) error {
	for _, q := range []string{cypherItemIndices, cypherStatusIndex, cypherRecordIndex} {
		if _, err := d.executeQuery(ctx, q, nil); err != nil {
			// The index may already exist.
			d.logger.Warn().Err(err).Str("query", q).Msg("Failed to create index")
		}
	}
	return nil
}

func (d *MemgraphStore) Seed(ctx context.Context, items []model.Item) error {
	rows := make([]map[string]any, 0, len(items))
	for _, it := range items {
		fields, err := json.Marshal(it.Fields)
		if err != nil {
			return fmt.Errorf("failed to encode fields of %s: %w", it.ID, err)
		}
		status := it.Status
		if status == "" {
			status = model.StatusPending
		}
		updated := it.UpdatedAt
		if updated.IsZero() {
			updated = time.Now().UTC()
		}
		rows = append(rows, map[string]any{
			"id":            it.ID,
			"category":      it.Category,
			"title":         it.Title,
			"body":          it.Body,
			"fields":        string(fields),
			"status":        string(status),
			"superseded_by": it.SupersededBy,
			"updated_at":    updated,
		})
	}
	_, err := d.executeQuery(ctx, cypherSeedItems, map[string]any{"items": rows})
	return err
}

func (d *MemgraphStore) Items(ctx context.Context) ([]model.Item, error) {
	result, err := d.executeQuery(ctx, cypherAllItems, nil)
	if err != nil {
		return nil, err
	}
	return recordsToItems(result.Records)
}

func (d *MemgraphStore) GetItems(ctx context.Context, ids []string) (map[string]model.Item, error) {
	result, err := d.executeQuery(ctx, cypherItemsByID, map[string]any{"ids": ids})
	if err != nil {
		return nil, err
	}
	items, err := recordsToItems(result.Records)
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.Item, len(items))
	for _, it := range items {
		out[it.ID] = it
	}
	return out, nil
}

func (d *MemgraphStore) Apply(ctx context.Context, m Mutation) (bool, error) {
	from := make([]string, len(m.From))
	for i, s := range m.From {
		from[i] = string(s)
	}
	params := map[string]any{
		"id":            m.ItemID,
		"from":          from,
		"to":            string(m.To),
		"target":        m.TargetID,
		"now":           time.Now().UTC(),
		"timestamp":     m.Record.Timestamp,
		"user":          m.Record.User,
		"action":        string(m.Record.Action),
		"record_target": m.Record.TargetID,
		"notes":         m.Record.Notes,
	}

	session := d.Driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	applied, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypherApply, params)
		if err != nil {
			return nil, err
		}
		if !res.Next(ctx) {
			if err := res.Err(); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %s", ErrNotFound, m.ItemID)
		}
		eligible, _ := res.Record().Get("eligible")
		ok, _ := eligible.(bool)
		return ok, nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to apply mutation to %s: %w", m.ItemID, err)
	}
	return applied.(bool), nil
}

func (d *MemgraphStore) Records(ctx context.Context) ([]model.DecisionRecord, error) {
	result, err := d.executeQuery(ctx, cypherRecords, nil)
	if err != nil {
		return nil, err
	}
	out := make([]model.DecisionRecord, 0, len(result.Records))
	for _, rec := range result.Records {
		r := model.DecisionRecord{
			User:     stringValue(rec, "user"),
			EntryID:  stringValue(rec, "entry_id"),
			Action:   model.Action(stringValue(rec, "action")),
			TargetID: stringValue(rec, "target_id"),
			Notes:    stringValue(rec, "notes"),
		}
		if v, ok := rec.Get("timestamp"); ok {
			r.Timestamp = timeValue(v)
		}
		out = append(out, r)
	}
	return out, nil
}

func recordsToItems(records []*neo4j.Record) ([]model.Item, error) {
	items := make([]model.Item, 0, len(records))
	for _, rec := range records {
		it := model.Item{
			ID:           stringValue(rec, "id"),
			Category:     stringValue(rec, "category"),
			Title:        stringValue(rec, "title"),
			Body:         stringValue(rec, "body"),
			Status:       model.ItemStatus(stringValue(rec, "status")),
			SupersededBy: stringValue(rec, "superseded_by"),
		}
		if raw := stringValue(rec, "fields"); raw != "" && raw != "null" {
			if err := json.Unmarshal([]byte(raw), &it.Fields); err != nil {
				return nil, fmt.Errorf("failed to decode fields of %s: %w", it.ID, err)
			}
		}
		if v, ok := rec.Get("updated_at"); ok {
			it.UpdatedAt = timeValue(v)
		}
		items = append(items, it)
	}
	return items, nil
}

func stringValue(rec *neo4j.Record, key string) string {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func timeValue(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case neo4j.LocalDateTime:
		return t.Time()
	}
	return time.Time{}
}
