package driver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3"

	"github.com/agenthands/roundup/internal/core/model"
)

// SQLiteStore keeps items and decision records in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// One writer; also keeps a :memory: database on a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close(ctx context.Context) error {
	return s.db.Close()
}

func (s *SQLiteStore) Seed(ctx context.Context, items []model.Item) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, it := range items {
		fields, err := encodeFields(it.Fields)
		if err != nil {
			return err
		}
		status := it.Status
		if status == "" {
			status = model.StatusPending
		}
		updated := it.UpdatedAt
		if updated.IsZero() {
			updated = time.Now().UTC()
		}
		if _, err := tx.ExecContext(ctx, sqliteUpsertItem,
			it.ID, it.Category, it.Title, it.Body, fields, string(status), nullString(it.SupersededBy), updated,
		); err != nil {
			return fmt.Errorf("failed to upsert item %s: %w", it.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Items(ctx context.Context) ([]model.Item, error) {
	rows, err := s.db.QueryContext(ctx, sqliteSelectItems+" ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()
	return scanItems(rows)
}

func (s *SQLiteStore) GetItems(ctx context.Context, ids []string) (map[string]model.Item, error) {
	out := make(map[string]model.Item, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, sqliteSelectItems+" WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	items, err := scanItems(rows)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		out[it.ID] = it
	}
	return out, nil
}

func (s *SQLiteStore) Apply(ctx context.Context, m Mutation) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx, "SELECT status FROM items WHERE id = ?", m.ItemID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("%w: %s", ErrNotFound, m.ItemID)
	}
	if err != nil {
		return false, fmt.Errorf("failed to read item %s: %w", m.ItemID, err)
	}
	if !m.eligible(model.ItemStatus(status)) {
		return false, nil
	}

	if m.To != "" {
		query := "UPDATE items SET status = ?, updated_at = ? WHERE id = ?"
		args := []any{string(m.To), time.Now().UTC(), m.ItemID}
		if m.TargetID != "" {
			query = "UPDATE items SET status = ?, updated_at = ?, superseded_by = ? WHERE id = ?"
			args = []any{string(m.To), time.Now().UTC(), m.TargetID, m.ItemID}
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return false, fmt.Errorf("failed to update item %s: %w", m.ItemID, err)
		}
	}

	r := m.Record
	if _, err := tx.ExecContext(ctx, sqliteInsertRecord,
		r.Timestamp, r.User, r.EntryID, string(r.Action), nullString(r.TargetID), nullString(r.Notes),
	); err != nil {
		return false, fmt.Errorf("failed to insert decision record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) Records(ctx context.Context) ([]model.DecisionRecord, error) {
	rows, err := s.db.QueryContext(ctx, sqliteSelectRecords)
	if err != nil {
		return nil, fmt.Errorf("failed to query decision records: %w", err)
	}
	defer rows.Close()

	var out []model.DecisionRecord
	for rows.Next() {
		var (
			r      model.DecisionRecord
			action string
			target sql.NullString
			notes  sql.NullString
		)
		if err := rows.Scan(&r.Timestamp, &r.User, &r.EntryID, &action, &target, &notes); err != nil {
			return nil, fmt.Errorf("failed to scan decision record: %w", err)
		}
		r.Action = model.Action(action)
		r.TargetID = target.String
		r.Notes = notes.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanItems(rows *sql.Rows) ([]model.Item, error) {
	var items []model.Item
	for rows.Next() {
		var (
			it         model.Item
			fields     sql.NullString
			status     string
			superseded sql.NullString
		)
		if err := rows.Scan(&it.ID, &it.Category, &it.Title, &it.Body, &fields, &status, &superseded, &it.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		it.Status = model.ItemStatus(status)
		it.SupersededBy = superseded.String
		if fields.Valid && fields.String != "" {
			if err := json.Unmarshal([]byte(fields.String), &it.Fields); err != nil {
				return nil, fmt.Errorf("failed to decode fields of %s: %w", it.ID, err)
			}
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func encodeFields(fields map[string]string) (sql.NullString, error) {
	if len(fields) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode fields: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
