// Package store is the persistence gateway for harvested items.
//
// Items are keyed by their platform-native identifier (natural_id). The
// gateway is idempotent under at-least-once delivery: a second insert with
// the same natural_id is skipped, never merged, never an error. Nothing is
// ever deleted through this package.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/solweave/degenradar/dbopen"
)

// Store wraps the item database.
type Store struct {
	DB *sql.DB
}

// NewStore creates a Store from an already-opened database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

// Upsert inserts items that are not yet known, first-write-wins. Items are
// persisted in slice order. The report counts fresh inserts and duplicates.
func (s *Store) Upsert(ctx context.Context, items []RawItem) (UpsertReport, error) {
	var report UpsertReport
	err := dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		for _, it := range items {
			res, err := tx.ExecContext(ctx,
				`INSERT INTO items (natural_id, body, author_handle, author_followers,
				author_verified, likes, shares, replies, views, created_at,
				source_name, collected_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(natural_id) DO NOTHING`,
				it.NaturalID, it.Body, it.AuthorHandle, it.AuthorFollowers,
				boolInt(it.AuthorVerified), it.Likes, it.Shares, it.Replies, it.Views,
				it.CreatedAt, it.SourceName, it.CollectedAt,
			)
			if err != nil {
				return fmt.Errorf("insert item %s: %w", it.NaturalID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			if n > 0 {
				report.Inserted++
			} else {
				report.SkippedDuplicate++
			}
		}
		return nil
	})
	if err != nil {
		return UpsertReport{}, err
	}
	return report, nil
}

// GetByNaturalID retrieves one item, or nil if unknown.
func (s *Store) GetByNaturalID(ctx context.Context, naturalID string) (*RawItem, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT natural_id, body, author_handle, author_followers, author_verified,
		likes, shares, replies, views, created_at, source_name, collected_at
		FROM items WHERE natural_id = ?`, naturalID)

	var it RawItem
	var verified int
	err := row.Scan(&it.NaturalID, &it.Body, &it.AuthorHandle, &it.AuthorFollowers,
		&verified, &it.Likes, &it.Shares, &it.Replies, &it.Views,
		&it.CreatedAt, &it.SourceName, &it.CollectedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan item: %w", err)
	}
	it.AuthorVerified = verified != 0
	return &it, nil
}

// ListRecent returns the newest items for a source by collection time.
// An empty source name lists across all sources.
func (s *Store) ListRecent(ctx context.Context, sourceName string, limit int) ([]RawItem, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT natural_id, body, author_handle, author_followers, author_verified,
		likes, shares, replies, views, created_at, source_name, collected_at
		FROM items `
	args := []any{limit}
	if sourceName != "" {
		query += `WHERE source_name = ? `
		args = []any{sourceName, limit}
	}
	query += `ORDER BY collected_at DESC, natural_id LIMIT ?`
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []RawItem
	for rows.Next() {
		var it RawItem
		var verified int
		if err := rows.Scan(&it.NaturalID, &it.Body, &it.AuthorHandle, &it.AuthorFollowers,
			&verified, &it.Likes, &it.Shares, &it.Replies, &it.Views,
			&it.CreatedAt, &it.SourceName, &it.CollectedAt); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		it.AuthorVerified = verified != 0
		items = append(items, it)
	}
	return items, rows.Err()
}

// CountItems returns the total number of stored items for a source.
// An empty source name counts across all sources.
func (s *Store) CountItems(ctx context.Context, sourceName string) (int, error) {
	var count int
	var err error
	if sourceName == "" {
		err = s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&count)
	} else {
		err = s.DB.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM items WHERE source_name = ?`, sourceName).Scan(&count)
	}
	return count, err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
