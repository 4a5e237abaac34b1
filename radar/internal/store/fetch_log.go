package store

import (
	"context"
	"fmt"
)

// InsertFetchLog records one crawl cycle.
func (s *Store) InsertFetchLog(ctx context.Context, e *FetchLogEntry) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO fetch_log (id, source_name, status, items, inserted,
		error_message, duration_ms, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SourceName, e.Status, e.Items, e.Inserted,
		e.ErrorMessage, e.DurationMs, e.FetchedAt,
	)
	return err
}

// FetchHistory returns recent cycle records for a source, newest first.
func (s *Store) FetchHistory(ctx context.Context, sourceName string, limit int) ([]*FetchLogEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, source_name, status, items, inserted, error_message,
		duration_ms, fetched_at
		FROM fetch_log WHERE source_name = ?
		ORDER BY fetched_at DESC LIMIT ?`, sourceName, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*FetchLogEntry
	for rows.Next() {
		var e FetchLogEntry
		if err := rows.Scan(&e.ID, &e.SourceName, &e.Status, &e.Items, &e.Inserted,
			&e.ErrorMessage, &e.DurationMs, &e.FetchedAt); err != nil {
			return nil, fmt.Errorf("scan fetch log: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Stats returns aggregate counters per source.
func (s *Store) Stats(ctx context.Context) ([]SourceStats, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT i.source_name, COUNT(*),
		(SELECT COUNT(*) FROM fetch_log f WHERE f.source_name = i.source_name)
		FROM items i GROUP BY i.source_name ORDER BY i.source_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []SourceStats
	for rows.Next() {
		var st SourceStats
		if err := rows.Scan(&st.SourceName, &st.Items, &st.Cycles); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}
