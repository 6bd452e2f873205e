package store

import (
	"context"
	"fmt"
	"os"
)

// Stats holds database statistics.
type Stats struct {
	DBPath        string          `json:"db_path"`
	DBSizeBytes   int64           `json:"db_size_bytes"`
	TotalMemories int             `json:"total_memories"`
	Embedded      int             `json:"embedded"`
	Linked        int             `json:"linked"`
	TotalLinks    int             `json:"total_links"`
	Evolved       int             `json:"evolved"`
	Platforms     []PlatformStats `json:"platforms"`
}

// PlatformStats holds per-platform counts.
type PlatformStats struct {
	Platform      string `json:"platform"`
	Count         int    `json:"count"`
	Conversations int    `json:"conversations"`
}

// Stats returns database statistics.
func (s *SQLiteStore) Stats(ctx context.Context, dbPath string) (*Stats, error) {
	st := &Stats{DBPath: dbPath}

	// DB file size
	if info, err := os.Stat(dbPath); err == nil {
		st.DBSizeBytes = info.Size()
	}

	counts := []struct {
		query string
		dst   *int
	}{
		{`SELECT COUNT(*) FROM memories`, &st.TotalMemories},
		{`SELECT COUNT(*) FROM memories WHERE embedding IS NOT NULL`, &st.Embedded},
		{`SELECT COUNT(*) FROM memories WHERE links IS NOT NULL`, &st.Linked},
		{`SELECT COUNT(*) FROM memories WHERE evolution IS NOT NULL`, &st.Evolved},
		{`SELECT COALESCE(SUM(json_array_length(links)), 0) FROM memories WHERE links IS NOT NULL`, &st.TotalLinks},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("stats: %w", err)
		}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT platform, COUNT(*) AS cnt, COUNT(DISTINCT conversation_id) AS convs
		FROM memories
		GROUP BY platform ORDER BY cnt DESC`)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p PlatformStats
		if err := rows.Scan(&p.Platform, &p.Count, &p.Conversations); err != nil {
			return nil, fmt.Errorf("scan platform stats: %w", err)
		}
		st.Platforms = append(st.Platforms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}

	return st, nil
}
