package store

import (
	"context"

	"github.com/rcliao/assoc-memory/internal/model"
)

// ExportAll returns all memories, optionally filtered by platform.
func (s *SQLiteStore) ExportAll(ctx context.Context, platform string) ([]*model.Memory, error) {
	if platform == "" {
		return s.All(ctx)
	}
	return s.query(ctx, `SELECT `+memoryColumns+` FROM memories WHERE platform = ? ORDER BY created_at, id`, platform)
}

const insertIgnoreSQL = `INSERT INTO memories (` + memoryColumns + `, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO NOTHING`

// Import stores memories from an export. Memories whose id already exists
// are skipped. It returns the number imported.
func (s *SQLiteStore) Import(ctx context.Context, memories []*model.Memory) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	imported := 0
	for _, m := range memories {
		args, err := memoryArgs(m)
		if err != nil {
			return 0, err
		}
		res, err := tx.ExecContext(ctx, insertIgnoreSQL, args...)
		if err != nil {
			return 0, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			imported++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return imported, nil
}
