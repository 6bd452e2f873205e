package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rcliao/assoc-memory/internal/model"
)

// timeFormat is fixed-width so timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		id              TEXT PRIMARY KEY,
		text            TEXT NOT NULL,
		role            TEXT NOT NULL DEFAULT '',
		platform        TEXT NOT NULL DEFAULT '',
		conversation_id TEXT NOT NULL DEFAULT '',
		created_at      TEXT NOT NULL,
		keywords        TEXT,
		tags            TEXT,
		context         TEXT NOT NULL DEFAULT '',
		embedding       BLOB,
		links           TEXT,
		evolution       TEXT,
		updated_at      TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_memories_created ON memories(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_memories_platform ON memories(platform);
	CREATE INDEX IF NOT EXISTS idx_memories_conversation ON memories(conversation_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

const memoryColumns = `id, text, role, platform, conversation_id, created_at,
	keywords, tags, context, embedding, links, evolution`

const upsertSQL = `INSERT INTO memories (` + memoryColumns + `, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		keywords = excluded.keywords,
		tags = excluded.tags,
		context = excluded.context,
		embedding = excluded.embedding,
		links = excluded.links,
		evolution = excluded.evolution,
		updated_at = excluded.updated_at`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.Memory, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+memoryColumns+` FROM memories WHERE id = ?`, id)
	m, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Put inserts m, or updates its metadata, embedding, links and evolution
// if it exists. Provenance fields are never rewritten.
func (s *SQLiteStore) Put(ctx context.Context, m *model.Memory) error {
	return s.write(ctx, s.db, upsertSQL, m)
}

func (s *SQLiteStore) BulkPut(ctx context.Context, ms []*model.Memory) error {
	if len(ms) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, m := range ms {
		if err := s.write(ctx, tx, upsertSQL, m); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) write(ctx context.Context, ex execer, query string, m *model.Memory) error {
	args, err := memoryArgs(m)
	if err != nil {
		return fmt.Errorf("encode memory %s: %w", m.ID, err)
	}
	if _, err := ex.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("write memory %s: %w", m.ID, err)
	}
	return nil
}

func (s *SQLiteStore) All(ctx context.Context) ([]*model.Memory, error) {
	return s.query(ctx, `SELECT `+memoryColumns+` FROM memories ORDER BY created_at, id`)
}

func (s *SQLiteStore) List(ctx context.Context, p ListParams) ([]*model.Memory, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	where := []string{"1 = 1"}
	var args []interface{}
	if p.Platform != "" {
		where = append(where, "platform = ?")
		args = append(args, p.Platform)
	}
	if p.ConversationID != "" {
		where = append(where, "conversation_id = ?")
		args = append(args, p.ConversationID)
	}
	args = append(args, limit)

	query := fmt.Sprintf(`SELECT %s FROM memories WHERE %s ORDER BY created_at DESC, id DESC LIMIT ?`,
		memoryColumns, strings.Join(where, " AND "))
	return s.query(ctx, query, args...)
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...interface{}) ([]*model.Memory, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memories []*model.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		memories = append(memories, m)
	}
	return memories, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMemory(row scanner) (*model.Memory, error) {
	var m model.Memory
	var createdAt string
	var keywords, tags, links, evolution sql.NullString
	var vec []byte

	err := row.Scan(
		&m.ID, &m.Text, &m.Role, &m.Platform, &m.ConversationID, &createdAt,
		&keywords, &tags, &m.Context, &vec, &links, &evolution,
	)
	if err != nil {
		return nil, err
	}

	m.Timestamp, _ = time.Parse(timeFormat, createdAt)
	m.Embedding = decodeEmbedding(vec)
	if err := unmarshalNull(keywords, &m.Keywords); err != nil {
		return nil, fmt.Errorf("memory %s keywords: %w", m.ID, err)
	}
	if err := unmarshalNull(tags, &m.Tags); err != nil {
		return nil, fmt.Errorf("memory %s tags: %w", m.ID, err)
	}
	if err := unmarshalNull(links, &m.Links); err != nil {
		return nil, fmt.Errorf("memory %s links: %w", m.ID, err)
	}
	if err := unmarshalNull(evolution, &m.Evolution); err != nil {
		return nil, fmt.Errorf("memory %s evolution: %w", m.ID, err)
	}
	return &m, nil
}

func memoryArgs(m *model.Memory) ([]interface{}, error) {
	keywords, err := marshalNull(m.Keywords, len(m.Keywords) == 0)
	if err != nil {
		return nil, err
	}
	tags, err := marshalNull(m.Tags, len(m.Tags) == 0)
	if err != nil {
		return nil, err
	}
	links, err := marshalNull(m.Links, len(m.Links) == 0)
	if err != nil {
		return nil, err
	}
	evolution, err := marshalNull(m.Evolution, m.Evolution == nil)
	if err != nil {
		return nil, err
	}

	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return []interface{}{
		m.ID, m.Text, m.Role, m.Platform, m.ConversationID, ts.UTC().Format(timeFormat),
		keywords, tags, m.Context, encodeEmbedding(m.Embedding), links, evolution,
		time.Now().UTC().Format(timeFormat),
	}, nil
}

func marshalNull(v interface{}, empty bool) (*string, error) {
	if empty {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}

func unmarshalNull(ns sql.NullString, dst interface{}) error {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(ns.String), dst)
}

// encodeEmbedding packs a vector as little-endian float32s.
func encodeEmbedding(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeEmbedding(buf []byte) []float32 {
	if len(buf) == 0 || len(buf)%4 != 0 {
		return nil
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return vec
}
