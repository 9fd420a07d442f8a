package baseline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fimwatch/internal/fingerprint"

	"github.com/mattn/go-sqlite3"
)

// SQLiteStore is a Store backed by SQLite. Every Save records a new
// generation in one transaction, so readers observe either the previous or
// the new generation and never a mix.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	retain int
}

var _ Store = &SQLiteStore{} // SQLiteStore is-a Store.

// OpenSQLite creates or opens a SQLite database at path and initializes the
// schema. At most retain generations are kept in addition to the current one.
func OpenSQLite(path string, retain int) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := initSchema(db); err != nil {
		db.Close()
		if isCorrupt(err) {
			return nil, &CorruptError{Path: path, Err: err}
		}
		return nil, fmt.Errorf("init schema: %w", err)
	}
	if retain < 0 {
		retain = 0
	}
	return &SQLiteStore{db: db, path: path, retain: retain}, nil
}

// Path returns the database location.
func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) Load(ctx context.Context) (*Baseline, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, root, created_at FROM generations ORDER BY id DESC LIMIT 1")
	return s.loadGeneration(ctx, row)
}

func (s *SQLiteStore) AsOf(ctx context.Context, t time.Time) (*Baseline, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, root, created_at FROM generations WHERE created_at <= ? ORDER BY created_at DESC, id DESC LIMIT 1",
		t.UnixNano())
	return s.loadGeneration(ctx, row)
}

func (s *SQLiteStore) loadGeneration(ctx context.Context, row *sql.Row) (*Baseline, error) {
	var (
		id        int64
		root      string
		createdAt int64
	)
	err := row.Scan(&id, &root, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNoBaseline
	} else if err != nil {
		return nil, s.wrap("load generation", err)
	}

	b := New(root, time.Unix(0, createdAt))

	rows, err := s.db.QueryContext(ctx,
		"SELECT path, digest, size_bytes, last_checked FROM files WHERE generation_id = ?", id)
	if err != nil {
		return nil, s.wrap("load files", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			r           FileRecord
			digest      string
			lastChecked int64
		)
		if err := rows.Scan(&r.Path, &digest, &r.Size, &lastChecked); err != nil {
			return nil, s.wrap("scan file", err)
		}
		if r.Digest, err = fingerprint.ParseDigest(digest); err != nil {
			return nil, &CorruptError{Path: s.path, Err: fmt.Errorf("file %q: %w", r.Path, err)}
		}
		r.LastChecked = time.Unix(0, lastChecked).UTC()
		b.Add(r)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap("load files", err)
	}
	if err := b.Validate(); err != nil {
		return nil, &CorruptError{Path: s.path, Err: err}
	}
	return b, nil
}

func (s *SQLiteStore) Save(ctx context.Context, b *Baseline) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO generations (root, created_at) VALUES (?, ?)",
		b.Root, b.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert generation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO files (generation_id, path, digest, size_bytes, last_checked) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range b.Records() {
		if _, err := stmt.ExecContext(ctx, id, r.Path, r.Digest.String(), r.Size, r.LastChecked.UnixNano()); err != nil {
			return fmt.Errorf("insert file %s: %w", r.Path, err)
		}
	}

	// Prune generations beyond retention, then any orphaned files.
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM generations WHERE id NOT IN (SELECT id FROM generations ORDER BY id DESC LIMIT ?)",
		s.retain+1); err != nil {
		return fmt.Errorf("prune generations: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM files WHERE generation_id NOT IN (SELECT id FROM generations)"); err != nil {
		return fmt.Errorf("prune files: %w", err)
	}
	if err := setMeta(ctx, tx, "root", b.Root); err != nil {
		return fmt.Errorf("set meta: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) History(ctx context.Context) ([]Generation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT g.root, g.created_at, COUNT(f.path)
		FROM generations g
		LEFT JOIN files f ON f.generation_id = g.id
		GROUP BY g.id
		ORDER BY g.created_at DESC, g.id DESC
	`)
	if err != nil {
		return nil, s.wrap("list generations", err)
	}
	defer rows.Close()

	var out []Generation
	for rows.Next() {
		var (
			g         Generation
			createdAt int64
		)
		if err := rows.Scan(&g.Root, &createdAt, &g.Files); err != nil {
			return nil, err
		}
		g.CreatedAt = time.Unix(0, createdAt).UTC()
		out = append(out, g)
	}
	return out, rows.Err()
}

// GetMeta returns a metadata value by key, or "" if not set.
func (s *SQLiteStore) GetMeta(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func setMeta(ctx context.Context, tx *sql.Tx, key, value string) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) wrap(op string, err error) error {
	if isCorrupt(err) {
		return &CorruptError{Path: s.path, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// isCorrupt reports whether err is SQLite refusing the file's contents.
func isCorrupt(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrNotADB || se.Code == sqlite3.ErrCorrupt
	}
	return false
}
