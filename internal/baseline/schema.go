package baseline

import "database/sql"

const ddl = `
PRAGMA journal_mode=WAL;
PRAGMA foreign_keys=ON;

CREATE TABLE IF NOT EXISTS generations (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    root       TEXT NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS files (
    generation_id INTEGER NOT NULL REFERENCES generations(id) ON DELETE CASCADE,
    path          TEXT NOT NULL,
    digest        TEXT NOT NULL,
    size_bytes    INTEGER NOT NULL DEFAULT 0,
    last_checked  INTEGER NOT NULL,
    PRIMARY KEY (generation_id, path)
);

CREATE INDEX IF NOT EXISTS idx_generations_created_at ON generations(created_at);

CREATE TABLE IF NOT EXISTS meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// initSchema creates the schema tables if they don't exist.
func initSchema(db *sql.DB) error {
	_, err := db.Exec(ddl)
	return err
}
