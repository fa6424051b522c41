package dataset

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// Local is a SQLite-backed sink so runs work standalone, outside any hosted
// platform. Items land as JSON rows; Describe is stable across the life of
// the database file, which is what gives resumed runs their original
// dataset metadata.
type Local struct {
	db   *sql.DB
	name string
}

// NewLocal opens (or creates) the local dataset at path.
func NewLocal(path, name string) (*Local, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "dataset: exec %s", pragma)
		}
	}
	return &Local{db: db, name: name}, nil
}

const localMigration = `
CREATE TABLE IF NOT EXISTS dataset_meta (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS dataset_items (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	payload    TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);
`

// Migrate creates tables and stamps dataset metadata on first creation.
func (l *Local) Migrate(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, localMigration); err != nil {
		return eris.Wrap(err, "dataset: migrate")
	}

	var n int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dataset_meta`).Scan(&n); err != nil {
		return eris.Wrap(err, "dataset: count meta")
	}
	if n == 0 {
		_, err := l.db.ExecContext(ctx,
			`INSERT INTO dataset_meta (id, name, created_at) VALUES (?, ?, ?)`,
			uuid.New().String(), l.name, time.Now().UTC(),
		)
		if err != nil {
			return eris.Wrap(err, "dataset: stamp meta")
		}
	}
	return nil
}

func (l *Local) Close() error {
	return l.db.Close()
}

func (l *Local) Describe(ctx context.Context) (*Info, error) {
	var info Info
	err := l.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM dataset_meta LIMIT 1`,
	).Scan(&info.ID, &info.Name, &info.CreatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: describe")
	}
	return &info, nil
}

func (l *Local) Push(ctx context.Context, item map[string]any) error {
	payload, err := json.Marshal(item)
	if err != nil {
		return eris.Wrap(err, "dataset: marshal item")
	}
	_, err = l.db.ExecContext(ctx,
		`INSERT INTO dataset_items (payload) VALUES (?)`, string(payload),
	)
	return eris.Wrap(err, "dataset: insert item")
}

// Export renders every pushed item as a single JSON array in insertion
// order, the shape expected by downstream uploads.
func (l *Local) Export(ctx context.Context) ([]byte, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT payload FROM dataset_items ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: export")
	}
	defer rows.Close()

	items := []json.RawMessage{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "dataset: scan item")
		}
		items = append(items, json.RawMessage(payload))
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "dataset: export rows")
	}
	return json.Marshal(items)
}

func (l *Local) Count(ctx context.Context) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dataset_items`).Scan(&n)
	return n, eris.Wrap(err, "dataset: count items")
}
