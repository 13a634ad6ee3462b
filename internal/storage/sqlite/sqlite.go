package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/DALE-GH/location-tracker/pkg/e"

	_ "modernc.org/sqlite"
)

const (
	KeyLocations = "locations"
	KeyConfig    = "config"
	KeyInstallID = "install_id"
)

// Blobs is a durable key -> bytes table in a local SQLite file.
type Blobs struct {
	db *sql.DB
}

func Open(path string) (*Blobs, error) {
	const op = "sqlite.Open"

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	b := &Blobs{db: db}
	if err := b.migrate(); err != nil {
		_ = db.Close()
		return nil, e.Wrap(op, err)
	}
	return b, nil
}

func (b *Blobs) Close() error { return b.db.Close() }

func (b *Blobs) migrate() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE IF NOT EXISTS blobs (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := b.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Get returns e.ErrNotFound when key has never been written.
func (b *Blobs) Get(ctx context.Context, key string) ([]byte, error) {
	const op = "sqlite.Blobs.Get"

	var value []byte
	err := b.db.QueryRowContext(ctx, `SELECT value FROM blobs WHERE key = ?`, key).Scan(&value)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("%s %q: %w", op, key, e.ErrNotFound)
	case err != nil:
		return nil, fmt.Errorf("%s %q: %w", op, key, err)
	}
	return value, nil
}

func (b *Blobs) Put(ctx context.Context, key string, value []byte) error {
	const op = "sqlite.Blobs.Put"

	_, err := b.db.ExecContext(ctx, `INSERT INTO blobs(key, value, updated_at) VALUES(?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%s %q: %w", op, key, err)
	}
	return nil
}

func (b *Blobs) Delete(ctx context.Context, key string) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM blobs WHERE key = ?`, key); err != nil {
		return fmt.Errorf("sqlite.Blobs.Delete %q: %w", key, err)
	}
	return nil
}
