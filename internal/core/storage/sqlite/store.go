// Package sqlite stores instance records in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/zeusync/harmonia/internal/core/instance"
	"github.com/zeusync/harmonia/internal/core/storage"
)

var _ storage.RecordStore = (*Store)(nil)

type Store struct {
	db     *sql.DB
	closed atomic.Bool
}

// Open creates the database file and schema if needed.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite: empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS instances (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		data_key TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		loc_x REAL NOT NULL, loc_y REAL NOT NULL, loc_z REAL NOT NULL,
		pitch REAL NOT NULL, yaw REAL NOT NULL, roll REAL NOT NULL,
		scale_x REAL NOT NULL, scale_y REAL NOT NULL, scale_z REAL NOT NULL
	);`)
	return err
}

// SaveRecords replaces the stored set in a single transaction.
func (s *Store) SaveRecords(ctx context.Context, records []instance.Record) (err error) {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM instances`); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO instances
		(id, type, data_key, quantity, loc_x, loc_y, loc_z, pitch, yaw, roll, scale_x, scale_y, scale_z)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		t := r.Transform
		if _, err = stmt.ExecContext(ctx,
			r.ID.String(), string(r.Type), r.DataKey, r.Quantity,
			t.Location.X, t.Location.Y, t.Location.Z,
			t.Rotation.Pitch, t.Rotation.Yaw, t.Rotation.Roll,
			t.Scale.X, t.Scale.Y, t.Scale.Z,
		); err != nil {
			return fmt.Errorf("insert %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

func (s *Store) LoadRecords(ctx context.Context) ([]instance.Record, error) {
	if s.closed.Load() {
		return nil, storage.ErrClosed
	}
	rows, err := s.db.QueryContext(ctx, `SELECT
		id, type, data_key, quantity, loc_x, loc_y, loc_z, pitch, yaw, roll, scale_x, scale_y, scale_z
		FROM instances ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []instance.Record
	for rows.Next() {
		var (
			r   instance.Record
			id  string
			typ string
			t   = &r.Transform
		)
		if err := rows.Scan(&id, &typ, &r.DataKey, &r.Quantity,
			&t.Location.X, &t.Location.Y, &t.Location.Z,
			&t.Rotation.Pitch, &t.Rotation.Yaw, &t.Rotation.Roll,
			&t.Scale.X, &t.Scale.Y, &t.Scale.Z,
		); err != nil {
			return nil, err
		}
		if r.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("%w: instance id %q: %v", storage.ErrCorrupt, id, err)
		}
		r.Type = instance.ObjectType(typ)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}
