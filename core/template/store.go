package template

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/FocuswithJustin/LegacyBridge/core/errors"
	"github.com/FocuswithJustin/LegacyBridge/core/sqlite"
)

const storeSchema = `
CREATE TABLE IF NOT EXISTS templates (
	name        TEXT PRIMARY KEY,
	definition  TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	updated_at  INTEGER NOT NULL
)`

// Store persists template definitions in a SQLite database.
type Store struct {
	db *sql.DB
}

// OpenStore opens or creates the template database at path. Use ":memory:"
// for a private in-memory store.
func OpenStore(path string) (*Store, error) {
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, errors.NewIO("open", path, err)
	}
	// A single connection keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(storeSchema); err != nil {
		db.Close()
		return nil, errors.NewIO("create schema", path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts or replaces a template.
func (s *Store) Save(ctx context.Context, t *Template) error {
	data, err := MarshalYAML(t.Definition)
	if err != nil {
		return errors.Wrapf(err, "encoding template %q", t.Name)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO templates (name, definition, fingerprint, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			definition = excluded.definition,
			fingerprint = excluded.fingerprint,
			updated_at = excluded.updated_at`,
		t.Name, string(data), t.Fingerprint, time.Now().Unix())
	if err != nil {
		return errors.Wrapf(err, "saving template %q", t.Name)
	}
	return nil
}

// Delete removes a template.
func (s *Store) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM templates WHERE name = ?`, name)
	if err != nil {
		return errors.Wrapf(err, "deleting template %q", name)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFound("template", name)
	}
	return nil
}

// LoadAll returns every stored definition ordered by name.
func (s *Store) LoadAll(ctx context.Context) ([]Definition, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, definition FROM templates ORDER BY name`)
	if err != nil {
		return nil, errors.Wrap(err, "listing templates")
	}
	defer rows.Close()

	var defs []Definition
	for rows.Next() {
		var name, data string
		if err := rows.Scan(&name, &data); err != nil {
			return nil, errors.Wrap(err, "reading template row")
		}
		def, err := LoadYAML([]byte(data))
		if err != nil {
			return nil, errors.Wrapf(err, "decoding stored template %q", name)
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

// LoadInto registers every stored definition, replacing templates of the
// same name. It returns the number registered.
func (s *Store) LoadInto(ctx context.Context, r *Registry) (int, error) {
	defs, err := s.LoadAll(ctx)
	if err != nil {
		return 0, err
	}
	for i, def := range defs {
		if err := r.Register(def, true); err != nil {
			return i, errors.Wrapf(err, "registering stored template %q", def.Name)
		}
	}
	return len(defs), nil
}

// RegisterAndSave registers def and persists it when s is not nil.
func RegisterAndSave(ctx context.Context, r *Registry, s *Store, def Definition, overwrite bool) error {
	if err := r.Register(def, overwrite); err != nil {
		return err
	}
	if s == nil {
		return nil
	}
	t, err := r.Get(strings.TrimSpace(def.Name))
	if err != nil {
		return err
	}
	return s.Save(ctx, t)
}
