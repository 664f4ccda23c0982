// Package sqlite is the primary record store on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/nimafallahian/go-indexer/internal/domain"
	"github.com/nimafallahian/go-indexer/internal/ports"
)

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA foreign_keys=ON",
	"PRAGMA busy_timeout=5000",
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS entities (
		name TEXT PRIMARY KEY
	)`,
	`CREATE TABLE IF NOT EXISTS records (
		entity TEXT NOT NULL REFERENCES entities(name) ON DELETE CASCADE,
		id     TEXT NOT NULL,
		fields TEXT NOT NULL,
		PRIMARY KEY (entity, id)
	)`,
}

// Store implements ports.RecordStore. Rows are JSON documents keyed by
// entity and id; keys are scanned in ascending id order.
type Store struct {
	db *sql.DB
}

var _ ports.RecordStore = (*Store)(nil)

// Open opens or creates the database at path and registers entities.
func Open(ctx context.Context, path string, entities ...string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", p, err)
		}
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("initialize schema: %w", err)
		}
	}

	s := &Store{db: db}
	for _, e := range entities {
		if err := s.RegisterEntity(ctx, e); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RegisterEntity declares an entity collection. It is idempotent.
func (s *Store) RegisterEntity(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO entities (name) VALUES (?)`, name); err != nil {
		return fmt.Errorf("register entity %s: %w", name, err)
	}
	return nil
}

// DropEntity removes an entity collection and all its rows.
func (s *Store) DropEntity(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM entities WHERE name = ?`, name); err != nil {
		return fmt.Errorf("drop entity %s: %w", name, err)
	}
	return nil
}

func (s *Store) ensureEntity(ctx context.Context, q querier, entity string) error {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM entities WHERE name = ?`, entity).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.NotFoundError{Kind: "entity", Name: entity}
	}
	if err != nil {
		return fmt.Errorf("lookup entity %s: %w", entity, err)
	}
	return nil
}

// FetchKeys implements ports.KeyFetcher.
func (s *Store) FetchKeys(ctx context.Context, entity, after string, limit int) ([]string, error) {
	if err := s.ensureEntity(ctx, s.db, entity); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM records WHERE entity = ? AND id > ? ORDER BY id LIMIT ?`,
		entity, after, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch %s keys after %q: %w", entity, after, err)
	}
	defer rows.Close()

	ids := make([]string, 0, limit)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan %s key: %w", entity, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountKeys implements ports.KeyFetcher.
func (s *Store) CountKeys(ctx context.Context, entity string) (int, error) {
	if err := s.ensureEntity(ctx, s.db, entity); err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE entity = ?`, entity).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", entity, err)
	}
	return n, nil
}

// Load implements ports.RecordLoader. Translated values are stored per
// language inside the row and picked by the document builders, so snap does
// not narrow the query.
func (s *Store) Load(ctx context.Context, entity string, ids []string, _ domain.Snapshot) ([]domain.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, entity)
	for _, id := range ids {
		args = append(args, id)
	}
	query := `SELECT id, fields FROM records WHERE entity = ? AND id IN (` +
		strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",") + `) ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load %d %s rows: %w", len(ids), entity, err)
	}
	defer rows.Close()

	var out []domain.Record
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", entity, err)
		}
		fields, err := decodeFields(raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", entity, id, err)
		}
		out = append(out, domain.Record{ID: id, Fields: fields})
	}
	return out, rows.Err()
}

// Upsert writes records and describes the write: each change lists the
// fields whose value differs from the stored row. Rows written unchanged are
// left out of the event.
func (s *Store) Upsert(ctx context.Context, entity string, records []domain.Record) (domain.WriteEvent, error) {
	event := domain.WriteEvent{Entity: entity}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.ensureEntity(ctx, tx, entity); err != nil {
			return err
		}
		for _, rec := range records {
			var (
				old    map[string]any
				raw    []byte
				exists = true
			)
			err := tx.QueryRowContext(ctx, `SELECT fields FROM records WHERE entity = ? AND id = ?`, entity, rec.ID).Scan(&raw)
			switch {
			case errors.Is(err, sql.ErrNoRows):
				exists = false
			case err != nil:
				return fmt.Errorf("read %s/%s: %w", entity, rec.ID, err)
			default:
				if old, err = decodeFields(raw); err != nil {
					return fmt.Errorf("decode %s/%s: %w", entity, rec.ID, err)
				}
			}

			encoded, err := json.Marshal(rec.Fields)
			if err != nil {
				return fmt.Errorf("encode %s/%s: %w", entity, rec.ID, err)
			}
			fresh, err := decodeFields(encoded)
			if err != nil {
				return err
			}

			changed := changedFields(old, fresh)
			if exists && len(changed) == 0 {
				continue
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO records (entity, id, fields) VALUES (?, ?, ?)
				 ON CONFLICT (entity, id) DO UPDATE SET fields = excluded.fields`,
				entity, rec.ID, encoded)
			if err != nil {
				return fmt.Errorf("write %s/%s: %w", entity, rec.ID, err)
			}
			event.Changes = append(event.Changes, domain.Change{ID: rec.ID, Fields: changed})
		}
		return nil
	})
	return event, err
}

// Delete removes ids and describes the deletion. Missing ids are ignored.
func (s *Store) Delete(ctx context.Context, entity string, ids []string) (domain.WriteEvent, error) {
	event := domain.WriteEvent{Entity: entity}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.ensureEntity(ctx, tx, entity); err != nil {
			return err
		}
		for _, id := range ids {
			res, err := tx.ExecContext(ctx, `DELETE FROM records WHERE entity = ? AND id = ?`, entity, id)
			if err != nil {
				return fmt.Errorf("delete %s/%s: %w", entity, id, err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				event.Changes = append(event.Changes, domain.Change{ID: id, Deleted: true})
			}
		}
		return nil
	})
	return event, err
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func decodeFields(raw []byte) (map[string]any, error) {
	fields := map[string]any{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func changedFields(old, fresh map[string]any) []string {
	keys := slices.Collect(maps.Keys(fresh))
	for k := range old {
		if _, ok := fresh[k]; !ok {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	var changed []string
	for _, k := range keys {
		ov, inOld := old[k]
		nv, inNew := fresh[k]
		if inOld != inNew || !reflect.DeepEqual(ov, nv) {
			changed = append(changed, k)
		}
	}
	return changed
}
