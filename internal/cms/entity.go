// Package cms adapts the host content-management system for the sync engine: its
// module and template tables, its render cache, the class directory and the
// public asset tree.
package cms

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/kilupskalvis/blocksync/internal/models"
)

// Entity is a module or template row of the host CMS. Input and Output are used
// by modules, Content by templates.
type Entity struct {
	Kind      models.ItemKind
	ID        int64
	Name      string
	Key       string
	Input     string
	Output    string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UploadKey returns the stable identifier used for remote paths: the row key, or
// "{kind}_{id}" for rows that have none.
func (e *Entity) UploadKey() string {
	if e.Key != "" {
		return e.Key
	}
	return fmt.Sprintf("%s_%d", e.Kind, e.ID)
}

// EntityStore reads and writes host module/template rows.
type EntityStore interface {
	FindByKey(ctx context.Context, kind models.ItemKind, key string) (*Entity, error)
	FindByName(ctx context.Context, kind models.ItemKind, name string) (*Entity, error)
	Get(ctx context.Context, kind models.ItemKind, id int64) (*Entity, error)
	List(ctx context.Context, kind models.ItemKind) ([]*Entity, error)
	Insert(ctx context.Context, e *Entity) (int64, error)
	Update(ctx context.Context, e *Entity, by models.MatchedBy) error
}

type table struct {
	name    string
	columns []string // content columns after id, name, key
}

var tables = map[models.ItemKind]table{
	models.KindModule:   {name: "module", columns: []string{"input", "output"}},
	models.KindTemplate: {name: "template", columns: []string{"content"}},
}

func tableFor(kind models.ItemKind) (table, error) {
	t, ok := tables[kind]
	if !ok {
		return table{}, fmt.Errorf("no host table for kind %q", kind)
	}
	return t, nil
}

func (t table) values(e *Entity) []any {
	if t.name == "module" {
		return []any{e.Input, e.Output}
	}
	return []any{e.Content}
}

// SQLEntityStore implements EntityStore on the host SQLite tables. Whether the
// key column is read or written is decided by the Capabilities it was built with.
type SQLEntityStore struct {
	db   *sql.DB
	caps Capabilities
	now  func() time.Time
}

// NewSQLEntityStore creates a store over db.
func NewSQLEntityStore(db *sql.DB, caps Capabilities) *SQLEntityStore {
	return &SQLEntityStore{db: db, caps: caps, now: time.Now}
}

// Capabilities returns the schema capabilities the store was built with.
func (s *SQLEntityStore) Capabilities() Capabilities {
	return s.caps
}

func (s *SQLEntityStore) selectColumns(kind models.ItemKind, t table) string {
	cols := []string{"id", "name", "''"}
	if s.caps.HasKey(kind) {
		cols[2] = `COALESCE("key", '')`
	}
	cols = append(cols, t.columns...)
	cols = append(cols, "COALESCE(created_at, '')", "COALESCE(updated_at, '')")
	return strings.Join(cols, ", ")
}

func (s *SQLEntityStore) queryOne(ctx context.Context, kind models.ItemKind, where string, arg any) (*Entity, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY id LIMIT 1", s.selectColumns(kind, t), t.name, where)
	e, err := scanEntity(kind, t, s.db.QueryRowContext(ctx, q, arg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", t.name, err)
	}
	return e, nil
}

// FindByKey returns the row with the given key. Returns (nil, nil) when not found
// or when the table has no key column.
func (s *SQLEntityStore) FindByKey(ctx context.Context, kind models.ItemKind, key string) (*Entity, error) {
	if key == "" || !s.caps.HasKey(kind) {
		return nil, nil
	}
	return s.queryOne(ctx, kind, `"key" = ?`, key)
}

// FindByName returns the first row with the given display name, or (nil, nil).
func (s *SQLEntityStore) FindByName(ctx context.Context, kind models.ItemKind, name string) (*Entity, error) {
	return s.queryOne(ctx, kind, "name = ?", name)
}

// Get returns the row with the given id, or (nil, nil).
func (s *SQLEntityStore) Get(ctx context.Context, kind models.ItemKind, id int64) (*Entity, error) {
	return s.queryOne(ctx, kind, "id = ?", id)
}

// List returns every row of kind ordered by name.
func (s *SQLEntityStore) List(ctx context.Context, kind models.ItemKind) ([]*Entity, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY name, id", s.selectColumns(kind, t), t.name))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", t.name, err)
	}
	defer rows.Close()

	var out []*Entity
	for rows.Next() {
		e, err := scanEntity(kind, t, rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.name, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Insert adds a new row and returns its id. The key is written only when the
// table supports it and the entity carries one.
func (s *SQLEntityStore) Insert(ctx context.Context, e *Entity) (int64, error) {
	t, err := tableFor(e.Kind)
	if err != nil {
		return 0, err
	}
	now := s.now().UTC().Format(time.RFC3339)

	cols := []string{"name"}
	args := []any{e.Name}
	if e.Key != "" && s.caps.HasKey(e.Kind) {
		cols = append(cols, `"key"`)
		args = append(args, e.Key)
	}
	cols = append(cols, t.columns...)
	args = append(args, t.values(e)...)
	cols = append(cols, "created_at", "updated_at")
	args = append(args, now, now)

	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t.name, strings.Join(cols, ", "), placeholders(len(cols)))
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("insert %s: %w", t.name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert %s: %w", t.name, err)
	}
	e.ID = id
	return id, nil
}

// Update overwrites the content of an existing row. A row matched by key is
// addressed by key and its key is left alone; a row matched by name is addressed
// by id and receives the entity key when one is set.
func (s *SQLEntityStore) Update(ctx context.Context, e *Entity, by models.MatchedBy) error {
	t, err := tableFor(e.Kind)
	if err != nil {
		return err
	}

	sets := []string{"name"}
	args := []any{e.Name}
	sets = append(sets, t.columns...)
	args = append(args, t.values(e)...)
	sets = append(sets, "updated_at")
	args = append(args, s.now().UTC().Format(time.RFC3339))

	var where string
	switch by {
	case models.MatchedByKey:
		if !s.caps.HasKey(e.Kind) || e.Key == "" {
			return fmt.Errorf("update %s: key match without key", t.name)
		}
		where = `"key" = ?`
		args = append(args, e.Key)
	case models.MatchedByName:
		if e.Key != "" && s.caps.HasKey(e.Kind) {
			sets = append(sets, `"key"`)
			args = append(args, e.Key)
		}
		where = "id = ?"
		args = append(args, e.ID)
	default:
		return fmt.Errorf("update %s: no match predicate", t.name)
	}

	assign := make([]string, len(sets))
	for i, c := range sets {
		assign[i] = c + " = ?"
	}
	q := fmt.Sprintf("UPDATE %s SET %s WHERE %s", t.name, strings.Join(assign, ", "), where)
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", t.name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update %s: no row matched", t.name)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(kind models.ItemKind, t table, row rowScanner) (*Entity, error) {
	e := &Entity{Kind: kind}
	var created, updated string
	dest := []any{&e.ID, &e.Name, &e.Key}
	if t.name == "module" {
		dest = append(dest, &e.Input, &e.Output)
	} else {
		dest = append(dest, &e.Content)
	}
	dest = append(dest, &created, &updated)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	e.CreatedAt, _ = time.Parse(time.RFC3339, created)
	e.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return e, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
