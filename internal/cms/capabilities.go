package cms

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kilupskalvis/blocksync/internal/models"
)

// Capabilities describes optional features of the host schema. Older
// installations predate the key column, so lookups and writes must check it.
type Capabilities struct {
	ModuleKey   bool
	TemplateKey bool
}

// HasKey reports whether the table for kind has a key column.
func (c Capabilities) HasKey(kind models.ItemKind) bool {
	switch kind {
	case models.KindModule:
		return c.ModuleKey
	case models.KindTemplate:
		return c.TemplateKey
	}
	return false
}

// DetectCapabilities inspects the host schema once.
func DetectCapabilities(ctx context.Context, db *sql.DB) (Capabilities, error) {
	var caps Capabilities
	var err error
	if caps.ModuleKey, err = hasColumn(ctx, db, "module", "key"); err != nil {
		return caps, err
	}
	if caps.TemplateKey, err = hasColumn(ctx, db, "template", "key"); err != nil {
		return caps, err
	}
	return caps, nil
}

func hasColumn(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("inspect %s schema: %w", table, err)
	}
	return n > 0, nil
}
