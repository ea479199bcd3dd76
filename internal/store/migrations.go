package store

import (
	"context"
	"database/sql"
	"strings"
)

// schema contains the DDL for all catalog tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS operation_descriptors (
		position         INTEGER NOT NULL,
		order_code       TEXT NOT NULL,
		quantity         INTEGER NOT NULL,
		operation_id     TEXT NOT NULL,
		sequence_number  INTEGER NOT NULL,
		capable_machines TEXT NOT NULL,
		processing_times TEXT NOT NULL,
		imported_at      TEXT NOT NULL,
		PRIMARY KEY (order_code, operation_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_descriptors_position ON operation_descriptors(position)`,

	`CREATE TABLE IF NOT EXISTS events (
		seq          INTEGER PRIMARY KEY AUTOINCREMENT,
		id           TEXT NOT NULL UNIQUE,
		type         TEXT NOT NULL,
		pass_id      TEXT NOT NULL DEFAULT '',
		order_code   TEXT NOT NULL,
		operation_id TEXT NOT NULL DEFAULT '',
		machine_id   TEXT NOT NULL DEFAULT '',
		at           TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_order_code ON events(order_code)`,
}

// alterStatements are column additions that need special handling since
// SQLite doesn't support IF NOT EXISTS for ALTER TABLE ADD COLUMN.
var alterStatements = []struct {
	table    string
	column   string
	alterSQL string
	indexSQL string // Optional index to create after column is added
}{
	{
		table:    "operation_descriptors",
		column:   "operation_name",
		alterSQL: "ALTER TABLE operation_descriptors ADD COLUMN operation_name TEXT NOT NULL DEFAULT ''",
	},
	{
		table:    "events",
		column:   "type",
		alterSQL: "ALTER TABLE events ADD COLUMN type TEXT NOT NULL DEFAULT ''",
		indexSQL: "CREATE INDEX IF NOT EXISTS idx_events_type ON events(type)",
	},
}

// migrate executes all schema DDL statements, alter migrations, and post-migration indexes.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	for _, alter := range alterStatements {
		if err := addColumnIfNotExists(ctx, db, alter.table, alter.column, alter.alterSQL); err != nil {
			return err
		}
		if alter.indexSQL != "" {
			if _, err := db.ExecContext(ctx, alter.indexSQL); err != nil {
				return err
			}
		}
	}
	return nil
}

// addColumnIfNotExists adds a column to a table if it doesn't already exist.
func addColumnIfNotExists(ctx context.Context, db *sql.DB, table, column, alterSQL string) error {
	rows, err := db.QueryContext(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue *string
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return err
		}
		if strings.EqualFold(name, column) {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, alterSQL)
	return err
}
