package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/opsched/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	return newSQLiteStore(db, logger), nil
}

func newSQLiteStore(db *sql.DB, logger *slog.Logger) *SQLiteStore {
	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// --- Descriptor catalog ---

// ReplaceDescriptors swaps the whole catalog for ds in one transaction.
// Row order is kept so reloads preserve creation order.
func (s *SQLiteStore) ReplaceDescriptors(ctx context.Context, ds []model.OperationDescriptor) error {
	s.logger.Debug("sql", "op", "replace", "table", "operation_descriptors", "rows", len(ds))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM operation_descriptors`); err != nil {
		return fmt.Errorf("clear catalog: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for i, d := range ds {
		machinesJSON, err := json.Marshal(d.Machines)
		if err != nil {
			return fmt.Errorf("marshal machines: %w", err)
		}
		timesJSON, err := json.Marshal(secondsOf(d.Durations))
		if err != nil {
			return fmt.Errorf("marshal processing times: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO operation_descriptors (position, order_code, quantity, operation_id, operation_name, sequence_number, capable_machines, processing_times, imported_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			i, d.OrderCode, d.Quantity, d.OperationID, d.OperationName, d.Sequence,
			string(machinesJSON), string(timesJSON), now,
		)
		if err != nil {
			return fmt.Errorf("insert %s/%s: %w", d.OrderCode, d.OperationID, err)
		}
	}
	return tx.Commit()
}

// ListDescriptors returns the catalog in import order.
func (s *SQLiteStore) ListDescriptors(ctx context.Context) ([]model.OperationDescriptor, error) {
	s.logger.Debug("sql", "op", "list", "table", "operation_descriptors")

	rows, err := s.db.QueryContext(ctx,
		`SELECT order_code, quantity, operation_id, operation_name, sequence_number, capable_machines, processing_times
		 FROM operation_descriptors ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.OperationDescriptor
	for rows.Next() {
		var d model.OperationDescriptor
		var machinesJSON, timesJSON string
		if err := rows.Scan(&d.OrderCode, &d.Quantity, &d.OperationID, &d.OperationName, &d.Sequence,
			&machinesJSON, &timesJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(machinesJSON), &d.Machines); err != nil {
			return nil, fmt.Errorf("unmarshal machines of %s/%s: %w", d.OrderCode, d.OperationID, err)
		}
		var secs map[string]float64
		if err := json.Unmarshal([]byte(timesJSON), &secs); err != nil {
			return nil, fmt.Errorf("unmarshal processing times of %s/%s: %w", d.OrderCode, d.OperationID, err)
		}
		d.Durations = make(map[string]time.Duration, len(secs))
		for m, v := range secs {
			d.Durations[m] = time.Duration(v * float64(time.Second))
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// CountOrders returns the number of distinct orders in the catalog.
func (s *SQLiteStore) CountOrders(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT order_code) FROM operation_descriptors`).Scan(&n)
	return n, err
}

func secondsOf(ds map[string]time.Duration) map[string]float64 {
	out := make(map[string]float64, len(ds))
	for m, d := range ds {
		out[m] = d.Seconds()
	}
	return out
}

// --- Event journal ---

// AppendEvents stores events; an event id already present is ignored.
func (s *SQLiteStore) AppendEvents(ctx context.Context, evs []model.Event) error {
	s.logger.Debug("sql", "op", "insert", "table", "events", "rows", len(evs))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, ev := range evs {
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO events (id, type, pass_id, order_code, operation_id, machine_id, at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			ev.ID, string(ev.Type), ev.PassID, ev.OrderCode, ev.OperationID, ev.MachineID,
			ev.At.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("insert event %s: %w", ev.ID, err)
		}
	}
	return tx.Commit()
}

// RecentEvents returns up to n events, newest first. n <= 0 returns all.
func (s *SQLiteStore) RecentEvents(ctx context.Context, n int) ([]model.Event, error) {
	s.logger.Debug("sql", "op", "list", "table", "events", "limit", n)
	if n <= 0 {
		n = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, pass_id, order_code, operation_id, machine_id, at
		 FROM events ORDER BY seq DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Event
	for rows.Next() {
		var ev model.Event
		var typ, at string
		if err := rows.Scan(&ev.ID, &typ, &ev.PassID, &ev.OrderCode, &ev.OperationID, &ev.MachineID, &at); err != nil {
			return nil, err
		}
		ev.Type = model.EventType(typ)
		ev.At, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Journal adapts a Store to an event publisher. Closing the journal leaves
// the store open.
type Journal struct {
	store Store
}

// NewJournal returns a publisher that appends every event to st.
func NewJournal(st Store) *Journal {
	return &Journal{store: st}
}

func (j *Journal) Publish(ctx context.Context, evs []model.Event) error {
	return j.store.AppendEvents(ctx, evs)
}

func (j *Journal) Close() error { return nil }
