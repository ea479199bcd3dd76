package store

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/me/opsched/internal/events"
	"github.com/me/opsched/pkg/model"
)

var _ events.Publisher = (*Journal)(nil)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLiteStore(":memory:", testLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func sampleDescriptors() []model.OperationDescriptor {
	return []model.OperationDescriptor{
		{
			OrderCode: "ORD0002", Quantity: 20, OperationID: "OP01", OperationName: "Cutting", Sequence: 1,
			Machines:  []string{"M2", "M1"},
			Durations: map[string]time.Duration{"M1": 90 * time.Second, "M2": 1500 * time.Millisecond},
		},
		{
			OrderCode: "ORD0002", Quantity: 20, OperationID: "OP02", OperationName: "Welding", Sequence: 2,
			Machines:  []string{"M3"},
			Durations: map[string]time.Duration{"M3": 26 * time.Hour},
		},
		{
			OrderCode: "ORD0001", Quantity: 5, OperationID: "OP01", OperationName: "Drilling", Sequence: 1,
			Machines:  []string{"M1"},
			Durations: map[string]time.Duration{"M1": time.Hour},
		},
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	st := testStore(t)
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestReplaceAndListDescriptors(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	if err := st.ReplaceDescriptors(ctx, sampleDescriptors()); err != nil {
		t.Fatalf("ReplaceDescriptors: %v", err)
	}
	got, err := st.ListDescriptors(ctx)
	if err != nil {
		t.Fatalf("ListDescriptors: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d rows, want 3", len(got))
	}
	if got[0].OrderCode != "ORD0002" || got[2].OrderCode != "ORD0001" {
		t.Errorf("import order not kept: %s, %s", got[0].OrderCode, got[2].OrderCode)
	}
	d := got[0]
	if d.OperationName != "Cutting" || d.Quantity != 20 || d.Sequence != 1 {
		t.Errorf("row 0 = %+v", d)
	}
	if len(d.Machines) != 2 || d.Machines[0] != "M2" {
		t.Errorf("Machines = %v", d.Machines)
	}
	if d.Durations["M2"] != 1500*time.Millisecond || d.Durations["M1"] != 90*time.Second {
		t.Errorf("Durations = %v", d.Durations)
	}

	n, err := st.CountOrders(ctx)
	if err != nil || n != 2 {
		t.Errorf("CountOrders = %d, %v; want 2", n, err)
	}

	if err := st.ReplaceDescriptors(ctx, sampleDescriptors()[2:]); err != nil {
		t.Fatalf("second replace: %v", err)
	}
	got, _ = st.ListDescriptors(ctx)
	if len(got) != 1 || got[0].OrderCode != "ORD0001" {
		t.Errorf("catalog after replace = %+v", got)
	}
}

func TestListDescriptors_Empty(t *testing.T) {
	st := testStore(t)
	got, err := st.ListDescriptors(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("got %d rows from empty catalog", len(got))
	}
}

func TestReplaceDescriptors_DuplicateRollsBack(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	if err := st.ReplaceDescriptors(ctx, sampleDescriptors()); err != nil {
		t.Fatal(err)
	}
	dup := append(sampleDescriptors(), sampleDescriptors()[0])
	if err := st.ReplaceDescriptors(ctx, dup); err == nil {
		t.Fatal("expected primary key violation")
	}
	got, _ := st.ListDescriptors(ctx)
	if len(got) != 3 {
		t.Errorf("failed replace changed the catalog: %d rows", len(got))
	}
}

func TestReplaceDescriptors_InsertError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	defer db.Close()
	st := newSQLiteStore(db, testLogger())

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM operation_descriptors").WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec("INSERT INTO operation_descriptors").WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	err = st.ReplaceDescriptors(context.Background(), sampleDescriptors())
	if err == nil {
		t.Fatal("expected error")
	}
	if want := "insert ORD0002/OP01: disk I/O error"; err.Error() != want {
		t.Errorf("err = %q, want %q", err, want)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListDescriptors_CorruptRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	defer db.Close()
	st := newSQLiteStore(db, testLogger())

	rows := sqlmock.NewRows([]string{"order_code", "quantity", "operation_id", "operation_name", "sequence_number", "capable_machines", "processing_times"}).
		AddRow("ORD0001", 5, "OP01", "Drilling", 1, `["M1"]`, `not json`)
	mock.ExpectQuery("SELECT .+ FROM operation_descriptors").WillReturnRows(rows)

	if _, err := st.ListDescriptors(context.Background()); err == nil {
		t.Fatal("expected unmarshal error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestEventJournal(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	at := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	j := NewJournal(st)

	first := []model.Event{
		{ID: "e1", Type: model.EventOperationStarted, PassID: "p1", OrderCode: "A", OperationID: "OP01", MachineID: "M1", At: at},
		{ID: "e2", Type: model.EventOrderForced, OrderCode: "B", At: at.Add(time.Second)},
	}
	if err := j.Publish(ctx, first); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := j.Publish(ctx, []model.Event{first[0], {ID: "e3", Type: model.EventOrderCompleted, OrderCode: "A", At: at.Add(time.Minute)}}); err != nil {
		t.Fatalf("Publish with replayed id: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatal(err)
	}

	all, err := st.RecentEvents(ctx, 0)
	if err != nil {
		t.Fatalf("RecentEvents: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d events, want 3", len(all))
	}
	if all[0].ID != "e3" || all[2].ID != "e1" {
		t.Errorf("order = %s..%s, want newest first", all[0].ID, all[2].ID)
	}
	if !all[2].At.Equal(at) || all[2].MachineID != "M1" || all[2].Type != model.EventOperationStarted {
		t.Errorf("e1 = %+v", all[2])
	}

	two, _ := st.RecentEvents(ctx, 2)
	if len(two) != 2 || two[1].ID != "e2" {
		t.Errorf("RecentEvents(2) = %+v", two)
	}
}
