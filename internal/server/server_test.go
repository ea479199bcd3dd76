package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/me/opsched/internal/config"
	"github.com/me/opsched/internal/engine"
	"github.com/me/opsched/internal/events"
	"github.com/me/opsched/internal/loader"
	"github.com/me/opsched/pkg/model"
)

var t0 = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

const fixtureCSV = `order_code,quantity,operation_id,operation_name,sequence_number,capable_machines,processing_times
A,10,O1,Cutting,1,"M1,M2",M1:100;M2:120
B,5,O1,Drilling,1,M1,M1:80
`

// memCatalog is an in-memory Catalog that also feeds the service reloader.
type memCatalog struct {
	mu sync.Mutex
	ds []model.OperationDescriptor
}

func (c *memCatalog) ReplaceDescriptors(_ context.Context, ds []model.OperationDescriptor) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ds = ds
	return nil
}

func (c *memCatalog) reload(context.Context) ([]*model.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return loader.BuildOrders(c.ds, t0)
}

type fixtureServer struct {
	*Server
	svc     *engine.Service
	rec     *events.Recorder
	catalog *memCatalog
}

func testServer(t *testing.T) *fixtureServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))

	ds, err := loader.ReadDescriptors(strings.NewReader(fixtureCSV))
	if err != nil {
		t.Fatal(err)
	}
	cat := &memCatalog{ds: ds}
	rec := events.NewRecorder(64)
	svc := engine.New(engine.Config{Machines: []string{"M1", "M2", "M3"}}, logger,
		engine.WithClock(func() time.Time { return t0 }),
		engine.WithPublisher(rec),
		engine.WithReloader(cat.reload),
	)
	if _, err := svc.Reset(context.Background()); err != nil {
		t.Fatal(err)
	}
	srv := New(config.DefaultServerConfig(), svc, nil, logger,
		WithCatalog(cat), WithEventLog(rec), WithSSEInterval(5*time.Millisecond))
	return &fixtureServer{Server: srv, svc: svc, rec: rec, catalog: cat}
}

// envelope is used to decode the standard response envelope.
type envelope struct {
	Status     string            `json:"status"`
	RequestID  string            `json:"request_id"`
	Timestamp  string            `json:"timestamp"`
	Data       json.RawMessage   `json:"data"`
	Pagination *model.Pagination `json:"pagination"`
	Error      *model.APIError   `json:"error"`
}

func do(t *testing.T, srv http.Handler, method, path, body string, wantStatus int) envelope {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != wantStatus {
		t.Fatalf("%s %s: status=%d, want %d, body=%s", method, path, w.Code, wantStatus, w.Body.String())
	}
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: invalid JSON: %v", method, path, err)
	}
	return env
}

func doGet(t *testing.T, srv http.Handler, path string) envelope {
	t.Helper()
	return do(t, srv, "GET", path, "", http.StatusOK)
}

func TestDiscovery(t *testing.T) {
	srv := testServer(t)
	env := doGet(t, srv, "/api/v1/")
	if env.Status != "ok" {
		t.Errorf("status = %q, want ok", env.Status)
	}
	if env.RequestID == "" {
		t.Error("request_id is empty")
	}

	var data struct {
		Name      string `json:"name"`
		Endpoints []struct {
			Path string `json:"path"`
		} `json:"endpoints"`
	}
	json.Unmarshal(env.Data, &data)
	if data.Name != "opsched API" {
		t.Errorf("name = %q, want opsched API", data.Name)
	}
	if len(data.Endpoints) < 15 {
		t.Errorf("endpoints count = %d, want >= 15", len(data.Endpoints))
	}
}

func TestHealth(t *testing.T) {
	srv := testServer(t)
	env := doGet(t, srv, "/api/v1/health")

	var data healthResponse
	json.Unmarshal(env.Data, &data)
	if data.Status != "healthy" || data.Version != "0.1.0" {
		t.Errorf("health = %+v", data)
	}
	if data.Machines != 3 || data.Orders != 2 || data.Catalog != "sqlite" || data.Scheduler != "manual" {
		t.Errorf("health = %+v", data)
	}
}

func TestListOrders(t *testing.T) {
	srv := testServer(t)

	env := doGet(t, srv, "/api/v1/orders?limit=1")
	var orders []model.OrderView
	json.Unmarshal(env.Data, &orders)
	if len(orders) != 1 || orders[0].Code != "A" {
		t.Fatalf("orders = %+v", orders)
	}
	if env.Pagination == nil || env.Pagination.Total != 2 || !env.Pagination.HasMore {
		t.Errorf("pagination = %+v", env.Pagination)
	}

	env = doGet(t, srv, "/api/v1/orders?state=COMPLETED")
	json.Unmarshal(env.Data, &orders)
	if len(orders) != 0 {
		t.Errorf("completed orders = %d, want 0", len(orders))
	}

	for _, q := range []string{"state=DONE", "forced=maybe", "limit=ten"} {
		env = do(t, srv, "GET", "/api/v1/orders?"+q, "", http.StatusBadRequest)
		if env.Error == nil || env.Error.Code != model.ErrCodeValidation {
			t.Errorf("%s: error = %+v", q, env.Error)
		}
	}
}

func TestGetOrder_NotFound(t *testing.T) {
	srv := testServer(t)
	env := do(t, srv, "GET", "/api/v1/orders/ZZZ", "", http.StatusNotFound)
	if env.Status != "error" || env.Error.Code != model.ErrCodeNotFound {
		t.Errorf("env = %+v", env)
	}
}

func TestStartOperation(t *testing.T) {
	srv := testServer(t)
	path := "/api/v1/orders/A/operations/O1/start"

	env := do(t, srv, "POST", path, `{"machine_id":"M3"}`, http.StatusUnprocessableEntity)
	if env.Error.Code != model.ErrCodeInvalidCapability {
		t.Errorf("code = %s", env.Error.Code)
	}
	do(t, srv, "POST", path, `{}`, http.StatusBadRequest)
	do(t, srv, "POST", path, `{not json`, http.StatusBadRequest)

	env = do(t, srv, "POST", path, `{"machine_id":"M1"}`, http.StatusOK)
	var res struct {
		Action string           `json:"action"`
		Order  *model.OrderView `json:"order"`
	}
	json.Unmarshal(env.Data, &res)
	if res.Action != "started" || res.Order.State != model.OrderStateInProgress {
		t.Errorf("start result = %s, order %s", res.Action, res.Order.State)
	}

	env = do(t, srv, "POST", path, `{"machine_id":"M1"}`, http.StatusConflict)
	if env.Error.Code != model.ErrCodeInvalidState {
		t.Errorf("restart code = %s", env.Error.Code)
	}
}

func TestForcePreemptsRunningWork(t *testing.T) {
	srv := testServer(t)
	do(t, srv, "POST", "/api/v1/orders/A/operations/O1/start", `{"machine_id":"M1"}`, http.StatusOK)

	env := do(t, srv, "POST", "/api/v1/orders/B/force", "", http.StatusOK)
	var res model.ForceResponse
	json.Unmarshal(env.Data, &res)
	if !res.Forced || res.Pass == nil {
		t.Fatalf("force = %+v", res)
	}
	if len(res.Pass.Preempted) != 1 || res.Pass.Preempted[0] != "A" {
		t.Errorf("preempted = %v, want [A]", res.Pass.Preempted)
	}

	env = do(t, srv, "POST", "/api/v1/orders/B/force", "", http.StatusConflict)
	if env.Error.Code != model.ErrCodeInvalidState {
		t.Errorf("second force code = %s", env.Error.Code)
	}

	env = doGet(t, srv, "/api/v1/machines/M1")
	var m model.MachineStatus
	json.Unmarshal(env.Data, &m)
	if m.State != model.MachineStateBusy || m.Current == nil || m.Current.OrderCode != "B" {
		t.Errorf("M1 = %+v", m)
	}

	env = doGet(t, srv, "/api/v1/events?limit=0")
	var evs []model.Event
	json.Unmarshal(env.Data, &evs)
	seen := map[model.EventType]bool{}
	for _, e := range evs {
		seen[e.Type] = true
	}
	for _, want := range []model.EventType{model.EventOrderForced, model.EventOperationHalted, model.EventOrderPreempted, model.EventOperationStarted} {
		if !seen[want] {
			t.Errorf("missing event %s in %v", want, evs)
		}
	}

	do(t, srv, "POST", "/api/v1/orders/A/unforce", "", http.StatusConflict)
	do(t, srv, "POST", "/api/v1/orders/B/unforce", "", http.StatusOK)
}

func TestHaltCompleteResume(t *testing.T) {
	srv := testServer(t)
	base := "/api/v1/orders/A/operations/O1/"

	env := do(t, srv, "POST", base+"halt", "", http.StatusOK)
	var res operationResponse
	json.Unmarshal(env.Data, &res)
	if res.Action != "unchanged" || res.Halt != nil {
		t.Errorf("halt of pending op = %+v", res)
	}

	do(t, srv, "POST", base+"resume", "", http.StatusConflict)
	do(t, srv, "POST", base+"complete", "", http.StatusConflict)

	do(t, srv, "POST", base+"start", `{"machine_id":"M2"}`, http.StatusOK)
	env = do(t, srv, "POST", base+"halt", "", http.StatusOK)
	json.Unmarshal(env.Data, &res)
	if res.Action != "halted" || res.Halt == nil || res.Halt.Machine != "M2" {
		t.Errorf("halt = %+v", res)
	}
	do(t, srv, "POST", base+"resume", "", http.StatusOK)

	env = do(t, srv, "POST", base+"complete", `{"completed_quantity":10}`, http.StatusOK)
	json.Unmarshal(env.Data, &res)
	if res.Order.State != model.OrderStateCompleted || res.Order.Progress != 100 {
		t.Errorf("order after complete = %s %.1f", res.Order.State, res.Order.Progress)
	}
}

func TestEstimate(t *testing.T) {
	srv := testServer(t)

	env := do(t, srv, "POST", "/api/v1/orders/A/estimate", "", http.StatusOK)
	var est estimateResponse
	json.Unmarshal(env.Data, &est)
	if est.Total != 100 {
		t.Errorf("fastest estimate = %d, want 100", est.Total)
	}

	env = do(t, srv, "POST", "/api/v1/orders/A/estimate", `{"selection":{"O1":"M2"}}`, http.StatusOK)
	json.Unmarshal(env.Data, &est)
	if est.Total != 120 {
		t.Errorf("M2 estimate = %d, want 120", est.Total)
	}

	do(t, srv, "POST", "/api/v1/orders/A/estimate", `{"selection":{"O1":"M3"}}`, http.StatusUnprocessableEntity)
	do(t, srv, "POST", "/api/v1/orders/A/estimate", `{"selection":{"O9":"M1"}}`, http.StatusNotFound)
}

func TestMachinesAndSchedule(t *testing.T) {
	srv := testServer(t)

	env := doGet(t, srv, "/api/v1/machines")
	var ms []model.MachineStatus
	json.Unmarshal(env.Data, &ms)
	if len(ms) != 3 {
		t.Fatalf("machines = %d, want every pool machine", len(ms))
	}
	for _, m := range ms {
		if m.State != model.MachineStateIdle {
			t.Errorf("%s = %s before any pass", m.MachineID, m.State)
		}
	}
	do(t, srv, "GET", "/api/v1/machines/M9", "", http.StatusNotFound)

	env = doGet(t, srv, "/api/v1/schedule")
	if string(env.Data) != "null" {
		t.Errorf("schedule before first pass = %s", env.Data)
	}

	env = do(t, srv, "POST", "/api/v1/schedule/pass", "", http.StatusOK)
	var pass model.PassResult
	json.Unmarshal(env.Data, &pass)
	// B waits behind A on M1, its only machine.
	if pass.ID == "" || pass.Started != 1 || len(pass.Plan["M1"]) != 2 {
		t.Errorf("pass = %+v", pass)
	}

	env = doGet(t, srv, "/api/v1/schedule")
	var last model.PassResult
	json.Unmarshal(env.Data, &last)
	if last.ID != pass.ID {
		t.Errorf("last pass = %s, want %s", last.ID, pass.ID)
	}

	env = doGet(t, srv, "/api/v1/summary")
	var sum model.Summary
	json.Unmarshal(env.Data, &sum)
	if sum.TotalOrders != 2 || sum.BusyMachines != 1 || sum.IdleMachines != 2 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestImportAndExport(t *testing.T) {
	srv := testServer(t)

	bad := "order_code,quantity,operation_id,operation_name,sequence_number,capable_machines,processing_times\nC,1,O1,x,1,,\n"
	env := do(t, srv, "POST", "/api/v1/import", bad, http.StatusBadRequest)
	if env.Error.Code != model.ErrCodeValidation || len(env.Error.Details) == 0 {
		t.Errorf("bad import error = %+v", env.Error)
	}
	if len(srv.catalog.ds) != 2 {
		t.Errorf("malformed import touched the catalog")
	}

	good := "order_code,quantity,operation_id,operation_name,sequence_number,capable_machines,processing_times\n" +
		"C,3,O1,Milling,1,M3,M3:60\nC,3,O2,Testing,2,M2,M2:30\n"
	env = do(t, srv, "POST", "/api/v1/import", good, http.StatusOK)
	var res resetResponse
	json.Unmarshal(env.Data, &res)
	if res.Orders != 1 || res.Descriptors != 2 {
		t.Errorf("import = %+v", res)
	}
	do(t, srv, "GET", "/api/v1/orders/A", "", http.StatusNotFound)
	doGet(t, srv, "/api/v1/orders/C")

	req := httptest.NewRequest("GET", "/api/v1/export", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "text/csv" {
		t.Fatalf("export: status=%d type=%s", w.Code, w.Header().Get("Content-Type"))
	}
	ds, err := loader.ReadDescriptors(w.Body)
	if err != nil {
		t.Fatalf("export is not a readable descriptor file: %v", err)
	}
	if len(ds) != 2 || ds[1].OperationName != "Testing" {
		t.Errorf("exported = %+v", ds)
	}

	env = do(t, srv, "POST", "/api/v1/reset", "", http.StatusOK)
	json.Unmarshal(env.Data, &res)
	if res.Orders != 1 {
		t.Errorf("reset reloaded %d orders, want 1", res.Orders)
	}
}

func TestSSEMachine(t *testing.T) {
	srv := testServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest("GET", "/api/v1/sse/machines/M1", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	go func() {
		time.Sleep(15 * time.Millisecond)
		srv.svc.StartOperation(context.Background(), "A", "O1", "M1")
	}()
	srv.ServeHTTP(w, req)

	body := w.Body.String()
	if w.Header().Get("Content-Type") != "text/event-stream" {
		t.Errorf("content type = %s", w.Header().Get("Content-Type"))
	}
	if !strings.Contains(body, "event: init") {
		t.Errorf("missing init event: %s", body)
	}
	if !strings.Contains(body, "event: update") || !strings.Contains(body, `"order_code":"A"`) {
		t.Errorf("missing update after start: %s", body)
	}

	do(t, srv, "GET", "/api/v1/sse/machines/M9", "", http.StatusNotFound)
}

func TestResponseEnvelope_XRequestIDHeader(t *testing.T) {
	srv := testServer(t)

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	if !strings.HasPrefix(w.Header().Get("X-Request-ID"), "req_") {
		t.Errorf("X-Request-ID = %q", w.Header().Get("X-Request-ID"))
	}

	req = httptest.NewRequest("GET", "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "upstream-7")
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	var env envelope
	json.Unmarshal(w.Body.Bytes(), &env)
	if env.RequestID != "upstream-7" {
		t.Errorf("request_id = %q, want the caller's id", env.RequestID)
	}
}
