package loader

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/me/opsched/pkg/model"
)

const sampleCSV = `order_code,operation_id,operation_name,quantity,capable_machines,processing_times,sequence_number
ORD0001,OP01,Cutting,10,"M1,M2",M1:100;M2:120,1
ORD0001,OP02,Welding,10,M3,M3:1D2H,2
ORD0002,OP01,Drilling,5,M1,M1:90m,1
`

var base = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

func TestReadDescriptors(t *testing.T) {
	ds, err := ReadDescriptors(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("ReadDescriptors: %v", err)
	}
	if len(ds) != 3 {
		t.Fatalf("got %d descriptors, want 3", len(ds))
	}
	d := ds[0]
	if d.OrderCode != "ORD0001" || d.Quantity != 10 || d.Sequence != 1 || d.OperationName != "Cutting" {
		t.Errorf("descriptor[0] = %+v", d)
	}
	if len(d.Machines) != 2 || d.Machines[0] != "M1" || d.Machines[1] != "M2" {
		t.Errorf("Machines = %v, want [M1 M2]", d.Machines)
	}
	if d.Durations["M2"] != 120*time.Second {
		t.Errorf("M2 = %v, want 2m0s", d.Durations["M2"])
	}
	if got := ds[1].Durations["M3"]; got != 26*time.Hour {
		t.Errorf("1D2H = %v, want 26h", got)
	}
	if got := ds[2].Durations["M1"]; got != 90*time.Minute {
		t.Errorf("90m = %v", got)
	}
}

func TestReadDescriptors_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", "empty"},
		{"missing column", "order_code,quantity\nA,1\n", "processing_times"},
		{"bad quantity", "order_code,quantity,operation_id,operation_name,sequence_number,capable_machines,processing_times\nA,x,OP01,n,1,M1,M1:5\n", "quantity"},
		{"capability without time", "order_code,quantity,operation_id,operation_name,sequence_number,capable_machines,processing_times\nA,1,OP01,n,1,\"M1,M2\",M1:5\n", "no processing time for machine M2"},
		{"empty capability", "order_code,quantity,operation_id,operation_name,sequence_number,capable_machines,processing_times\nA,1,OP01,n,1,,\n", "empty capability set"},
		{"bad duration", "order_code,quantity,operation_id,operation_name,sequence_number,capable_machines,processing_times\nA,1,OP01,n,1,M1,M1:soon\n", "invalid duration"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadDescriptors(strings.NewReader(tt.input))
			if !errors.Is(err, model.ErrValidation) {
				t.Fatalf("err = %v, want VALIDATION_ERROR", err)
			}
			apiErr := model.AsAPIError(err)
			var text strings.Builder
			text.WriteString(apiErr.Message)
			for _, d := range apiErr.Details {
				text.WriteString(" " + d.Field + " " + d.Message)
			}
			if !strings.Contains(text.String(), tt.want) {
				t.Errorf("error %q does not mention %q", text.String(), tt.want)
			}
		})
	}
}

func TestBuildOrders(t *testing.T) {
	ds, err := ReadDescriptors(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatal(err)
	}
	orders, err := BuildOrders(ds, base)
	if err != nil {
		t.Fatalf("BuildOrders: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("got %d orders, want 2", len(orders))
	}
	if orders[0].Code != "ORD0001" || len(orders[0].Operations) != 2 {
		t.Errorf("orders[0] = %s with %d ops", orders[0].Code, len(orders[0].Operations))
	}
	if !orders[1].CreatedAt.After(orders[0].CreatedAt) {
		t.Error("file order must become creation order")
	}
	for _, o := range orders {
		if o.State != model.OrderStatePending {
			t.Errorf("%s state = %q", o.Code, o.State)
		}
	}
}

func TestBuildOrders_Inconsistent(t *testing.T) {
	ds := []model.OperationDescriptor{
		{OrderCode: "A", Quantity: 1, OperationID: "OP01", Sequence: 1, Machines: []string{"M1"}, Durations: map[string]time.Duration{"M1": time.Second}},
		{OrderCode: "A", Quantity: 2, OperationID: "OP02", Sequence: 1, Machines: []string{"M1"}, Durations: map[string]time.Duration{"M1": time.Second}},
	}
	_, err := BuildOrders(ds, base)
	if !errors.Is(err, model.ErrValidation) {
		t.Fatalf("err = %v, want VALIDATION_ERROR", err)
	}
	if n := len(model.AsAPIError(err).Details); n != 2 {
		t.Errorf("got %d details, want quantity mismatch and duplicate sequence", n)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	ds, err := Generate(GenerateOptions{Orders: 5, Machines: []string{"M1", "M2", "M3", "M4"}, Seed: 7})
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := WriteDescriptors(&buf, ds); err != nil {
		t.Fatal(err)
	}
	back, err := ReadDescriptors(&buf)
	if err != nil {
		t.Fatalf("ReadDescriptors: %v", err)
	}
	if len(back) != len(ds) {
		t.Fatalf("got %d rows back, want %d", len(back), len(ds))
	}
	orders, err := BuildOrders(back, base)
	if err != nil {
		t.Fatal(err)
	}
	if flat := Descriptors(orders); len(flat) != len(ds) {
		t.Errorf("Descriptors returned %d rows, want %d", len(flat), len(ds))
	}

	// Sub-second processing times survive export and re-import.
	frac := []model.OperationDescriptor{{
		OrderCode: "ORD0001", Quantity: 1, OperationID: "OP01", Sequence: 1,
		Machines:  []string{"M1", "M2"},
		Durations: map[string]time.Duration{"M1": 500 * time.Millisecond, "M2": 1500 * time.Millisecond},
	}}
	buf.Reset()
	if err := WriteDescriptors(&buf, frac); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "M1:0.5;M2:1.5") {
		t.Errorf("fractional times written as:\n%s", buf.String())
	}
	back, err = ReadDescriptors(&buf)
	if err != nil {
		t.Fatalf("ReadDescriptors: %v", err)
	}
	if got := back[0].Durations; got["M1"] != 500*time.Millisecond || got["M2"] != 1500*time.Millisecond {
		t.Errorf("round-tripped durations = %v", got)
	}
}

func TestGenerate(t *testing.T) {
	pool := make([]string, 45)
	for i := range pool {
		pool[i] = "M" + string(rune('0'+i/10)) + string(rune('0'+i%10))
	}
	a, err := Generate(GenerateOptions{Orders: 50, Machines: pool, Seed: 42})
	if err != nil {
		t.Fatal(err)
	}
	b, _ := Generate(GenerateOptions{Orders: 50, Machines: pool, Seed: 42})
	if len(a) != len(b) {
		t.Fatal("same seed must give the same book")
	}
	for i := range a {
		if a[i].OperationName != b[i].OperationName || a[i].Durations[a[i].Machines[0]] != b[i].Durations[b[i].Machines[0]] {
			t.Fatalf("row %d differs between runs", i)
		}
	}

	orders, err := BuildOrders(a, base)
	if err != nil {
		t.Fatalf("generated book is invalid: %v", err)
	}
	if len(orders) != 50 {
		t.Errorf("got %d orders", len(orders))
	}
	for _, o := range orders {
		if n := len(o.Operations); n < 4 || n > 8 {
			t.Errorf("%s has %d operations", o.Code, n)
		}
		if o.Quantity < 10 || o.Quantity > 100 {
			t.Errorf("%s quantity %d", o.Code, o.Quantity)
		}
		for _, op := range o.Operations {
			if n := len(op.Machines); n < 2 || n > 4 {
				t.Errorf("%s/%s has %d machines", o.Code, op.ID, n)
			}
		}
	}

	if _, err := Generate(GenerateOptions{Orders: 1, Machines: []string{"M1"}}); !errors.Is(err, model.ErrValidation) {
		t.Errorf("single machine: err = %v", err)
	}
}

func TestFileLocation(t *testing.T) {
	ctx := context.Background()
	loc := FileLocation(filepath.Join(t.TempDir(), "orders.csv"))
	ds, _ := ReadDescriptors(strings.NewReader(sampleCSV))
	if err := SaveDescriptors(ctx, loc, ds); err != nil {
		t.Fatalf("SaveDescriptors: %v", err)
	}
	orders, err := LoadOrders(ctx, loc, base)
	if err != nil {
		t.Fatalf("LoadOrders: %v", err)
	}
	if len(orders) != 2 {
		t.Errorf("got %d orders", len(orders))
	}
	if _, err := LoadOrders(ctx, FileLocation(filepath.Join(t.TempDir(), "missing.csv")), base); err == nil {
		t.Error("expected error for missing file")
	}
}

type fakeS3 struct {
	objects map[string][]byte
}

func (f *fakeS3) Download(_ context.Context, w io.WriterAt, in *s3.GetObjectInput, _ ...func(*manager.Downloader)) (int64, error) {
	b, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return 0, errors.New("NoSuchKey")
	}
	n, err := w.WriteAt(b, 0)
	return int64(n), err
}

func (f *fakeS3) Upload(_ context.Context, in *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = b
	return &manager.UploadOutput{}, nil
}

func TestS3Location(t *testing.T) {
	ctx := context.Background()
	fake := &fakeS3{objects: map[string][]byte{}}
	loc := &S3Location{bucket: "plant", key: "books/orders.csv", downloader: fake, uploader: fake}
	if loc.String() != "s3://plant/books/orders.csv" {
		t.Errorf("String() = %s", loc)
	}

	if _, err := LoadDescriptors(ctx, loc); err == nil || !strings.Contains(err.Error(), "NoSuchKey") {
		t.Errorf("missing object: err = %v", err)
	}
	ds, _ := ReadDescriptors(strings.NewReader(sampleCSV))
	if err := SaveDescriptors(ctx, loc, ds); err != nil {
		t.Fatalf("SaveDescriptors: %v", err)
	}
	got, err := LoadDescriptors(ctx, loc)
	if err != nil {
		t.Fatalf("LoadDescriptors: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("got %d descriptors", len(got))
	}
}

func TestParseLocation(t *testing.T) {
	loc, err := ParseLocation(context.Background(), "data/orders.csv")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := loc.(FileLocation); !ok {
		t.Errorf("plain path gave %T", loc)
	}
	for _, bad := range []string{"s3://bucket-only", "s3:///key"} {
		if _, err := ParseLocation(context.Background(), bad); err == nil {
			t.Errorf("%s: expected error", bad)
		}
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"120", 2 * time.Minute},
		{"1.5", 1500 * time.Millisecond},
		{"0D5H", 5 * time.Hour},
		{"2d0h", 48 * time.Hour},
		{"2h30m", 150 * time.Minute},
	}
	for _, tt := range tests {
		got, err := ParseDuration(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseDuration(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
}

func TestParseDuration_Rejects(t *testing.T) {
	for _, in := range []string{"soon", "NaN", "Inf", "-Inf", "1e300", "9.3e9", "0x1p70"} {
		if d, err := ParseDuration(in); err == nil {
			t.Errorf("ParseDuration(%q) = %v, want error", in, d)
		}
	}
	if _, err := ReadDescriptors(strings.NewReader(
		"order_code,quantity,operation_id,operation_name,sequence_number,capable_machines,processing_times\nA,1,OP01,n,1,M1,M1:NaN\n")); !errors.Is(err, model.ErrValidation) {
		t.Errorf("NaN time: err = %v, want VALIDATION_ERROR", err)
	}
}

