// Package loader turns operation descriptor files into orders.
package loader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/me/opsched/pkg/model"
)

// Columns is the descriptor file header, in the order WriteDescriptors emits it.
var Columns = []string{
	"order_code",
	"quantity",
	"operation_id",
	"operation_name",
	"sequence_number",
	"capable_machines",
	"processing_times",
}

// ReadDescriptors parses a descriptor CSV. Columns are located by header name
// so their order in the file does not matter. Every malformed row is reported
// in a single VALIDATION_ERROR.
func ReadDescriptors(r io.Reader) ([]model.OperationDescriptor, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, model.NewValidationError("descriptor file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	var missing []model.FieldError
	for _, c := range Columns {
		if _, ok := idx[c]; !ok {
			missing = append(missing, model.FieldError{Field: c, Path: "header", Message: "missing column"})
		}
	}
	if len(missing) > 0 {
		return nil, model.NewValidationError("descriptor header is incomplete", missing...)
	}

	var out []model.OperationDescriptor
	var problems []model.FieldError
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}
		get := func(col string) string { return strings.TrimSpace(rec[idx[col]]) }
		row := fmt.Sprintf("line %d", line)

		d := model.OperationDescriptor{
			OrderCode:     get("order_code"),
			OperationID:   get("operation_id"),
			OperationName: get("operation_name"),
		}
		if d.Quantity, err = strconv.Atoi(get("quantity")); err != nil {
			problems = append(problems, model.FieldError{Field: "quantity", Path: row, Message: "not an integer"})
		}
		if d.Sequence, err = strconv.Atoi(get("sequence_number")); err != nil {
			problems = append(problems, model.FieldError{Field: "sequence_number", Path: row, Message: "not an integer"})
		}
		for _, m := range strings.Split(get("capable_machines"), ",") {
			if m = strings.TrimSpace(m); m != "" {
				d.Machines = append(d.Machines, m)
			}
		}
		if d.Durations, err = ParseProcessingTimes(get("processing_times")); err != nil {
			problems = append(problems, model.FieldError{Field: "processing_times", Path: row, Message: err.Error()})
			continue
		}
		for _, fe := range d.Validate() {
			fe.Path = row + " " + fe.Path
			problems = append(problems, fe)
		}
		out = append(out, d)
	}
	if len(problems) > 0 {
		return nil, model.NewValidationError("malformed descriptor file", problems...)
	}
	return out, nil
}

// WriteDescriptors writes descriptors as CSV with the standard header.
// Processing times are written in seconds, fractional where needed.
func WriteDescriptors(w io.Writer, ds []model.OperationDescriptor) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, d := range ds {
		times := make([]string, 0, len(d.Machines))
		for _, m := range d.Machines {
			times = append(times, m+":"+strconv.FormatFloat(d.Durations[m].Seconds(), 'f', -1, 64))
		}
		rec := []string{
			d.OrderCode,
			strconv.Itoa(d.Quantity),
			d.OperationID,
			d.OperationName,
			strconv.Itoa(d.Sequence),
			strings.Join(d.Machines, ","),
			strings.Join(times, ";"),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ParseProcessingTimes parses "M1:120;M2:1D4H" into per-machine durations.
func ParseProcessingTimes(s string) (map[string]time.Duration, error) {
	out := make(map[string]time.Duration)
	for _, pair := range strings.Split(s, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		m, v, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("%q is not machine:time", pair)
		}
		d, err := ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("machine %s: %w", m, err)
		}
		out[strings.TrimSpace(m)] = d
	}
	return out, nil
}

// maxSeconds is the largest number of seconds a time.Duration holds.
const maxSeconds = float64(math.MaxInt64 / int64(time.Second))

var daysHours = regexp.MustCompile(`^(\d+)D(\d+)H$`)

// ParseDuration accepts plain seconds ("90", "1.5"), day/hour notation
// ("1D4H") and Go duration strings ("2h30m").
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if m := daysHours.FindStringSubmatch(strings.ToUpper(s)); m != nil {
		days, _ := strconv.Atoi(m[1])
		hours, _ := strconv.Atoi(m[2])
		return time.Duration(days*24+hours) * time.Hour, nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > maxSeconds {
			return 0, fmt.Errorf("invalid duration %q: out of range", s)
		}
		return time.Duration(f * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}
