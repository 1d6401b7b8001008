// Package table models the row data a node consumes and the result table it
// produces.
//
// Inbound rows expose only what the REST layer needs: column lookup by name,
// typed cell access and a missing-value marker. Outbound results derive their
// columns from the shape of the service responses.
package table

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrMissingValue is returned when reading a missing cell.
var ErrMissingValue = errors.New("missing value")

// Input is a read-only table of rows.
type Input interface {
	// ColumnIndex returns the index of the named column, or -1.
	ColumnIndex(name string) int
	NumRows() int
	Row(i int) Row
}

// Row gives typed access to the cells of one input row.
type Row interface {
	IsMissing(col int) bool
	String(col int) (string, error)
	Int(col int) (int64, error)
	Double(col int) (float64, error)
}

// Memory is an in-memory Input. A nil cell is a missing value.
type Memory struct {
	Columns []string
	Rows    [][]any
}

// ColumnIndex implements Input.
func (m *Memory) ColumnIndex(name string) int {
	for i, c := range m.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// NumRows implements Input.
func (m *Memory) NumRows() int {
	return len(m.Rows)
}

// Row implements Input.
func (m *Memory) Row(i int) Row {
	return memoryRow(m.Rows[i])
}

// DecodeJSON reads an array of JSON objects into a Memory table. Columns are
// collected in first-seen order; absent keys and nulls become missing cells.
func DecodeJSON(data []byte) (*Memory, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var objects []orderedObject
	if err := dec.Decode(&objects); err != nil {
		return nil, fmt.Errorf("decode input rows: %w", err)
	}

	m := &Memory{}
	index := map[string]int{}
	for _, obj := range objects {
		for _, kv := range obj {
			if _, ok := index[kv.key]; !ok {
				index[kv.key] = len(m.Columns)
				m.Columns = append(m.Columns, kv.key)
			}
		}
	}

	for _, obj := range objects {
		row := make([]any, len(m.Columns))
		for _, kv := range obj {
			row[index[kv.key]] = kv.value
		}
		m.Rows = append(m.Rows, row)
	}
	return m, nil
}

type keyValue struct {
	key   string
	value any
}

// orderedObject decodes a JSON object keeping key order.
type orderedObject []keyValue

func (o *orderedObject) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected object, got %v", tok)
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", tok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return err
		}
		*o = append(*o, keyValue{key: key, value: value})
	}
	_, err = dec.Token()
	return err
}

type memoryRow []any

func (r memoryRow) cell(col int) (any, error) {
	if col < 0 || col >= len(r) {
		return nil, fmt.Errorf("column index %d out of range", col)
	}
	if r[col] == nil {
		return nil, ErrMissingValue
	}
	return r[col], nil
}

func (r memoryRow) IsMissing(col int) bool {
	return col < 0 || col >= len(r) || r[col] == nil
}

func (r memoryRow) String(col int) (string, error) {
	v, err := r.cell(col)
	if err != nil {
		return "", err
	}
	switch x := v.(type) {
	case string:
		return x, nil
	case json.Number:
		return x.String(), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case bool:
		return strconv.FormatBool(x), nil
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}

func (r memoryRow) Int(col int) (int64, error) {
	v, err := r.cell(col)
	if err != nil {
		return 0, err
	}
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int64:
		return x, nil
	case float64:
		if x != math.Trunc(x) {
			return 0, fmt.Errorf("value %v is not an integer", x)
		}
		return int64(x), nil
	case json.Number:
		return x.Int64()
	case string:
		return strconv.ParseInt(strings.TrimSpace(x), 10, 64)
	default:
		return 0, fmt.Errorf("cannot read %T as integer", v)
	}
}

func (r memoryRow) Double(col int) (float64, error) {
	v, err := r.cell(col)
	if err != nil {
		return 0, err
	}
	switch x := v.(type) {
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case json.Number:
		return x.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(x), 64)
	default:
		return 0, fmt.Errorf("cannot read %T as double", v)
	}
}
