package table

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// ColumnType is the type of a result column.
type ColumnType string

const (
	TypeString ColumnType = "string"
	TypeInt    ColumnType = "int"
	TypeDouble ColumnType = "double"
	TypeBool   ColumnType = "bool"
	// TypeJSON holds nested objects and arrays as raw JSON text.
	TypeJSON ColumnType = "json"
)

// Column describes one result column.
type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// Field is one named value of a record. A nil Value is missing.
// Values are string, int64, float64, bool, json.RawMessage or nil.
type Field struct {
	Name  string
	Value any
}

// Record is one result row in field order.
type Record []Field

// Get returns the value of the named field.
func (r Record) Get(name string) (any, bool) {
	for _, f := range r {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Result is a materialized result table.
type Result struct {
	Columns []Column
	Rows    [][]any
}

// MarshalJSON encodes the rows as an array of objects in column order.
func (r *Result) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, row := range r.Rows {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		for j, col := range r.Columns {
			if j > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(col.Name)
			if err != nil {
				return nil, err
			}
			buf.Write(key)
			buf.WriteByte(':')

			val, err := json.Marshal(row[j])
			if err != nil {
				return nil, err
			}
			buf.Write(val)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// Builder collects records and derives the column set from them.
// Columns appear in first-seen order.
type Builder struct {
	columns []Column
	index   map[string]int
	records []Record
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{index: map[string]int{}}
}

// AddColumn declares a column up front, e.g. a key column.
func (b *Builder) AddColumn(name string, typ ColumnType) {
	if _, ok := b.index[name]; ok {
		return
	}
	b.index[name] = len(b.columns)
	b.columns = append(b.columns, Column{Name: name, Type: typ})
}

// Add appends a record and widens column types as needed.
func (b *Builder) Add(rec Record) {
	for _, f := range rec {
		typ := typeOf(f.Value)
		i, ok := b.index[f.Name]
		if !ok {
			b.index[f.Name] = len(b.columns)
			b.columns = append(b.columns, Column{Name: f.Name, Type: typ})
			continue
		}
		b.columns[i].Type = widen(b.columns[i].Type, typ)
	}
	b.records = append(b.records, rec)
}

// Len returns the number of records added.
func (b *Builder) Len() int {
	return len(b.records)
}

// Result materializes the table. Values are converted to their column type.
func (b *Builder) Result() *Result {
	cols := make([]Column, len(b.columns))
	copy(cols, b.columns)
	for i := range cols {
		if cols[i].Type == "" {
			cols[i].Type = TypeString
		}
	}

	rows := make([][]any, 0, len(b.records))
	for _, rec := range b.records {
		row := make([]any, len(cols))
		for _, f := range rec {
			i := b.index[f.Name]
			row[i] = convert(f.Value, cols[i].Type)
		}
		rows = append(rows, row)
	}
	return &Result{Columns: cols, Rows: rows}
}

// typeOf returns "" for missing values so they never decide a column type.
func typeOf(v any) ColumnType {
	switch v.(type) {
	case nil:
		return ""
	case string:
		return TypeString
	case int64, int:
		return TypeInt
	case float64:
		return TypeDouble
	case bool:
		return TypeBool
	default:
		return TypeJSON
	}
}

func widen(have, seen ColumnType) ColumnType {
	switch {
	case seen == "" || have == seen:
		return have
	case have == "":
		return seen
	case (have == TypeInt && seen == TypeDouble) || (have == TypeDouble && seen == TypeInt):
		return TypeDouble
	default:
		return TypeString
	}
}

func convert(v any, typ ColumnType) any {
	if v == nil {
		return nil
	}
	switch typ {
	case TypeDouble:
		switch x := v.(type) {
		case int64:
			return float64(x)
		case int:
			return float64(x)
		}
	case TypeString:
		switch x := v.(type) {
		case string:
			return x
		case int64:
			return strconv.FormatInt(x, 10)
		case int:
			return strconv.Itoa(x)
		case float64:
			return strconv.FormatFloat(x, 'f', -1, 64)
		case bool:
			return strconv.FormatBool(x)
		case json.RawMessage:
			return string(x)
		}
	}
	return v
}
