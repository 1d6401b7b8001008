package pagination

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/Sternrassler/ws-nodes/pkg/table"
)

// ValueField names the single field of a row decoded from a scalar element.
const ValueField = "value"

var errNoCount = errors.New("response carries no record count")

// decodeRows returns the rows of a page response in received order.
// An array yields one row per element, an object yields one row, and a
// missing or null value yields none.
func decodeRows(body []byte, rowsPath string) ([]table.Record, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("page response is not valid JSON")
	}

	res := gjson.ParseBytes(body)
	if rowsPath != "" {
		res = res.Get(rowsPath)
	}

	switch {
	case !res.Exists() || res.Type == gjson.Null:
		return nil, nil
	case res.IsArray():
		elems := res.Array()
		rows := make([]table.Record, 0, len(elems))
		for _, elem := range elems {
			rows = append(rows, decodeRecord(elem))
		}
		return rows, nil
	default:
		return []table.Record{decodeRecord(res)}, nil
	}
}

// countElements returns the number of row elements without decoding them.
func countElements(body []byte, rowsPath string) int {
	res := gjson.ParseBytes(body)
	if rowsPath != "" {
		res = res.Get(rowsPath)
	}
	switch {
	case !res.Exists() || res.Type == gjson.Null:
		return 0
	case res.IsArray():
		n := 0
		res.ForEach(func(_, _ gjson.Result) bool {
			n++
			return true
		})
		return n
	default:
		return 1
	}
}

func decodeRecord(res gjson.Result) table.Record {
	if !res.IsObject() {
		return table.Record{{Name: ValueField, Value: decodeValue(res)}}
	}

	var rec table.Record
	res.ForEach(func(key, value gjson.Result) bool {
		rec = append(rec, table.Field{Name: key.String(), Value: decodeValue(value)})
		return true
	})
	return rec
}

func decodeValue(res gjson.Result) any {
	switch res.Type {
	case gjson.Null:
		return nil
	case gjson.True:
		return true
	case gjson.False:
		return false
	case gjson.String:
		return res.String()
	case gjson.Number:
		if i, err := strconv.ParseInt(res.Raw, 10, 64); err == nil {
			return i
		}
		return res.Float()
	default:
		return json.RawMessage(res.Raw)
	}
}

// parseCount reads the total record count from a count response.
func parseCount(body []byte, field string) (int, error) {
	if !gjson.ValidBytes(body) {
		return 0, fmt.Errorf("count response is not valid JSON")
	}

	root := gjson.ParseBytes(body)
	var res gjson.Result
	switch {
	case field != "":
		res = root.Get(field)
	case root.Type == gjson.Number || root.Type == gjson.String:
		res = root
	default:
		res = root.Get("count")
		if !res.Exists() {
			res = root.Get("total")
		}
	}

	return countValue(res)
}

func countValue(res gjson.Result) (int, error) {
	if !res.Exists() {
		return 0, errNoCount
	}

	var n float64
	switch res.Type {
	case gjson.Number:
		n = res.Num
	case gjson.String:
		parsed, err := strconv.ParseInt(res.Str, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("record count %q: %w", res.Str, err)
		}
		n = float64(parsed)
	default:
		return 0, fmt.Errorf("record count has type %s", res.Type)
	}

	if n < 0 || n != math.Trunc(n) || n > math.MaxInt32 {
		return 0, fmt.Errorf("record count %v is not a valid count", n)
	}
	return int(n), nil
}

// pageTotal returns the total reported inside a page response, or -1.
func pageTotal(body []byte, field string) int {
	if field == "" {
		return -1
	}
	res := gjson.GetBytes(body, field)
	n, err := countValue(res)
	if err != nil {
		return -1
	}
	return n
}
