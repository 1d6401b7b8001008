package node

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Sternrassler/ws-nodes/pkg/client"
	"github.com/Sternrassler/ws-nodes/pkg/table"
)

// Binding maps an input column, or a constant, to one call parameter.
type Binding struct {
	// Param is the parameter name sent to the service.
	Param string
	// Column is the input column. Empty binds the constant Value.
	Column string
	Kind   client.Kind
	Value  string
}

// boundParam is a Binding with its column resolved against an input.
type boundParam struct {
	Binding
	col   int
	value client.Param
}

// bind resolves columns and parses constants. It fails before any row is read.
func bind(bindings []Binding, in table.Input) ([]boundParam, error) {
	out := make([]boundParam, 0, len(bindings))
	for _, b := range bindings {
		if strings.TrimSpace(b.Param) == "" {
			return nil, configError(errors.New("binding without parameter name"))
		}

		bp := boundParam{Binding: b, col: -1}
		if b.Column == "" {
			v, err := client.ParseParam(b.Param, b.Kind, b.Value)
			if err != nil {
				return nil, configError(err)
			}
			bp.value = v
		} else {
			bp.col = in.ColumnIndex(b.Column)
			if bp.col < 0 {
				return nil, configError(fmt.Errorf("input column %q not found for parameter %q", b.Column, b.Param))
			}
		}
		out = append(out, bp)
	}
	return out, nil
}

// params builds the call parameters of one row in binding order.
// It returns table.ErrMissingValue when a bound cell is missing.
func params(bound []boundParam, row table.Row) (client.Params, error) {
	ps := make(client.Params, 0, len(bound))
	for _, b := range bound {
		if b.col < 0 {
			ps = append(ps, b.value)
			continue
		}
		if row.IsMissing(b.col) {
			return nil, fmt.Errorf("column %q: %w", b.Column, table.ErrMissingValue)
		}

		switch b.Kind {
		case client.KindInt:
			v, err := row.Int(b.col)
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", b.Column, err)
			}
			ps = append(ps, client.Int(b.Param, v))
		case client.KindDouble:
			v, err := row.Double(b.col)
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", b.Column, err)
			}
			ps = append(ps, client.Double(b.Param, v))
		default:
			v, err := row.String(b.col)
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", b.Column, err)
			}
			ps = append(ps, client.String(b.Param, v))
		}
	}
	return ps, nil
}

func configError(err error) error {
	return &client.Error{Class: client.ErrorClassConfig, Message: "node settings", Err: err}
}
