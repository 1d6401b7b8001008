package client

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Kind is the value type of a call parameter.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindDouble
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindDouble:
		return "double"
	default:
		return "string"
	}
}

// ParseKind converts a configuration string to a Kind.
func ParseKind(s string) Kind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "int", "integer", "long":
		return KindInt
	case "double", "float", "number":
		return KindDouble
	default:
		return KindString
	}
}

// Param is a name/value pair sent with a call.
type Param struct {
	Name string
	Kind Kind

	str string
	i   int64
	f   float64
}

// String creates a string parameter.
func String(name, value string) Param {
	return Param{Name: name, Kind: KindString, str: value}
}

// Int creates an integer parameter.
func Int(name string, value int64) Param {
	return Param{Name: name, Kind: KindInt, i: value}
}

// Double creates a floating point parameter.
func Double(name string, value float64) Param {
	return Param{Name: name, Kind: KindDouble, f: value}
}

// ParseParam creates a parameter of kind from its text form. Numbers are
// parsed without locale; surrounding space is ignored for them only.
func ParseParam(name string, kind Kind, value string) (Param, error) {
	switch kind {
	case KindInt:
		i, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return Param{}, fmt.Errorf("parameter %q: %w", name, err)
		}
		return Int(name, i), nil
	case KindDouble:
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return Param{}, fmt.Errorf("parameter %q: %w", name, err)
		}
		return Double(name, f), nil
	default:
		return String(name, value), nil
	}
}

// Value formats the parameter value independent of any locale:
// integers in base 10, doubles with '.' as decimal separator and no exponent.
func (p Param) Value() string {
	switch p.Kind {
	case KindInt:
		return strconv.FormatInt(p.i, 10)
	case KindDouble:
		return strconv.FormatFloat(p.f, 'f', -1, 64)
	default:
		return p.str
	}
}

// Params is an ordered parameter list. Names may repeat.
type Params []Param

// With returns a copy of ps with extra appended.
func (ps Params) With(extra ...Param) Params {
	out := make(Params, 0, len(ps)+len(extra))
	out = append(out, ps...)
	return append(out, extra...)
}

// Encode returns the URL-encoded form of ps in list order. url.Values is not
// used because it sorts keys.
func (ps Params) Encode() string {
	var b strings.Builder
	for i, p := range ps {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.Name))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.Value()))
	}
	return b.String()
}
