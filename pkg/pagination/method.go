package pagination

import (
	"github.com/Sternrassler/ws-nodes/pkg/client"
	"github.com/Sternrassler/ws-nodes/pkg/table"
)

const (
	// PageSizeAll requests the complete result in one call.
	PageSizeAll = -1

	// DefaultPageSize is used when Method.PageSize is zero.
	DefaultPageSize = 100

	// DefaultOffsetParam and DefaultSizeParam name the paging parameters.
	DefaultOffsetParam = "offset"
	DefaultSizeParam   = "size"

	// sizeAllValue is the wire value of PageSizeAll.
	sizeAllValue = "all"
)

// Method describes a paged web service method.
type Method struct {
	// Path of the pages endpoint, relative to the base URL.
	Path string

	// CountPath of the count endpoint. Empty means the total is unknown.
	CountPath string

	// HTTPMethod for both endpoints. Defaults to GET.
	HTTPMethod string

	// Params are sent with the count call and with every page call,
	// ahead of the paging parameters.
	Params client.Params

	// PageSize is the number of rows per page, or PageSizeAll.
	PageSize int

	OffsetParam string
	SizeParam   string

	// RowsPath is a gjson path to the row array in a page response.
	// Empty means the response root.
	RowsPath string

	// CountField is a gjson path to the total in the count response.
	// Empty accepts a bare number or a "count" or "total" field.
	CountField string

	// Limit caps the number of rows requested. Zero means no limit.
	Limit int

	// MaxPages caps the number of page calls. Zero means no cap.
	MaxPages int
}

func (m Method) withDefaults() Method {
	if m.PageSize == 0 {
		m.PageSize = DefaultPageSize
	}
	if m.OffsetParam == "" {
		m.OffsetParam = DefaultOffsetParam
	}
	if m.SizeParam == "" {
		m.SizeParam = DefaultSizeParam
	}
	return m
}

// fetchAll reports whether m requests everything in one call.
func (m Method) fetchAll() bool {
	return m.PageSize == PageSizeAll
}

// PageRequest is one page of a paged fetch.
type PageRequest struct {
	Index  int
	Offset int
	// Size is the requested row count, or PageSizeAll.
	Size int
}

// call returns the web service call for p.
func (m Method) call(p PageRequest) client.Call {
	var paging client.Params
	if p.Size == PageSizeAll {
		paging = client.Params{client.String(m.SizeParam, sizeAllValue)}
	} else {
		paging = client.Params{
			client.Int(m.OffsetParam, int64(p.Offset)),
			client.Int(m.SizeParam, int64(p.Size)),
		}
	}
	return client.Call{
		Method: m.HTTPMethod,
		Path:   m.Path,
		Params: m.Params.With(paging...),
	}
}

// countCall returns the count call of m.
func (m Method) countCall() client.Call {
	return client.Call{
		Method: m.HTTPMethod,
		Path:   m.CountPath,
		Params: m.Params,
	}
}

// PageResult is one decoded page.
type PageResult struct {
	Rows []table.Record
	// Total is the total reported with the page, or -1.
	Total int
	// More reports whether another page should be requested.
	More bool
}
