package pagination

import (
	"time"

	"github.com/google/uuid"

	"github.com/Sternrassler/ws-nodes/pkg/table"
)

// State is the lifecycle state of a paged fetch.
type State string

const (
	StateInit     State = "init"
	StateFetching State = "fetching"
	StateDone     State = "done"
	StateCanceled State = "canceled"
	StateFailed   State = "failed"
)

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateDone || s == StateCanceled || s == StateFailed
}

// Handle is the lifetime of one paged fetch. It owns the accumulated records
// and is used by a single goroutine; parallel fetches each get their own.
type Handle struct {
	ID string

	state   State
	total   int
	fetched int
	pages   int
	records []table.Record
	started time.Time
	ended   time.Time
}

func newHandle() *Handle {
	return &Handle{
		ID:      uuid.NewString(),
		state:   StateInit,
		total:   -1,
		started: time.Now(),
	}
}

// State returns the current state.
func (h *Handle) State() State { return h.state }

// Total returns the record count reported by the service, or -1 when unknown.
func (h *Handle) Total() int { return h.total }

// Fetched returns the number of rows received.
func (h *Handle) Fetched() int { return h.fetched }

// Pages returns the number of completed page calls.
func (h *Handle) Pages() int { return h.pages }

// Records returns the accumulated rows in received order. It is nil after a
// failed or canceled fetch.
func (h *Handle) Records() []table.Record { return h.records }

// Duration returns the time from creation until the terminal state, or until
// now while the fetch runs.
func (h *Handle) Duration() time.Duration {
	if h.ended.IsZero() {
		return time.Since(h.started)
	}
	return h.ended.Sub(h.started)
}

func (h *Handle) appendPage(rows []table.Record) {
	h.records = append(h.records, rows...)
	h.fetched += len(rows)
	h.pages++
}

func (h *Handle) finish(s State) {
	h.state = s
	h.ended = time.Now()
	if s != StateDone {
		h.records = nil
	}
}
