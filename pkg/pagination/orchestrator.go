package pagination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/ws-nodes/pkg/cancel"
	"github.com/Sternrassler/ws-nodes/pkg/client"
	"github.com/Sternrassler/ws-nodes/pkg/settings"
)

var (
	pagesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wsnodes_pages_fetched_total",
		Help: "Total pages fetched by paged fetches",
	})

	rowsFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wsnodes_rows_fetched_total",
		Help: "Total rows fetched by paged fetches",
	})

	fetchOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wsnodes_fetch_outcomes_total",
		Help: "Paged fetches by terminal state",
	}, []string{"outcome"})
)

// Caller performs a single web service call. *client.Client implements it.
type Caller interface {
	Do(ctx context.Context, call client.Call) (*client.CallResult, error)
}

// Config holds orchestrator configuration.
type Config struct {
	// MaxChildElements fails a page with more row elements than this.
	// Zero disables the guard.
	MaxChildElements int

	// PollInterval is how often cancellation is polled during a call.
	PollInterval time.Duration
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig() Config {
	return Config{
		MaxChildElements: settings.DefaultMaxChildElements,
		PollInterval:     cancel.DefaultPollInterval,
	}
}

// Orchestrator runs paged fetches. It holds no per-fetch state and may be
// shared by concurrent fetches.
type Orchestrator struct {
	caller Caller
	config Config
	logger zerolog.Logger
}

// NewOrchestrator creates an orchestrator issuing calls through caller.
func NewOrchestrator(caller Caller, config Config) *Orchestrator {
	if config.PollInterval <= 0 {
		config.PollInterval = cancel.DefaultPollInterval
	}
	return &Orchestrator{
		caller: caller,
		config: config,
		logger: log.With().Str("component", "pagination").Logger(),
	}
}

// Fetch walks all pages of m and returns the handle holding the rows.
//
// The returned handle is never nil. On failure or cancellation its records
// are discarded and the error is returned: page errors unchanged, and
// cancellations matching cancel.ErrCanceled.
func (o *Orchestrator) Fetch(ctx context.Context, exec cancel.ExecutionContext, m Method) (*Handle, error) {
	if exec == nil {
		exec = cancel.NewFlag()
	}

	h := newHandle()
	m = m.withDefaults()
	logger := o.logger.With().Str("fetch_id", h.ID).Str("path", m.Path).Logger()

	if err := validate(m); err != nil {
		return o.end(h, StateFailed, err, logger)
	}

	if m.CountPath != "" {
		total, err := o.count(ctx, exec, m)
		switch {
		case errors.Is(err, cancel.ErrCanceled):
			return o.end(h, StateCanceled, err, logger)
		case client.IsConfig(err):
			return o.end(h, StateFailed, err, logger)
		case err != nil:
			logger.Warn().Err(err).Str("count_path", m.CountPath).Msg("Record count unavailable, total unknown")
		default:
			h.total = total
		}
	}

	logger.Debug().
		Int("total", h.total).
		Int("page_size", m.PageSize).
		Msg("Starting paged fetch")

	h.state = StateFetching
	reported := 0.0
	for {
		if !m.fetchAll() && reached(h, m) {
			break
		}

		if err := cancel.Check(exec); err != nil {
			return o.end(h, StateCanceled, err, logger)
		}
		if ctx.Err() != nil {
			return o.end(h, StateCanceled, fmt.Errorf("%w: %w", cancel.ErrCanceled, context.Cause(ctx)), logger)
		}

		req := nextPage(h, m)
		page, err := o.fetchPage(ctx, exec, m, req)
		if err != nil {
			if errors.Is(err, cancel.ErrCanceled) {
				return o.end(h, StateCanceled, err, logger)
			}
			logger.Error().Err(err).Int("page", req.Index).Int("offset", req.Offset).Msg("Page fetch failed")
			return o.end(h, StateFailed, err, logger)
		}

		h.appendPage(page.Rows)
		if page.Total >= 0 {
			h.total = page.Total
		}
		pagesFetchedTotal.Inc()
		rowsFetchedTotal.Add(float64(len(page.Rows)))

		if fraction, ok := progress(h, m); ok {
			exec.SetProgress(fraction)
			reported = fraction
		}

		logger.Debug().
			Int("page", req.Index).
			Int("offset", req.Offset).
			Int("rows", len(page.Rows)).
			Int("fetched", h.fetched).
			Int("total", h.total).
			Msg("Page fetched")

		if !page.More {
			break
		}
	}

	if reported < 1 {
		exec.SetProgress(1)
	}
	return o.end(h, StateDone, nil, logger)
}

func (o *Orchestrator) count(ctx context.Context, exec cancel.ExecutionContext, m Method) (int, error) {
	res, err := cancel.Run(ctx, exec, o.config.PollInterval, func(ctx context.Context) (*client.CallResult, error) {
		return o.caller.Do(ctx, m.countCall())
	})
	if err != nil {
		return 0, err
	}
	return parseCount(res.Body, m.CountField)
}

func (o *Orchestrator) fetchPage(ctx context.Context, exec cancel.ExecutionContext, m Method, req PageRequest) (PageResult, error) {
	res, err := cancel.Run(ctx, exec, o.config.PollInterval, func(ctx context.Context) (*client.CallResult, error) {
		return o.caller.Do(ctx, m.call(req))
	})
	if err != nil {
		return PageResult{}, err
	}

	if limit := o.config.MaxChildElements; limit > 0 {
		if n := countElements(res.Body, m.RowsPath); n > limit {
			return PageResult{}, &client.Error{
				Class:      client.ErrorClassService,
				StatusCode: res.StatusCode,
				Message:    fmt.Sprintf("page %d has %d elements, more than the limit of %d", req.Index, n, limit),
			}
		}
	}

	rows, err := decodeRows(res.Body, m.RowsPath)
	if err != nil {
		return PageResult{}, &client.Error{
			Class:      client.ErrorClassService,
			StatusCode: res.StatusCode,
			Message:    fmt.Sprintf("decode page %d", req.Index),
			Err:        err,
		}
	}

	return PageResult{
		Rows:  rows,
		Total: pageTotal(res.Body, m.CountField),
		More:  req.Size != PageSizeAll && len(rows) >= req.Size,
	}, nil
}

func (o *Orchestrator) end(h *Handle, s State, err error, logger zerolog.Logger) (*Handle, error) {
	h.finish(s)
	fetchOutcomesTotal.WithLabelValues(string(s)).Inc()

	event := logger.Info()
	if s != StateDone {
		event = logger.Warn().Err(err)
	}
	event.
		Str("state", string(s)).
		Int("pages", h.pages).
		Int("fetched", h.fetched).
		Int("total", h.total).
		Dur("duration", h.Duration()).
		Msg("Paged fetch finished")

	return h, err
}

func validate(m Method) error {
	if m.Path == "" {
		return &client.Error{Class: client.ErrorClassConfig, Message: "paged method has no path"}
	}
	if m.PageSize < 0 && m.PageSize != PageSizeAll {
		return &client.Error{Class: client.ErrorClassConfig, Message: fmt.Sprintf("invalid page size %d", m.PageSize)}
	}
	if m.Limit < 0 || m.MaxPages < 0 {
		return &client.Error{Class: client.ErrorClassConfig, Message: "limit and max pages must not be negative"}
	}
	return nil
}

// reached reports whether no further page is needed before issuing one.
func reached(h *Handle, m Method) bool {
	switch {
	case h.total >= 0 && h.fetched >= h.total:
		return true
	case m.Limit > 0 && h.fetched >= m.Limit:
		return true
	case m.MaxPages > 0 && h.pages >= m.MaxPages:
		return true
	default:
		return false
	}
}

// nextPage continues at the number of rows received so far.
func nextPage(h *Handle, m Method) PageRequest {
	if m.fetchAll() {
		return PageRequest{Index: h.pages, Offset: 0, Size: PageSizeAll}
	}
	size := m.PageSize
	if m.Limit > 0 {
		size = min(size, m.Limit-h.fetched)
	}
	return PageRequest{Index: h.pages, Offset: h.fetched, Size: size}
}

func progress(h *Handle, m Method) (float64, bool) {
	denom := h.total
	if m.Limit > 0 && (denom < 0 || m.Limit < denom) {
		denom = m.Limit
	}
	if denom <= 0 {
		return 0, false
	}
	return min(1, float64(h.fetched)/float64(denom)), true
}
