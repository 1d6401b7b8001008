// Package node runs a paged web service method once per input row and merges
// the responses into one result table.
//
// Every row gets its own pagination.Handle; rows run in parallel up to
// Config.Parallelism and the first failure cancels the rest. Results are
// merged in input row order, each prefixed with the input_row column.
package node

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/ws-nodes/pkg/cancel"
	"github.com/Sternrassler/ws-nodes/pkg/client"
	"github.com/Sternrassler/ws-nodes/pkg/logging"
	"github.com/Sternrassler/ws-nodes/pkg/pagination"
	"github.com/Sternrassler/ws-nodes/pkg/table"
)

// InputRowColumn holds the index of the input row that produced a result row.
const InputRowColumn = "input_row"

// DefaultParallelism is used when Config.Parallelism is zero.
const DefaultParallelism = 4

var (
	executionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wsnodes_node_executions_total",
		Help: "Node executions by outcome",
	}, []string{"outcome"})

	rowsSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wsnodes_node_rows_skipped_total",
		Help: "Input rows skipped for missing values",
	})
)

// Config is the node configuration.
type Config struct {
	// Method is the paged method called for every row. Its Params are sent
	// ahead of the bound parameters.
	Method   pagination.Method
	Bindings []Binding

	// Parallelism bounds the rows fetched at once. 1 runs rows sequentially.
	Parallelism int

	// SkipMissing skips rows with a missing bound cell instead of failing.
	SkipMissing bool
}

// Node executes Config against input tables.
type Node struct {
	orch   *pagination.Orchestrator
	config Config
	logger zerolog.Logger
}

// New creates a node issuing its fetches through orch.
func New(orch *pagination.Orchestrator, cfg Config) *Node {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = DefaultParallelism
	}
	return &Node{
		orch:   orch,
		config: cfg,
		logger: logging.NewLogger("node"),
	}
}

// rowExecution shares the node's cancellation with one row and drops the
// row's own progress reports.
type rowExecution struct {
	cancel.Checker
}

func (rowExecution) SetProgress(float64) {}

// Execute runs the node over in. exec may be nil, in which case cancellation
// follows ctx. exec must be safe for concurrent CheckCanceled calls when
// Parallelism is above one.
func (n *Node) Execute(ctx context.Context, exec cancel.ExecutionContext, in table.Input) (*table.Result, error) {
	logger := logging.WithExecution(n.logger, uuid.NewString())
	if exec == nil {
		exec = cancel.FromContext(ctx, logger)
	}
	start := time.Now()

	calls, err := n.prepare(in, logger)
	if err != nil {
		return nil, n.fail(logger, err)
	}

	results := make([][]table.Record, len(calls))
	var (
		mu        sync.Mutex
		completed int
		active    int
	)
	for _, ps := range calls {
		if ps != nil {
			active++
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(n.config.Parallelism)

	for i, ps := range calls {
		if ps == nil {
			continue
		}
		if gctx.Err() != nil {
			break
		}

		g.Go(func() error {
			m := n.config.Method
			m.Params = m.Params.With(ps...)

			h, err := n.orch.Fetch(gctx, rowExecution{exec}, m)
			if err != nil {
				return fmt.Errorf("row %d: %w", i, err)
			}
			results[i] = h.Records()

			mu.Lock()
			completed++
			exec.SetProgress(float64(completed) / float64(active))
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, n.fail(logger, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, n.fail(logger, fmt.Errorf("%w: %w", cancel.ErrCanceled, context.Cause(ctx)))
	}

	res := merge(results)
	executionsTotal.WithLabelValues("success").Inc()
	logger.Info().
		Int("input_rows", in.NumRows()).
		Int("fetched_rows", len(res.Rows)).
		Dur("duration", time.Since(start)).
		Msg("Node execution finished")
	return res, nil
}

// prepare builds the parameters of every row. Skipped rows are nil.
func (n *Node) prepare(in table.Input, logger zerolog.Logger) ([]client.Params, error) {
	bound, err := bind(n.config.Bindings, in)
	if err != nil {
		return nil, err
	}

	calls := make([]client.Params, in.NumRows())
	for i := range calls {
		ps, err := params(bound, in.Row(i))
		if err != nil {
			if errors.Is(err, table.ErrMissingValue) && n.config.SkipMissing {
				rowsSkippedTotal.Inc()
				logger.Debug().Int("row", i).Err(err).Msg("Skipping row with missing value")
				continue
			}
			return nil, configError(fmt.Errorf("row %d: %w", i, err))
		}
		calls[i] = ps
	}
	return calls, nil
}

func (n *Node) fail(logger zerolog.Logger, err error) error {
	if errors.Is(err, cancel.ErrCanceled) {
		executionsTotal.WithLabelValues("canceled").Inc()
		logger.Warn().Err(err).Msg("Node execution canceled")
		return err
	}
	executionsTotal.WithLabelValues("failed").Inc()
	logger.Error().
		Err(err).
		Str("error_class", string(client.ClassOf(err))).
		Msg("Node execution failed")
	return err
}

// merge concatenates row results in input order.
func merge(results [][]table.Record) *table.Result {
	b := table.NewBuilder()
	b.AddColumn(InputRowColumn, table.TypeInt)

	for i, recs := range results {
		for _, rec := range recs {
			full := make(table.Record, 0, len(rec)+1)
			full = append(full, table.Field{Name: InputRowColumn, Value: int64(i)})
			for _, f := range rec {
				if f.Name != InputRowColumn {
					full = append(full, f)
				}
			}
			b.Add(full)
		}
	}
	return b.Result()
}
