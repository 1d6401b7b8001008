// Package metrics exposes the Prometheus metrics of the web service layer.
// All metrics are defined in their owning packages (cancel, client,
// credstore, pagination, node) via promauto to keep those packages
// independent; this package serves and documents them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by all packages.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer reads the metrics registered in Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the HTTP handler serving the registered metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Cancellation Metrics (pkg/cancel):
//   - wsnodes_cancellations_total (Counter): Cancellable units that ended by cancellation
//
// Request Metrics (pkg/client):
//   - wsnodes_requests_total{path, status} (Counter): Calls by method path and HTTP status
//   - wsnodes_request_duration_seconds{path} (Histogram): Call duration by method path
//   - wsnodes_errors_total{class} (Counter): Errors by class (config, auth, service, network)
//
// Credential Metrics (pkg/credstore):
//   - wsnodes_credential_lookups_total{result} (Counter): Named lookups (hit, miss, error)
//
// Paging Metrics (pkg/pagination):
//   - wsnodes_pages_fetched_total (Counter): Completed page calls
//   - wsnodes_rows_fetched_total (Counter): Rows received from page calls
//   - wsnodes_fetch_outcomes_total{outcome} (Counter): Paged fetches by state (done, canceled, failed)
//
// Node Metrics (pkg/node):
//   - wsnodes_node_executions_total{outcome} (Counter): Node executions by outcome
//   - wsnodes_node_rows_skipped_total (Counter): Input rows skipped for missing values
//
// Example Prometheus Queries:
//
//   # Authorization failures
//   rate(wsnodes_errors_total{class="auth"}[5m])
//
//   # Rows per page
//   rate(wsnodes_rows_fetched_total[5m]) / rate(wsnodes_pages_fetched_total[5m])
//
//   # P95 call latency
//   histogram_quantile(0.95, rate(wsnodes_request_duration_seconds_bucket[5m]))
