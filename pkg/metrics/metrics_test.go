package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	_ "github.com/Sternrassler/ws-nodes/pkg/cancel"
	_ "github.com/Sternrassler/ws-nodes/pkg/pagination"
)

func TestRegistry(t *testing.T) {
	if Registry != prometheus.DefaultRegisterer {
		t.Error("Registry should be the default Prometheus registerer")
	}
	if Gatherer != prometheus.DefaultGatherer {
		t.Error("Gatherer should be the default Prometheus gatherer")
	}
}

func TestHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	for _, name := range []string{"wsnodes_pages_fetched_total", "wsnodes_rows_fetched_total", "wsnodes_cancellations_total"} {
		if !strings.Contains(string(body), name) {
			t.Errorf("Expected metrics output to contain %s", name)
		}
	}
}
