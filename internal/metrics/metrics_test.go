package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersAccumulate(t *testing.T) {
	before := testutil.ToFloat64(ChecksTotal.WithLabelValues("http", "up"))
	ChecksTotal.WithLabelValues("http", "up").Inc()
	after := testutil.ToFloat64(ChecksTotal.WithLabelValues("http", "up"))
	if after != before+1 {
		t.Fatalf("counter = %v, want %v", after, before+1)
	}
}

func TestHandlerServesRegistry(t *testing.T) {
	IncidentsOpened.Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "watchpost_incidents_opened_total") {
		t.Error("expected incident counter in exposition")
	}
	if !strings.Contains(body, "go_goroutines") {
		t.Error("expected default go collector in exposition")
	}
}
