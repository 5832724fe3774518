package metrics_test

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/soloforge/soloforge/pkg/domain/model"
	"github.com/soloforge/soloforge/pkg/metrics"
)

func scrape(t *testing.T, m *metrics.EventMetrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	return rec.Body.String()
}

func TestEventMetrics(t *testing.T) {
	m := metrics.New()
	m.EventReceived(model.EventCommitPushed)
	m.EventReceived(model.EventCommitPushed)
	m.DeliverySucceeded("ci", 10*time.Millisecond)
	m.DeliveryFailed("ci", time.Second, true)
	m.DeliveryFailed("lint", time.Millisecond, false)

	body := scrape(t, m)
	gt.S(t, body).Contains(`soloforge_events_received_total{kind="commit_pushed"} 2`)
	gt.S(t, body).Contains(`soloforge_deliveries_succeeded_total{plugin="ci"} 1`)
	gt.S(t, body).Contains(`soloforge_deliveries_failed_total{plugin="ci"} 1`)
	gt.S(t, body).Contains(`soloforge_deliveries_timeout_total{plugin="ci"} 1`)
	gt.S(t, body).Contains(`soloforge_deliveries_failed_total{plugin="lint"} 1`)
	gt.S(t, body).Contains("soloforge_delivery_attempt_duration_seconds")
}

func TestNilCollectorIsSafe(t *testing.T) {
	var m *metrics.EventMetrics
	m.EventReceived(model.EventCommitPushed)
	m.DeliverySucceeded("ci", time.Millisecond)
	m.DeliveryFailed("ci", time.Millisecond, false)
}
