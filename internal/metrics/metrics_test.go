package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"trading-alerts/internal/model"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestMetrics_ObserveCheck(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveCheck(model.CheckResult{Status: model.CheckOK, Triggered: true}, "RSI", time.Millisecond)
	m.ObserveCheck(model.CheckResult{Status: model.CheckError}, "RSI", time.Millisecond)

	if got := testutil.ToFloat64(m.ChecksTotal.WithLabelValues("ok")); got != 1 {
		t.Errorf("ok checks = %v", got)
	}
	if got := testutil.ToFloat64(m.ChecksTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("error checks = %v", got)
	}
	if got := testutil.ToFloat64(m.TriggersTotal.WithLabelValues("RSI")); got != 1 {
		t.Errorf("triggers = %v", got)
	}
}

func TestMetrics_NotificationAndBreaker(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.NotificationSent("webhook", errors.New("x"))
	m.NotificationSent("webhook", nil)
	m.BreakerChanged(1)
	m.BreakerChanged(2)

	if got := testutil.ToFloat64(m.NotificationsSent.WithLabelValues("webhook", "error")); got != 1 {
		t.Errorf("webhook errors = %v", got)
	}
	if got := testutil.ToFloat64(m.BreakerTrips); got != 1 {
		t.Errorf("trips = %v", got)
	}
	if got := testutil.ToFloat64(m.BreakerState); got != 2 {
		t.Errorf("state = %v", got)
	}
}

func TestHealth_Statuses(t *testing.T) {
	cases := []struct {
		name   string
		sqlite error
		redis  Pinger
		code   int
		status string
	}{
		{"healthy", nil, pinger{}, http.StatusOK, "healthy"},
		{"no redis configured", nil, nil, http.StatusOK, "healthy"},
		{"redis down", nil, pinger{errors.New("down")}, http.StatusOK, "degraded"},
		{"sqlite down", errors.New("locked"), pinger{}, http.StatusServiceUnavailable, "unhealthy"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHealthStatus()
			h.Check(context.Background(), pinger{tc.sqlite}, tc.redis)

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			if rec.Code != tc.code {
				t.Errorf("code = %d, want %d", rec.Code, tc.code)
			}
			var body map[string]any
			json.Unmarshal(rec.Body.Bytes(), &body)
			if body["status"] != tc.status {
				t.Errorf("status = %v, want %s", body["status"], tc.status)
			}
		})
	}
}
