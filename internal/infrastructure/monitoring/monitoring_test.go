package monitoring

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"streamfy/pkg/cache"
	"streamfy/pkg/circuitbreaker"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusCollector_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheusCollector(reg)

	p.SetConnections(3)
	p.IncSignalDropped("offer")
	p.IncSignalDropped("offer")
	p.ObserveDJOperation("enqueue", "ok", 5*time.Millisecond)
	p.AddActivityDropped(4)
	p.SetCircuitBreakerState("dj_repository", int(circuitbreaker.StateOpen))

	assert.Equal(t, 3.0, testutil.ToFloat64(p.connections))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.signalsDropped.WithLabelValues("offer")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.djOperations.WithLabelValues("enqueue", "ok")))
	assert.Equal(t, 4.0, testutil.ToFloat64(p.activityDropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.breakerState.WithLabelValues("dj_repository")))
}

func TestPrometheusCollector_ScrapeTimeGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheusCollector(reg)
	stats := cache.Stats{Size: 2, Hits: 7, Misses: 3}
	p.RegisterDJCache(func() cache.Stats { return stats })
	p.RegisterActivityBacklog(func() int { return 4 })

	values := map[string]float64{}
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		m := mf.GetMetric()[0]
		switch {
		case m.GetCounter() != nil:
			values[mf.GetName()] = m.GetCounter().GetValue()
		case m.GetGauge() != nil:
			values[mf.GetName()] = m.GetGauge().GetValue()
		}
	}
	assert.Equal(t, 7.0, values["streamfy_dj_cache_hits_total"])
	assert.Equal(t, 3.0, values["streamfy_dj_cache_misses_total"])
	assert.Equal(t, 2.0, values["streamfy_dj_cache_entries"])
	assert.Equal(t, 4.0, values["streamfy_activity_records_pending"])
}

func TestPrometheusCollector_LiveChannelsAndHTTP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	p := NewPrometheusCollector(reg)
	p.RegisterLiveChannels(func() int { return 2 })

	router := gin.New()
	router.Use(p.HTTPMetricsMiddleware())
	router.GET("/api/v1/dj/:channelId", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/dj/abc", nil))
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(p.httpRequests.WithLabelValues("GET", "/api/v1/dj/:channelId", "200")))

	families, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range families {
		if mf.GetName() == "streamfy_channels_live" {
			found = true
			assert.Equal(t, 2.0, mf.GetMetric()[0].GetGauge().GetValue())
		}
	}
	assert.True(t, found)
}

func TestHealthChecker_CheckAll(t *testing.T) {
	h := NewHealthChecker()
	h.AddCheck("ok", func(context.Context) error { return nil }, time.Second)

	status := h.CheckAll(context.Background())
	assert.Equal(t, StatusHealthy, status.Status)
	assert.Equal(t, StatusHealthy, status.Checks["ok"])

	h.AddCheck("broken", func(context.Context) error { return errors.New("down") }, time.Second)
	h.AddCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, 20*time.Millisecond)

	status = h.CheckAll(context.Background())
	assert.Equal(t, StatusUnhealthy, status.Status)
	assert.Equal(t, "down", status.Checks["broken"])
	assert.Equal(t, context.DeadlineExceeded.Error(), status.Checks["slow"])
	assert.False(t, h.IsReady(context.Background()))
}

func TestHealthChecker_BreakerCheck(t *testing.T) {
	state := circuitbreaker.StateClosed
	h := NewHealthChecker()
	h.AddBreakerCheck("dj_store", func() circuitbreaker.State { return state })

	assert.True(t, h.IsReady(context.Background()))
	state = circuitbreaker.StateOpen
	assert.False(t, h.IsReady(context.Background()))
}
