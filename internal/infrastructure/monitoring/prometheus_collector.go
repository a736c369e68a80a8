package monitoring

import (
	"strconv"
	"time"

	"streamfy/pkg/cache"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "streamfy"

// PrometheusCollector owns every metric the server exports. It satisfies
// the metrics interfaces of the hub, the DJ service, the activity logger
// and the repository circuit breaker.
type PrometheusCollector struct {
	reg prometheus.Registerer

	connections     prometheus.Gauge
	rooms           prometheus.Gauge
	broadcasts      *prometheus.CounterVec
	signalsRelayed  *prometheus.CounterVec
	signalsDropped  *prometheus.CounterVec
	clientsDropped  prometheus.Counter
	djOperations    *prometheus.CounterVec
	djDuration      *prometheus.HistogramVec
	activityWritten prometheus.Counter
	activityDropped prometheus.Counter
	breakerState    *prometheus.GaugeVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	f := promauto.With(reg)
	return &PrometheusCollector{
		reg: reg,

		connections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Number of open websocket connections",
		}),
		rooms: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms_active",
			Help:      "Number of rooms with at least one member",
		}),
		broadcasts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Room and global broadcasts by message type",
		}, []string{"type"}),
		signalsRelayed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_relayed_total",
			Help:      "Signaling messages delivered to their target",
		}, []string{"type"}),
		signalsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_dropped_total",
			Help:      "Signaling messages whose target was not connected",
		}, []string{"type"}),
		clientsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_clients_dropped_total",
			Help:      "Clients disconnected because their send buffer was full",
		}),
		djOperations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dj_operations_total",
			Help:      "DJ queue operations by outcome",
		}, []string{"operation", "result"}),
		djDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dj_operation_duration_seconds",
			Help:      "Latency of DJ queue operations",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"operation"}),
		activityWritten: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activity_records_written_total",
			Help:      "Activity records written to the sink",
		}),
		activityDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activity_records_dropped_total",
			Help:      "Activity records lost to sink failures or shutdown",
		}),
		breakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		}, []string{"name"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// RegisterLiveChannels exports the size of the live channel set, read at
// scrape time.
func (p *PrometheusCollector) RegisterLiveChannels(count func() int) {
	promauto.With(p.reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "channels_live",
		Help:      "Number of channels currently live",
	}, func() float64 { return float64(count()) })
}

// RegisterDJCache exports the DJ session cache counters, read at scrape
// time.
func (p *PrometheusCollector) RegisterDJCache(stats func() cache.Stats) {
	f := promauto.With(p.reg)
	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dj_cache_hits_total",
		Help:      "DJ state reads served from cache",
	}, func() float64 { return float64(stats().Hits) })
	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dj_cache_misses_total",
		Help:      "DJ state reads that went to the store",
	}, func() float64 { return float64(stats().Misses) })
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "dj_cache_entries",
		Help:      "DJ sessions currently cached",
	}, func() float64 { return float64(stats().Size) })
}

// RegisterActivityBacklog exports how many activity records wait for the
// sink.
func (p *PrometheusCollector) RegisterActivityBacklog(pending func() int) {
	promauto.With(p.reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "activity_records_pending",
		Help:      "Activity records buffered for the next write",
	}, func() float64 { return float64(pending()) })
}

func (p *PrometheusCollector) SetConnections(n int)     { p.connections.Set(float64(n)) }
func (p *PrometheusCollector) SetRooms(n int)           { p.rooms.Set(float64(n)) }
func (p *PrometheusCollector) IncBroadcast(kind string) { p.broadcasts.WithLabelValues(kind).Inc() }
func (p *PrometheusCollector) IncSignalRelayed(kind string) {
	p.signalsRelayed.WithLabelValues(kind).Inc()
}
func (p *PrometheusCollector) IncSignalDropped(kind string) {
	p.signalsDropped.WithLabelValues(kind).Inc()
}
func (p *PrometheusCollector) IncClientDropped()         { p.clientsDropped.Inc() }
func (p *PrometheusCollector) AddActivityRecorded(n int) { p.activityWritten.Add(float64(n)) }
func (p *PrometheusCollector) AddActivityDropped(n int)  { p.activityDropped.Add(float64(n)) }
func (p *PrometheusCollector) SetCircuitBreakerState(name string, state int) {
	p.breakerState.WithLabelValues(name).Set(float64(state))
}

func (p *PrometheusCollector) ObserveDJOperation(operation, result string, duration time.Duration) {
	p.djOperations.WithLabelValues(operation, result).Inc()
	p.djDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// HTTPMetricsMiddleware counts requests by matched route so path
// parameters do not explode label cardinality.
func (p *PrometheusCollector) HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		p.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		p.httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
