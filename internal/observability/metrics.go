package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "talkflow_http_requests_total",
			Help: "Total number of HTTP requests processed by the service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "talkflow_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "talkflow_ws_active_sessions",
			Help: "Number of live websocket sessions.",
		},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "talkflow_ws_events_total",
			Help: "Total number of websocket lifecycle events.",
		},
		[]string{"event"},
	)
	routerFramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "talkflow_router_frames_total",
			Help: "Total number of inbound frames by type.",
		},
		[]string{"type"},
	)
	routerDropsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "talkflow_router_drops_total",
			Help: "Total number of dropped frames by type and reason.",
		},
		[]string{"type", "reason"},
	)
	callWatchdogTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "talkflow_call_watchdog_total",
			Help: "Call watchdog outcomes.",
		},
		[]string{"outcome"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "talkflow_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		wsActiveSessions,
		wsEventsTotal,
		routerFramesTotal,
		routerDropsTotal,
		callWatchdogTotal,
		amqpPublishErrorsTotal,
	)
}

// HTTPMetricsMiddleware records request counts and latencies per route.
func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func IncWSActive() {
	wsActiveSessions.Inc()
}

func DecWSActive() {
	wsActiveSessions.Dec()
}

func IncWSEvent(event string) {
	wsEventsTotal.WithLabelValues(event).Inc()
}

func IncRouterFrame(frameType string) {
	routerFramesTotal.WithLabelValues(frameType).Inc()
}

func IncRouterDrop(frameType, reason string) {
	routerDropsTotal.WithLabelValues(frameType, reason).Inc()
}

func IncCallWatchdog(outcome string) {
	callWatchdogTotal.WithLabelValues(outcome).Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
