package obs

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"staysane/internal/app/middleware"
	"staysane/internal/domain/shared/errs"
)

const namespace = "staysane"

// Metrics holds the Prometheus collectors of the service. It implements
// middleware.Observer for the command and query buses.
type Metrics struct {
	messages        *prometheus.CounterVec
	messageDuration *prometheus.HistogramVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	outboxPublished *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Commands and queries handled, by outcome.",
		}, []string{"kind", "key", "outcome"}),
		messageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_duration_seconds",
			Help:      "Time spent handling commands and queries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind", "key"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		outboxPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_total",
			Help:      "Outbox events relayed to the broker, by result.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.messages, m.messageDuration, m.httpRequests, m.httpDuration, m.outboxPublished)
	}
	return m
}

func (m *Metrics) Observe(kind, key string, took time.Duration, err error) {
	m.messages.WithLabelValues(kind, key, Outcome(err)).Inc()
	m.messageDuration.WithLabelValues(kind, key).Observe(took.Seconds())
}

// OutboxResult counts one relayed event.
func (m *Metrics) OutboxResult(err error) {
	result := "sent"
	if err != nil {
		result = "failed"
	}
	m.outboxPublished.WithLabelValues(result).Inc()
}

// HTTP records request counts and latency per matched route.
func (m *Metrics) HTTP() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Outcome buckets an error into a low-cardinality label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, errs.ErrConcurrentConflict):
		return "conflict"
	case errors.Is(err, errs.ErrNotFound):
		return "not_found"
	case errors.Is(err, middleware.ErrInvalidInput):
		return "invalid"
	default:
		return "error"
	}
}

var _ middleware.Observer = (*Metrics)(nil)
