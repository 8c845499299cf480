package monitoring

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	RelationTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relation_transitions_total",
		Help: "Committed relation state transitions",
	}, []string{"action"})

	NotificationsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_created_total",
		Help: "Notifications created, by type",
	}, []string{"type"})

	DeliveriesCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notification_deliveries_total",
		Help: "Per-recipient notification rows written by the fan-out",
	})

	FanoutFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_fanout_failures_total",
		Help: "Fan-outs rolled back without failing the triggering write",
	}, []string{"type"})

	PushFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notification_push_failures_total",
		Help: "Push messages the FCM client refused",
	})

	LoginFailure = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "login_failure_total",
		Help: "Total failed login attempts",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(
		RequestDuration,
		RelationTransitions,
		NotificationsCreated,
		DeliveriesCreated,
		FanoutFailures,
		PushFailures,
		LoginFailure,
	)
}

// Middleware records the duration of every request under its route pattern.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			RequestDuration.WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).
				Observe(time.Since(start).Seconds())
			return err
		}
	}
}
