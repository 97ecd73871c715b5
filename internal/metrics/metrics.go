// Package metrics exposes Prometheus collectors for the ledger service.
// Collectors register with the default registry through promauto and are
// served by Handler.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oshikakeibo_http_requests_total",
			Help: "Total number of HTTP requests by route and status code",
		},
		[]string{"route", "code"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oshikakeibo_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	notificationsDerived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oshikakeibo_notifications_derived_total",
			Help: "Total number of newly derived notifications by kind",
		},
		[]string{"kind"}, // budget-warning, budget-exceeded, birthday
	)

	notificationsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oshikakeibo_notifications_published_total",
			Help: "Total number of notification publish attempts by result",
		},
		[]string{"result"}, // ok, error
	)

	importRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oshikakeibo_import_rows_total",
			Help: "Total number of CSV rows processed by result",
		},
		[]string{"result"}, // imported, error, warning
	)

	expiredBudgets = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "oshikakeibo_expired_event_budgets_total",
			Help: "Total number of event budgets removed at month rollover",
		},
	)

	mirroredExpenses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oshikakeibo_mirrored_expenses_total",
			Help: "Total number of expenses written to the sheets mirror by result",
		},
		[]string{"result"},
	)

	cacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oshikakeibo_view_cache_lookups_total",
			Help: "Total number of computed-view cache lookups by result",
		},
		[]string{"result"}, // hit, miss
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func ObserveHTTP(route string, code int, d time.Duration) {
	httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

func NotificationDerived(kind string) {
	notificationsDerived.WithLabelValues(kind).Inc()
}

func NotificationPublished(err error) {
	notificationsPublished.WithLabelValues(result(err)).Inc()
}

func ImportRows(imported, errors, warnings int) {
	importRows.WithLabelValues("imported").Add(float64(imported))
	importRows.WithLabelValues("error").Add(float64(errors))
	importRows.WithLabelValues("warning").Add(float64(warnings))
}

func BudgetsExpired(n int) {
	expiredBudgets.Add(float64(n))
}

func ExpensesMirrored(n int, err error) {
	mirroredExpenses.WithLabelValues(result(err)).Add(float64(n))
}

func CacheLookup(hit bool) {
	if hit {
		cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	cacheLookups.WithLabelValues("miss").Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
