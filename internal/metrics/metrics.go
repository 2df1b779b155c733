// Package metrics содержит Prometheus-метрики сервиса.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "campaign_ledger"

var (
	// Registry хранит метрики сервиса.
	Registry = prometheus.NewRegistry()

	// BidsTotal считает попытки ставок по исходу.
	BidsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "bids_total",
		Help:      "Bid attempts by outcome.",
	}, []string{"outcome"})

	// DonationsTotal считает попытки пожертвований по исходу.
	DonationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "donations_total",
		Help:      "Donation attempts by outcome.",
	}, []string{"outcome"})

	// ClaimsTotal считает попытки выплат по исходу.
	ClaimsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "claims_total",
		Help:      "Claim attempts by outcome.",
	}, []string{"outcome"})

	// RefundsTotal считает возвраты проигравших ставок.
	RefundsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "refunds_total",
		Help:      "Losing bid refunds by result.",
	}, []string{"result"})

	// CompensationsTotal считает компенсирующие зачисления после неудачных операций.
	CompensationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "compensations_total",
		Help:      "Compensating wallet credits by result.",
	}, []string{"result"})

	NotificationsDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notifications",
		Name:      "delivered_total",
		Help:      "Notifications stored for users.",
	})

	NotificationsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notifications",
		Name:      "dropped_total",
		Help:      "Notifications dropped because the queue was full.",
	})

	// JobRuns считает запуски фоновых задач.
	JobRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "runs_total",
		Help:      "Periodic job runs by job and result.",
	}, []string{"job", "result"})

	JobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "run_duration_seconds",
		Help:      "Duration of periodic job runs.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	}, []string{"job"})

	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "inflight_requests",
		Help:      "Current number of in-flight HTTP requests.",
	})

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests handled.",
	}, []string{"method", "route", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP requests.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"method", "route"})
)

func init() {
	Registry.MustRegister(
		BidsTotal,
		DonationsTotal,
		ClaimsTotal,
		RefundsTotal,
		CompensationsTotal,
		NotificationsDelivered,
		NotificationsDropped,
		JobRuns,
		JobDuration,
		httpInFlight,
		httpRequests,
		httpDuration,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler отдаёт метрики в формате Prometheus. Сжатие ответа выполняет общий
// gzip middleware роутера.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{DisableCompression: true})
}

// Middleware собирает метрики HTTP-запросов. Маршрут берётся из шаблона chi,
// чтобы идентификаторы в пути не раздували число серий.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}

		httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
