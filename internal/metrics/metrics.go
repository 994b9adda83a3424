package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	checkoutOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_outcomes_total",
			Help: "Checkout sessions leaving processing, by outcome",
		},
		[]string{"outcome"},
	)

	gatewayCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mobile_money_call_duration_seconds",
			Help:    "Mobile-money gateway call latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "result"},
	)

	paymentPollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_polls_total",
			Help: "Payment status polls, by reported status",
		},
		[]string{"status"},
	)

	reconciliationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_reconciliations_total",
			Help: "Order reconciliations, by result",
		},
		[]string{"result"},
	)

	listingsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "listings_expired_total",
			Help: "Listings deactivated by the expiry sweeper",
		},
	)

	pendingSettlementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pending_order_settlements_total",
			Help: "Pending orders re-checked after polling gave up, by result",
		},
		[]string{"result"},
	)

	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Buyer notifications, by stage and result",
		},
		[]string{"stage", "result"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(checkoutOutcomesTotal)
	prometheus.MustRegister(gatewayCallDuration)
	prometheus.MustRegister(paymentPollsTotal)
	prometheus.MustRegister(reconciliationsTotal)
	prometheus.MustRegister(listingsExpiredTotal)
	prometheus.MustRegister(notificationsTotal)
	prometheus.MustRegister(pendingSettlementsTotal)
}

// Middleware records request counts and latency keyed by the chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordCheckoutOutcome(outcome string) {
	checkoutOutcomesTotal.WithLabelValues(outcome).Inc()
}

func ObserveGatewayCall(operation, result string, d time.Duration) {
	gatewayCallDuration.WithLabelValues(operation, result).Observe(d.Seconds())
}

func RecordPaymentPoll(status string) {
	paymentPollsTotal.WithLabelValues(status).Inc()
}

func RecordReconciliation(result string) {
	reconciliationsTotal.WithLabelValues(result).Inc()
}

func AddListingsExpired(n int64) {
	listingsExpiredTotal.Add(float64(n))
}

func RecordNotification(stage, result string) {
	notificationsTotal.WithLabelValues(stage, result).Inc()
}

func RecordPendingSettlement(result string) {
	pendingSettlementsTotal.WithLabelValues(result).Inc()
}
