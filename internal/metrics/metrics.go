package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "checkout"

// исходы оформления заказа
const (
	ResultPlaced     = "placed"
	ResultRejected   = "rejected"
	ResultOutOfStock = "out_of_stock"
	ResultConflict   = "conflict"
	ResultFailed     = "failed"
)

// Metrics — счётчики оформления заказов и обработки уведомлений шлюза.
// Методы безопасны для nil-получателя, чтобы сервисы можно было собирать без метрик.
type Metrics struct {
	ordersPlaced    *prometheus.CounterVec
	placeDuration   prometheus.Histogram
	unitsRestocked  prometheus.Counter
	notifications   *prometheus.CounterVec
	paymentRequests *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ordersPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "orders_placed_total",
			Help: "Order placement attempts by result.",
		}, []string{"result"}),
		placeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "order_place_duration_seconds",
			Help:    "Time spent placing an order, including transaction retries.",
			Buckets: prometheus.DefBuckets,
		}),
		unitsRestocked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "stock_units_restocked_total",
			Help: "Units returned to stock by cancelled orders.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "payment_notifications_total",
			Help: "Gateway notifications by status and outcome.",
		}, []string{"status", "outcome"}),
		paymentRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "payment_requests_total",
			Help: "Outbound payment initiation calls by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.ordersPlaced, m.placeDuration, m.unitsRestocked, m.notifications, m.paymentRequests)
	return m
}

func (m *Metrics) OrderPlaced(result string, seconds float64) {
	if m == nil {
		return
	}
	m.ordersPlaced.WithLabelValues(result).Inc()
	m.placeDuration.Observe(seconds)
}

func (m *Metrics) UnitsRestocked(units int) {
	if m == nil {
		return
	}
	m.unitsRestocked.Add(float64(units))
}

func (m *Metrics) NotificationHandled(status, outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(status, outcome).Inc()
}

func (m *Metrics) PaymentRequested(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.paymentRequests.WithLabelValues(result).Inc()
}
