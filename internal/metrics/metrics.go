package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTP метрики
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_request_duration_seconds",
			Help: "Duration of HTTP requests in seconds",
		},
		[]string{"method", "path"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Current number of HTTP requests in flight",
		},
	)

	// Заказы
	OrdersCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Total number of orders created",
		},
		[]string{"payment_method", "status"},
	)
	OrdersCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_completed_total",
			Help: "Total number of orders moved to completed",
		},
		[]string{"source"},
	)
	OrderFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_failures_total",
			Help: "Total number of rejected or failed checkouts",
		},
		[]string{"reason"},
	)

	// Скидки
	CouponRedemptionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coupon_redemptions_total",
			Help: "Total number of committed coupon redemptions",
		},
	)
	DiscountResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discount_resolutions_total",
			Help: "Total number of discount resolutions by winning rule",
		},
		[]string{"rule"},
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Order confirmation notifications by outcome",
		},
		[]string{"status"},
	)
)

// InitMetrics регистрирует метрики в реестре по умолчанию; Go и process
// коллекторы там уже есть.
func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(HTTPRequestsInFlight)

	prometheus.MustRegister(OrdersCreatedTotal)
	prometheus.MustRegister(OrdersCompletedTotal)
	prometheus.MustRegister(OrderFailuresTotal)
	prometheus.MustRegister(CouponRedemptionsTotal)
	prometheus.MustRegister(DiscountResolutionsTotal)
	prometheus.MustRegister(NotificationsTotal)
}
