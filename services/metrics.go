package services

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/speedrun-hq/solver/logging"
)

// MetricsService owns the Prometheus registry and the solver's metrics.
type MetricsService struct {
	registry *prometheus.Registry
	logger   zerolog.Logger

	ordersProcessed   *prometheus.CounterVec
	ordersFilled      *prometheus.CounterVec
	ordersDropped     *prometheus.CounterVec
	ordersRejected    *prometheus.CounterVec
	ordersFailed      *prometheus.CounterVec
	lastOrderPnlUsd   *prometheus.GaugeVec
	subscriptionsUp   *prometheus.GaugeVec
	lastOrderUnixtime *prometheus.GaugeVec
}

// NewMetricsService creates a metrics service with its own registry.
func NewMetricsService(logger zerolog.Logger) *MetricsService {
	registry := prometheus.NewRegistry()

	m := &MetricsService{
		registry: registry,
		logger:   logger.With().Str(logging.FieldModule, "metrics").Logger(),
		ordersProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "solver_orders_processed_total",
			Help: "Total number of orders ingested per chain",
		}, []string{"chain_id"}),
		ordersFilled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "solver_orders_filled_total",
			Help: "Total number of orders filled end-to-end per chain",
		}, []string{"chain_id"}),
		ordersDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "solver_orders_dropped_total",
			Help: "Total number of orders terminated by a drop policy per chain",
		}, []string{"chain_id"}),
		ordersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "solver_orders_rejected_total",
			Help: "Total number of orders rejected at preflight or quote per chain",
		}, []string{"chain_id"}),
		ordersFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "solver_orders_failed_total",
			Help: "Total number of orders that hit a fatal error per chain",
		}, []string{"chain_id"}),
		lastOrderPnlUsd: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "solver_last_order_pnl_usd",
			Help: "Quoted PnL of the most recently processed order per chain",
		}, []string{"chain_id"}),
		subscriptionsUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "solver_subscriptions_active",
			Help: "Number of active order subscriptions per chain",
		}, []string{"chain_id"}),
		lastOrderUnixtime: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "solver_last_order_timestamp",
			Help: "Timestamp of the last ingested order per chain",
		}, []string{"chain_id"}),
	}

	registry.MustRegister(
		m.ordersProcessed,
		m.ordersFilled,
		m.ordersDropped,
		m.ordersRejected,
		m.ordersFailed,
		m.lastOrderPnlUsd,
		m.subscriptionsUp,
		m.lastOrderUnixtime,
	)

	return m
}

// Handler exposes the registry for the /metrics endpoint.
func (m *MetricsService) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *MetricsService) OrderProcessed(chainID uint64, at float64) {
	m.ordersProcessed.WithLabelValues(chainLabel(chainID)).Inc()
	m.lastOrderUnixtime.WithLabelValues(chainLabel(chainID)).Set(at)
}

func (m *MetricsService) OrderFilled(chainID uint64) {
	m.ordersFilled.WithLabelValues(chainLabel(chainID)).Inc()
}

func (m *MetricsService) OrderDropped(chainID uint64) {
	m.ordersDropped.WithLabelValues(chainLabel(chainID)).Inc()
}

func (m *MetricsService) OrderRejected(chainID uint64) {
	m.ordersRejected.WithLabelValues(chainLabel(chainID)).Inc()
}

func (m *MetricsService) OrderFailed(chainID uint64) {
	m.ordersFailed.WithLabelValues(chainLabel(chainID)).Inc()
}

func (m *MetricsService) OrderPnl(chainID uint64, pnlUsd float64) {
	m.lastOrderPnlUsd.WithLabelValues(chainLabel(chainID)).Set(pnlUsd)
}

func (m *MetricsService) SetSubscriptions(chainID uint64, count int) {
	m.subscriptionsUp.WithLabelValues(chainLabel(chainID)).Set(float64(count))
}

func chainLabel(chainID uint64) string {
	return strconv.FormatUint(chainID, 10)
}
