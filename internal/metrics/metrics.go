package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: сколько времени занял вызов бэкенда платформы
	BackendCallDuration *prometheus.HistogramVec

	// Traffic: запросы к консоли по маршрутам
	HTTPRequests *prometheus.CounterVec

	// Мутации конфигурации по сущностям и исходам
	ConfigMutations *prometheus.CounterVec

	// Validation: сколько форм отбито локально, без сетевого вызова
	ValidationRejections *prometheus.CounterVec

	// Saturation: состояние Circuit Breaker бэкенда (0 - ок, 1 - выбило)
	BreakerState *prometheus.GaugeVec

	// Audit: заполненность буфера (backpressure)
	AuditBufferFill prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		BackendCallDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "console_backend_call_duration_seconds",
			Help:    "Histogram of platform backend call latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"op", "status"}),

		HTTPRequests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "console_http_requests_total",
			Help: "Total number of console API requests.",
		}, []string{"route", "code"}),

		ConfigMutations: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "console_config_mutations_total",
			Help: "Total configuration mutations by entity and outcome.",
		}, []string{"entity", "op", "outcome"}), // outcome: ok, rejected, backend_error

		ValidationRejections: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "console_validation_rejections_total",
			Help: "Forms rejected locally before any network call.",
		}, []string{"entity"}),

		BreakerState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "console_backend_breaker_state",
			Help: "Current state of the backend circuit breaker (0=closed, 1=open).",
		}, []string{"target"}),

		AuditBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "console_audit_buffer_utilization",
			Help: "Current number of events in audit buffer.",
		}),
	}
}

// ObserveHTTPRequest учитывает запрос к консоли по маршруту и коду ответа.
func (m *Metrics) ObserveHTTPRequest(route string, code int) {
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// FlowObserver адаптирует Metrics к контракту наблюдателя мутаций
// (flow.MutationObserver) без импорта пакета flow.
type FlowObserver struct {
	M *Metrics
}

func (o FlowObserver) ValidationRejected(entity string) {
	o.M.ValidationRejections.WithLabelValues(entity).Inc()
}

func (o FlowObserver) Mutation(entity, op, outcome string) {
	o.M.ConfigMutations.WithLabelValues(entity, op, outcome).Inc()
}
