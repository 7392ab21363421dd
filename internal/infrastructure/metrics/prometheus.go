// Package metrics expone métricas Prometheus del servicio de facturación.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jhoicas/facturacion-mecef/internal/application/billing"
)

var _ billing.Metrics = (*Metrics)(nil)

// Metrics registry propio con los contadores del ciclo de vida y de HTTP.
type Metrics struct {
	registry         *prometheus.Registry
	handler          http.Handler
	certification    *prometheus.HistogramVec
	allocationRetry  prometheus.Counter
	finalize         *prometheus.CounterVec
	payments         *prometheus.CounterVec
	requestsTotal    *prometheus.CounterVec
	requestDurations *prometheus.HistogramVec
}

// New registra todas las métricas en un registry nuevo.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		certification: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mecef_certification_duration_seconds",
			Help:    "Duración de la certificación e-MECeF por resultado.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 15, 30},
		}, []string{"outcome"}),
		allocationRetry: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "invoice_number_allocation_retries_total",
			Help: "Reintentos de asignación de número por conflicto.",
		}),
		finalize: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "invoice_finalize_total",
			Help: "Finalizaciones por tipo de documento y resultado.",
		}, []string{"type", "outcome"}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "invoice_payments_total",
			Help: "Pagos registrados por resultado.",
		}, []string{"outcome"}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Peticiones HTTP por ruta, método y código.",
		}, []string{"route", "method", "code"}),
		requestDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duración de peticiones HTTP por ruta.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
	registry.MustRegister(
		m.certification, m.allocationRetry, m.finalize, m.payments,
		m.requestsTotal, m.requestDurations,
		collectors.NewGoCollector(),
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

func (m *Metrics) ObserveCertification(outcome string, seconds float64) {
	m.certification.WithLabelValues(outcome).Observe(seconds)
}

func (m *Metrics) IncAllocationRetry() { m.allocationRetry.Inc() }

func (m *Metrics) IncFinalize(invoiceType, outcome string) {
	m.finalize.WithLabelValues(invoiceType, outcome).Inc()
}

func (m *Metrics) IncPayment(outcome string) { m.payments.WithLabelValues(outcome).Inc() }

// Handler para GET /metrics.
func (m *Metrics) Handler() http.Handler { return m.handler }

// Registerer expone el registry para métricas adicionales.
func (m *Metrics) Registerer() prometheus.Registerer { return m.registry }

// Middleware mide cada petición usando el patrón de ruta de Fiber como etiqueta.
func (m *Metrics) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}
		route := c.Route().Path
		m.requestsTotal.WithLabelValues(route, c.Method(), strconv.Itoa(status)).Inc()
		m.requestDurations.WithLabelValues(route, c.Method()).Observe(time.Since(start).Seconds())
		return err
	}
}
