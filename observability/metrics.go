// Package observability exposes Prometheus metrics for allocations, payroll
// runs and the HTTP API. Registries are created lazily and every recorder is
// safe to call on a nil receiver.
package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/warp/disbursement-engine/disbursement"
)

const namespace = "disbursement"

// AllocationMetrics tracks allocator outcomes and payroll batch runs.
type AllocationMetrics struct {
	allocations *prometheus.CounterVec
	errors      *prometheus.CounterVec
	residual    prometheus.Histogram
	runDuration prometheus.Histogram
	runPayslips *prometheus.CounterVec
}

// HTTPMetrics tracks API request volume and latency.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	throttle prometheus.Counter
}

var (
	allocationMetricsOnce sync.Once
	allocationRegistry    *AllocationMetrics

	httpMetricsOnce sync.Once
	httpRegistry    *HTTPMetrics
)

// Allocations returns the lazily-initialised allocation metrics registry.
func Allocations() *AllocationMetrics {
	allocationMetricsOnce.Do(func() {
		allocationRegistry = &AllocationMetrics{
			allocations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "allocator",
				Name:      "allocations_total",
				Help:      "Allocation attempts segmented by outcome.",
			}, []string{"outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "allocator",
				Name:      "errors_total",
				Help:      "Rejected allocations segmented by error code.",
			}, []string{"code"}),
			residual: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "allocator",
				Name:      "residual_minor_units",
				Help:      "Absolute rounding residual absorbed per allocation, in minor units.",
				Buckets:   []float64{0, 1, 2, 3, 5, 10},
			}),
			runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "payroll",
				Name:      "run_duration_seconds",
				Help:      "Wall time of payroll batch runs.",
				Buckets:   prometheus.DefBuckets,
			}),
			runPayslips: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "payroll",
				Name:      "payslips_total",
				Help:      "Payslips processed by batch runs segmented by status.",
			}, []string{"status"}),
		}
		prometheus.MustRegister(
			allocationRegistry.allocations,
			allocationRegistry.errors,
			allocationRegistry.residual,
			allocationRegistry.runDuration,
			allocationRegistry.runPayslips,
		)
	})
	return allocationRegistry
}

// RecordAllocation records the outcome of one allocator call.
func (m *AllocationMetrics) RecordAllocation(result disbursement.Result, precision int32, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.allocations.WithLabelValues("error").Inc()
		code := disbursement.Code(err)
		if code == "" {
			code = "internal"
		}
		m.errors.WithLabelValues(code).Inc()
		return
	}
	m.allocations.WithLabelValues("ok").Inc()
	units := result.Residual.Abs().Shift(precision)
	m.residual.Observe(units.InexactFloat64())
}

// ObserveRun records a finished batch run.
func (m *AllocationMetrics) ObserveRun(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runDuration.Observe(elapsed.Seconds())
}

// RecordPayslip counts one payslip outcome of a batch run.
func (m *AllocationMetrics) RecordPayslip(status string) {
	if m == nil {
		return
	}
	if status == "" {
		status = "unknown"
	}
	m.runPayslips.WithLabelValues(status).Inc()
}

// HTTP returns the lazily-initialised HTTP metrics registry.
func HTTP() *HTTPMetrics {
	httpMetricsOnce.Do(func() {
		httpRegistry = &HTTPMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "API requests segmented by route and status code.",
			}, []string{"route", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route", "method"}),
			throttle: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "throttled_total",
				Help:      "Requests rejected by the rate limiter.",
			}),
		}
		prometheus.MustRegister(httpRegistry.requests, httpRegistry.latency, httpRegistry.throttle)
	})
	return httpRegistry
}

// Observe records one served request.
func (m *HTTPMetrics) Observe(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

// RecordThrottle counts a request rejected by the rate limiter.
func (m *HTTPMetrics) RecordThrottle() {
	if m == nil {
		return
	}
	m.throttle.Inc()
}

