package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "erptools"

type moduleMetrics struct {
	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec
	toolErrorsTotal       *prometheus.CounterVec

	platformRequestTotal    *prometheus.CounterVec
	platformRequestDuration *prometheus.HistogramVec
	platformUp              prometheus.Gauge

	rpcRequestTotal   *prometheus.CounterVec
	rpcRejectedTotal  *prometheus.CounterVec
	wsConnections     prometheus.Gauge
	registeredTools   prometheus.Gauge
	configReloadTotal *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			toolExecutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "tool_execution_total",
					Help:      "Total tool executions by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolExecutionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "tool_execution_duration_seconds",
					Help:      "Tool execution duration in seconds by tool.",
					Buckets:   prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			toolErrorsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "tool_errors_total",
					Help:      "Total tool execution errors by tool.",
				},
				[]string{"tool"},
			),
			platformRequestTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "platform_request_total",
					Help:      "Total requests sent to the ERP platform by operation and HTTP status.",
				},
				[]string{"operation", "code"},
			),
			platformRequestDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "platform_request_duration_seconds",
					Help:      "ERP platform request duration in seconds by operation.",
					Buckets:   prometheus.DefBuckets,
				},
				[]string{"operation"},
			),
			platformUp: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Namespace: namespace,
					Name:      "platform_up",
					Help:      "Result of the last platform health probe (1 reachable, 0 unreachable).",
				},
			),
			rpcRequestTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "rpc_request_total",
					Help:      "Total gateway RPC requests by method and status.",
				},
				[]string{"method", "status"},
			),
			rpcRejectedTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "rpc_rejected_total",
					Help:      "Total gateway requests rejected before dispatch by reason.",
				},
				[]string{"reason"},
			),
			wsConnections: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Namespace: namespace,
					Name:      "ws_connections",
					Help:      "Current WebSocket client connections.",
				},
			),
			registeredTools: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Namespace: namespace,
					Name:      "registered_tools",
					Help:      "Number of tools currently registered.",
				},
			),
			configReloadTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "config_reload_total",
					Help:      "Total configuration reloads by status.",
				},
				[]string{"status"},
			),
		}

		prometheus.MustRegister(
			m.toolExecutionTotal,
			m.toolExecutionDuration,
			m.toolErrorsTotal,
			m.platformRequestTotal,
			m.platformRequestDuration,
			m.platformUp,
			m.rpcRequestTotal,
			m.rpcRejectedTotal,
			m.wsConnections,
			m.registeredTools,
			m.configReloadTotal,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordToolExecution(tool string, duration time.Duration, success bool) {
	m := getMetrics()
	status := statusOf(success)
	m.toolExecutionTotal.WithLabelValues(tool, status).Inc()
	m.toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
	if !success {
		m.toolErrorsTotal.WithLabelValues(tool).Inc()
	}
}

// RecordPlatformRequest records one HTTP round trip to the ERP platform.
// code is 0 when no response was received.
func RecordPlatformRequest(operation string, code int, duration time.Duration) {
	m := getMetrics()
	m.platformRequestTotal.WithLabelValues(operation, strconv.Itoa(code)).Inc()
	m.platformRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func SetPlatformUp(up bool) {
	m := getMetrics()
	value := 0.0
	if up {
		value = 1.0
	}
	m.platformUp.Set(value)
}

func RecordRPCRequest(method string, success bool) {
	getMetrics().rpcRequestTotal.WithLabelValues(method, statusOf(success)).Inc()
}

func RecordRPCRejected(reason string) {
	getMetrics().rpcRejectedTotal.WithLabelValues(reason).Inc()
}

func SetWSConnections(count int) {
	getMetrics().wsConnections.Set(float64(count))
}

func SetRegisteredTools(count int) {
	getMetrics().registeredTools.Set(float64(count))
}

func RecordConfigReload(success bool) {
	getMetrics().configReloadTotal.WithLabelValues(statusOf(success)).Inc()
}

func statusOf(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
