// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector holds the service's Prometheus instruments.
type Collector struct {
	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// LLM metrics
	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec
	llmTokensUsed      *prometheus.CounterVec

	// Tool metrics
	toolExecutionsTotal   *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec

	// Token-exchange metrics
	tokenExchangesTotal   *prometheus.CounterVec
	tokenExchangeDuration *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector creates the metrics collector.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP metrics
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// LLM metrics
	c.llmRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM requests",
		},
		[]string{"provider", "model", "status"},
	)

	c.llmRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "LLM request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)

	c.llmTokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of tokens used",
		},
		[]string{"provider", "model", "type"}, // type: prompt, completion
	)

	// Tool metrics
	c.toolExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_executions_total",
			Help:      "Total number of tool executions",
		},
		[]string{"tool", "status"},
	)

	c.toolExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_execution_duration_seconds",
			Help:      "Tool execution duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"tool"},
	)

	// Token-exchange metrics
	c.tokenExchangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_exchanges_total",
			Help:      "Total number of client-credentials token exchanges",
		},
		[]string{"status"},
	)

	c.tokenExchangeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "token_exchange_duration_seconds",
			Help:      "Token exchange duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// RecordHTTPRequest records one served HTTP request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordLLMRequest records one provider completion call.
func (c *Collector) RecordLLMRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int) {
	c.llmRequestsTotal.WithLabelValues(provider, model, status).Inc()
	c.llmRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	c.llmTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	c.llmTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
}

// RecordToolExecution records one tool invocation. Satisfies the tool
// executor's metrics hook.
func (c *Collector) RecordToolExecution(tool, status string, duration time.Duration) {
	c.toolExecutionsTotal.WithLabelValues(tool, status).Inc()
	c.toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordTokenExchange records one client-credentials exchange.
func (c *Collector) RecordTokenExchange(status string, duration time.Duration) {
	c.tokenExchangesTotal.WithLabelValues(status).Inc()
	c.tokenExchangeDuration.WithLabelValues().Observe(duration.Seconds())
}

// statusCode buckets an HTTP status code.
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
