package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
)

// One collector for the whole package: promauto registers into the default
// registry, so a second NewCollector with the same namespace would panic.
var testCollector = NewCollector("orgagent_test", zap.NewNop())

func TestRecordHTTPRequest(t *testing.T) {
	testCollector.RecordHTTPRequest("POST", "/chat", 200, 120*time.Millisecond)
	testCollector.RecordHTTPRequest("POST", "/chat", 200, 80*time.Millisecond)
	testCollector.RecordHTTPRequest("POST", "/chat", 500, 10*time.Millisecond)

	if got := testutil.ToFloat64(testCollector.httpRequestsTotal.WithLabelValues("POST", "/chat", "2xx")); got != 2 {
		t.Fatalf("got %v 2xx requests", got)
	}
	if got := testutil.ToFloat64(testCollector.httpRequestsTotal.WithLabelValues("POST", "/chat", "5xx")); got != 1 {
		t.Fatalf("got %v 5xx requests", got)
	}
	if got := testutil.CollectAndCount(testCollector.httpRequestDuration); got == 0 {
		t.Fatalf("duration histogram not populated")
	}
}

func TestRecordLLMRequest(t *testing.T) {
	testCollector.RecordLLMRequest("azure", "gpt-4o", "ok", time.Second, 120, 45)

	if got := testutil.ToFloat64(testCollector.llmRequestsTotal.WithLabelValues("azure", "gpt-4o", "ok")); got != 1 {
		t.Fatalf("got %v requests", got)
	}
	if got := testutil.ToFloat64(testCollector.llmTokensUsed.WithLabelValues("azure", "gpt-4o", "prompt")); got != 120 {
		t.Fatalf("got %v prompt tokens", got)
	}
	if got := testutil.ToFloat64(testCollector.llmTokensUsed.WithLabelValues("azure", "gpt-4o", "completion")); got != 45 {
		t.Fatalf("got %v completion tokens", got)
	}
}

func TestRecordToolExecution(t *testing.T) {
	testCollector.RecordToolExecution("list_applications", "ok", 40*time.Millisecond)
	testCollector.RecordToolExecution("list_applications", "error", 5*time.Millisecond)

	if got := testutil.ToFloat64(testCollector.toolExecutionsTotal.WithLabelValues("list_applications", "ok")); got != 1 {
		t.Fatalf("got %v ok executions", got)
	}
	if got := testutil.ToFloat64(testCollector.toolExecutionsTotal.WithLabelValues("list_applications", "error")); got != 1 {
		t.Fatalf("got %v failed executions", got)
	}
}

func TestRecordTokenExchange(t *testing.T) {
	testCollector.RecordTokenExchange("ok", 30*time.Millisecond)
	testCollector.RecordTokenExchange("error", 5*time.Millisecond)

	if got := testutil.ToFloat64(testCollector.tokenExchangesTotal.WithLabelValues("ok")); got != 1 {
		t.Fatalf("got %v ok exchanges", got)
	}
	if got := testutil.ToFloat64(testCollector.tokenExchangesTotal.WithLabelValues("error")); got != 1 {
		t.Fatalf("got %v failed exchanges", got)
	}
}

func TestStatusCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"},
		{204, "2xx"},
		{301, "3xx"},
		{404, "4xx"},
		{429, "4xx"},
		{500, "5xx"},
		{502, "5xx"},
		{100, "unknown"},
	}
	for _, tt := range tests {
		if got := statusCode(tt.code); got != tt.want {
			t.Errorf("statusCode(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}
