// Package tools contains the agent's tool surface: the closed registry and
// executor, the plan/execute tool pair, the typed application-management
// tools, the ReAct orchestration loop, and the invocation audit trail.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/veridion/orgagent/llm"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ToolFunc defines the tool function signature.
type ToolFunc func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

// ToolMetadata describes tool metadata.
type ToolMetadata struct {
	Schema      llm.ToolSchema   // Tool JSON Schema
	RateLimit   *RateLimitConfig // Rate limit config (optional)
	Timeout     time.Duration    // Execution timeout (default 30s)
	Description string           // Detailed description
}

// RateLimitConfig defines rate limit configuration.
type RateLimitConfig struct {
	MaxCalls int           // Maximum calls
	Window   time.Duration // Time window
}

// ToolResult represents tool execution result.
type ToolResult struct {
	ToolCallID string          `json:"tool_call_id"`
	Name       string          `json:"name"`
	Result     json.RawMessage `json:"result"`
	Error      string          `json:"error,omitempty"`
	Duration   time.Duration   `json:"duration"`
}

// ToolRegistry defines the tool registry interface. The set of tools is
// closed: registration happens at startup and dispatch rejects unknown names.
type ToolRegistry interface {
	Register(name string, fn ToolFunc, metadata ToolMetadata) error
	Get(name string) (ToolFunc, ToolMetadata, error)
	List() []llm.ToolSchema
	Has(name string) bool
}

// ToolExecutor defines the tool executor interface.
type ToolExecutor interface {
	Execute(ctx context.Context, calls []llm.ToolCall) []ToolResult
	ExecuteOne(ctx context.Context, call llm.ToolCall) ToolResult
}

// MetricsRecorder receives per-tool execution outcomes.
type MetricsRecorder interface {
	RecordToolExecution(tool, status string, duration time.Duration)
}

// ====== DefaultRegistry ======

type DefaultRegistry struct {
	mu       sync.RWMutex
	tools    map[string]ToolFunc
	metadata map[string]ToolMetadata
	limiters map[string]*rate.Limiter
	logger   *zap.Logger
}

// NewDefaultRegistry creates the default tool registry.
func NewDefaultRegistry(logger *zap.Logger) *DefaultRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DefaultRegistry{
		tools:    make(map[string]ToolFunc),
		metadata: make(map[string]ToolMetadata),
		limiters: make(map[string]*rate.Limiter),
		logger:   logger,
	}
}

func (r *DefaultRegistry) Register(name string, fn ToolFunc, metadata ToolMetadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}

	if metadata.Schema.Name == "" {
		metadata.Schema.Name = name
	}
	if metadata.Schema.Name != name {
		return fmt.Errorf("tool name mismatch: schema.Name=%s, register name=%s", metadata.Schema.Name, name)
	}

	if metadata.Timeout == 0 {
		metadata.Timeout = 30 * time.Second
	}

	r.tools[name] = fn
	r.metadata[name] = metadata

	if metadata.RateLimit != nil {
		rps := float64(metadata.RateLimit.MaxCalls) / metadata.RateLimit.Window.Seconds()
		r.limiters[name] = rate.NewLimiter(rate.Limit(rps), metadata.RateLimit.MaxCalls)
	}

	r.logger.Info("tool registered", zap.String("name", name), zap.Duration("timeout", metadata.Timeout))
	return nil
}

func (r *DefaultRegistry) Get(name string) (ToolFunc, ToolMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.tools[name]
	if !ok {
		return nil, ToolMetadata{}, fmt.Errorf("tool %s not found", name)
	}

	meta := r.metadata[name]
	return fn, meta, nil
}

func (r *DefaultRegistry) List() []llm.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]llm.ToolSchema, 0, len(r.metadata))
	for _, meta := range r.metadata {
		schemas = append(schemas, meta.Schema)
	}
	return schemas
}

func (r *DefaultRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// checkRateLimit reports whether the tool's limiter has a token available.
func (r *DefaultRegistry) checkRateLimit(name string) error {
	r.mu.RLock()
	limiter, ok := r.limiters[name]
	r.mu.RUnlock()

	if !ok {
		return nil
	}
	if !limiter.Allow() {
		return fmt.Errorf("rate limit exceeded for tool %s", name)
	}
	return nil
}

// ====== DefaultExecutor ======

type DefaultExecutor struct {
	registry ToolRegistry
	audit    *AuditLogger    // optional
	metrics  MetricsRecorder // optional
	logger   *zap.Logger
}

// NewDefaultExecutor creates the default tool executor. audit and metrics
// may be nil.
func NewDefaultExecutor(registry ToolRegistry, audit *AuditLogger, metrics MetricsRecorder, logger *zap.Logger) *DefaultExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DefaultExecutor{
		registry: registry,
		audit:    audit,
		metrics:  metrics,
		logger:   logger,
	}
}

func (e *DefaultExecutor) Execute(ctx context.Context, calls []llm.ToolCall) []ToolResult {
	results := make([]ToolResult, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(idx int, c llm.ToolCall) {
			defer wg.Done()
			results[idx] = e.ExecuteOne(ctx, c)
		}(i, call)
	}
	wg.Wait()

	return results
}

func (e *DefaultExecutor) ExecuteOne(ctx context.Context, call llm.ToolCall) ToolResult {
	start := time.Now()
	result := ToolResult{
		ToolCallID: call.ID,
		Name:       call.Name,
	}

	fn, meta, err := e.registry.Get(call.Name)
	if err != nil {
		result.Error = fmt.Sprintf("tool not found: %s", err.Error())
		result.Duration = time.Since(start)
		e.logger.Error("tool not found", zap.String("name", call.Name), zap.Error(err))
		e.record(ctx, call, result)
		return result
	}

	if reg, ok := e.registry.(*DefaultRegistry); ok {
		if err := reg.checkRateLimit(call.Name); err != nil {
			result.Error = fmt.Sprintf("rate limit exceeded: %s", err.Error())
			result.Duration = time.Since(start)
			e.logger.Warn("rate limit exceeded", zap.String("name", call.Name))
			e.record(ctx, call, result)
			return result
		}
	}

	// Arguments must at least be valid JSON before they reach a tool.
	if len(call.Arguments) > 0 {
		var tmp interface{}
		if err := json.Unmarshal(call.Arguments, &tmp); err != nil {
			result.Error = fmt.Sprintf("invalid arguments: %s", err.Error())
			result.Duration = time.Since(start)
			e.logger.Error("invalid tool arguments", zap.String("name", call.Name), zap.Error(err))
			e.record(ctx, call, result)
			return result
		}
	}

	execCtx, cancel := context.WithTimeout(ctx, meta.Timeout)
	defer cancel()

	// Buffered channel so the goroutine can exit even if nobody receives
	// after a timeout.
	doneChan := make(chan struct {
		res json.RawMessage
		err error
	}, 1)

	go func() {
		res, err := fn(execCtx, call.Arguments)
		select {
		case doneChan <- struct {
			res json.RawMessage
			err error
		}{res, err}:
		case <-execCtx.Done():
		}
	}()

	select {
	case done := <-doneChan:
		if done.err != nil {
			result.Error = done.err.Error()
			result.Duration = time.Since(start)
			e.logger.Error("tool execution failed",
				zap.String("name", call.Name),
				zap.Error(done.err),
				zap.Duration("duration", result.Duration))
		} else {
			result.Result = done.res
			result.Duration = time.Since(start)
			e.logger.Info("tool executed",
				zap.String("name", call.Name),
				zap.Duration("duration", result.Duration))
		}

	case <-execCtx.Done():
		result.Error = fmt.Sprintf("execution timeout after %s", meta.Timeout)
		result.Duration = time.Since(start)
		e.logger.Error("tool execution timeout",
			zap.String("name", call.Name),
			zap.Duration("timeout", meta.Timeout))
	}

	e.record(ctx, call, result)
	return result
}

// record forwards the outcome to the audit trail and metrics, when wired.
func (e *DefaultExecutor) record(ctx context.Context, call llm.ToolCall, result ToolResult) {
	status := "ok"
	if result.Error != "" {
		status = "error"
	}
	if e.metrics != nil {
		e.metrics.RecordToolExecution(result.Name, status, result.Duration)
	}
	if e.audit != nil {
		e.audit.LogResult(ctx, call.Arguments, result)
	}
}
