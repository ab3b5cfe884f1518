package llm

import (
	"context"
	"encoding/json"
	"time"
)

// ErrorCode aligns provider failures with HTTP status and retry policy.
type ErrorCode string

const (
	ErrInvalidRequest      ErrorCode = "LLM_INVALID_REQUEST"
	ErrUnauthorized        ErrorCode = "LLM_UNAUTHORIZED"
	ErrForbidden           ErrorCode = "LLM_FORBIDDEN"
	ErrRateLimited         ErrorCode = "LLM_RATE_LIMITED"
	ErrQuotaExceeded       ErrorCode = "LLM_QUOTA_EXCEEDED"
	ErrContentFiltered     ErrorCode = "LLM_CONTENT_FILTERED"
	ErrModelOverloaded     ErrorCode = "LLM_MODEL_OVERLOADED"
	ErrUpstreamTimeout     ErrorCode = "LLM_UPSTREAM_TIMEOUT"
	ErrUpstreamError       ErrorCode = "LLM_UPSTREAM_ERROR"
	ErrProviderUnavailable ErrorCode = "LLM_PROVIDER_UNAVAILABLE"
)

type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
}

func (e *Error) Error() string { return e.Message }

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // links a tool result to its call
}

type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"` // JSON Schema
}

type ChatRequest struct {
	TraceID     string        `json:"trace_id"`
	TenantID    string        `json:"tenant_id,omitempty"`
	Model       string        `json:"model"`
	Messages    []Message     `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
	TopP        float32       `json:"top_p,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
	Tools       []ToolSchema  `json:"tools,omitempty"`
	ToolChoice  string        `json:"tool_choice,omitempty"` // auto/none/<tool name>
	Timeout     time.Duration `json:"timeout,omitempty"`
}

type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

type ChatChoice struct {
	Index        int     `json:"index"`
	FinishReason string  `json:"finish_reason,omitempty"`
	Message      Message `json:"message"`
}

type ChatResponse struct {
	ID        string       `json:"id,omitempty"`
	Provider  string       `json:"provider,omitempty"`
	Model     string       `json:"model"`
	Choices   []ChatChoice `json:"choices"`
	Usage     ChatUsage    `json:"usage,omitempty"`
	CreatedAt time.Time    `json:"created_at,omitempty"`
}

type StreamChunk struct {
	ID           string     `json:"id,omitempty"`
	Provider     string     `json:"provider,omitempty"`
	Model        string     `json:"model,omitempty"`
	Index        int        `json:"index,omitempty"`
	Delta        Message    `json:"delta"`
	FinishReason string     `json:"finish_reason,omitempty"`
	Usage        *ChatUsage `json:"usage,omitempty"` // final chunk may carry usage
	Err          *Error     `json:"error,omitempty"`
}

// HealthStatus is the result of a provider health probe.
type HealthStatus struct {
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
}

// Provider is the unified LLM adapter interface. Tools are passed via
// ChatRequest.Tools; the model returns ToolCalls in its response, and
// tool execution is the job of a separate executor (see the tools package).
type Provider interface {
	// Completion issues a synchronous chat request and returns the full response.
	Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Stream issues a streaming chat request and returns a channel of deltas.
	Stream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error)

	// HealthCheck performs a lightweight availability probe.
	HealthCheck(ctx context.Context) (*HealthStatus, error)

	// Name returns the provider's unique identifier.
	Name() string

	// SupportsNativeFunctionCalling reports whether the provider handles
	// tool calls natively. When Tools is non-empty and this returns false,
	// callers must reject the request.
	SupportsNativeFunctionCalling() bool
}
