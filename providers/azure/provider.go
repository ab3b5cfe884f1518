// Package azure implements the llm.Provider interface against the Azure
// OpenAI chat-completions API (OpenAI-compatible wire format, keyed by
// deployment rather than model name).
package azure

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/veridion/orgagent/llm"
	"go.uber.org/zap"
)

// Config holds the Azure OpenAI connection settings.
type Config struct {
	// Endpoint is the resource endpoint, e.g. https://myresource.openai.azure.com
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	// Deployment is the model deployment name.
	Deployment string `yaml:"deployment" json:"deployment"`
	// APIVersion selects the REST API version, e.g. 2024-06-01.
	APIVersion string `yaml:"api_version" json:"api_version"`
	// APIKey authenticates via the api-key header.
	APIKey string `yaml:"api_key" json:"api_key"`
	// Timeout bounds every HTTP call (default 30s).
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// MetricsRecorder receives per-completion outcomes.
type MetricsRecorder interface {
	RecordLLMRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int)
}

// Provider calls Azure OpenAI chat completions.
type Provider struct {
	cfg     Config
	client  *http.Client
	logger  *zap.Logger
	metrics MetricsRecorder // optional
}

// NewProvider creates an Azure OpenAI provider instance.
func NewProvider(cfg Config, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "2024-06-01"
	}
	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// WithMetrics attaches a metrics recorder and returns the provider.
func (p *Provider) WithMetrics(m MetricsRecorder) *Provider {
	p.metrics = m
	return p
}

// recordCompletion reports one completion outcome to the recorder, when wired.
func (p *Provider) recordCompletion(start time.Time, resp *llm.ChatResponse, err error) {
	if p.metrics == nil {
		return
	}
	status := "ok"
	var promptTokens, completionTokens int
	if err != nil {
		status = "error"
	} else if resp != nil {
		promptTokens = resp.Usage.PromptTokens
		completionTokens = resp.Usage.CompletionTokens
	}
	p.metrics.RecordLLMRequest(p.Name(), p.cfg.Deployment, status, time.Since(start), promptTokens, completionTokens)
}

func (p *Provider) Name() string { return "azure-openai" }

func (p *Provider) SupportsNativeFunctionCalling() bool { return true }

// completionsURL builds the deployment-scoped chat completions endpoint.
func (p *Provider) completionsURL() string {
	return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		strings.TrimRight(p.cfg.Endpoint, "/"), p.cfg.Deployment, p.cfg.APIVersion)
}

func (p *Provider) buildHeaders(req *http.Request) {
	req.Header.Set("api-key", p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
}

// HealthCheck issues a minimal one-token completion against the deployment.
// Azure has no cheap unauthenticated probe, so this doubles as a credential check.
func (p *Provider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	body := openAIRequest{
		Messages:  []openAIMessage{{Role: "user", Content: "ping"}},
		MaxTokens: 1,
	}
	payload, _ := json.Marshal(body)
	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, p.completionsURL(), bytes.NewReader(payload))
	p.buildHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return &llm.HealthStatus{Healthy: false, Latency: latency}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := readErrMsg(resp.Body)
		return &llm.HealthStatus{Healthy: false, Latency: latency},
			fmt.Errorf("azure health check failed: status=%d msg=%s", resp.StatusCode, msg)
	}
	return &llm.HealthStatus{Healthy: true, Latency: latency}, nil
}

// OpenAI-compatible wire types
type openAIMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content,omitempty"`
	Name       string           `json:"name,omitempty"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openAIToolCall struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Function openAIFunction `json:"function"`
}

type openAIFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type openAIToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type openAITool struct {
	Type     string             `json:"type"`
	Function openAIToolFunction `json:"function"`
}

type openAIRequest struct {
	Messages    []openAIMessage `json:"messages"`
	Tools       []openAITool    `json:"tools,omitempty"`
	ToolChoice  interface{}     `json:"tool_choice,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature *float32        `json:"temperature,omitempty"`
	TopP        float32         `json:"top_p,omitempty"`
	Stop        []string        `json:"stop,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
}

type openAIChoice struct {
	Index        int            `json:"index"`
	FinishReason string         `json:"finish_reason"`
	Message      openAIMessage  `json:"message"`
	Delta        *openAIMessage `json:"delta,omitempty"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openAIResponse struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []openAIChoice `json:"choices"`
	Usage   *openAIUsage   `json:"usage,omitempty"`
	Created int64          `json:"created,omitempty"`
}

type openAIErrorResp struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

func convertMessages(msgs []llm.Message) []openAIMessage {
	out := make([]openAIMessage, 0, len(msgs))
	for _, m := range msgs {
		oa := openAIMessage{
			Role:       string(m.Role),
			Name:       m.Name,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		if len(m.ToolCalls) > 0 {
			oa.ToolCalls = make([]openAIToolCall, 0, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				oa.ToolCalls = append(oa.ToolCalls, openAIToolCall{
					ID:   tc.ID,
					Type: "function",
					Function: openAIFunction{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
		}
		out = append(out, oa)
	}
	return out
}

func convertTools(tools []llm.ToolSchema) []openAITool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openAITool, 0, len(tools))
	for _, t := range tools {
		out = append(out, openAITool{
			Type: "function",
			Function: openAIToolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

func mapError(status int, msg string, provider string) *llm.Error {
	switch status {
	case http.StatusUnauthorized:
		return &llm.Error{Code: llm.ErrUnauthorized, Message: msg, HTTPStatus: status, Provider: provider}
	case http.StatusForbidden:
		return &llm.Error{Code: llm.ErrForbidden, Message: msg, HTTPStatus: status, Provider: provider}
	case http.StatusTooManyRequests:
		return &llm.Error{Code: llm.ErrRateLimited, Message: msg, HTTPStatus: status, Retryable: true, Provider: provider}
	case http.StatusBadRequest:
		if strings.Contains(strings.ToLower(msg), "quota") {
			return &llm.Error{Code: llm.ErrQuotaExceeded, Message: msg, HTTPStatus: status, Provider: provider}
		}
		if strings.Contains(strings.ToLower(msg), "content filter") {
			return &llm.Error{Code: llm.ErrContentFiltered, Message: msg, HTTPStatus: status, Provider: provider}
		}
		return &llm.Error{Code: llm.ErrInvalidRequest, Message: msg, HTTPStatus: status, Provider: provider}
	case http.StatusServiceUnavailable, http.StatusBadGateway:
		return &llm.Error{Code: llm.ErrUpstreamError, Message: msg, HTTPStatus: status, Retryable: true, Provider: provider}
	case http.StatusGatewayTimeout:
		return &llm.Error{Code: llm.ErrUpstreamTimeout, Message: msg, HTTPStatus: status, Retryable: true, Provider: provider}
	default:
		return &llm.Error{Code: llm.ErrUpstreamError, Message: msg, HTTPStatus: status, Retryable: status >= 500, Provider: provider}
	}
}

func (p *Provider) buildBody(req *llm.ChatRequest, stream bool) openAIRequest {
	// Temperature 0 is meaningful for planning, so the pointer keeps it on the wire.
	temp := req.Temperature
	body := openAIRequest{
		Messages:    convertMessages(req.Messages),
		Tools:       convertTools(req.Tools),
		MaxTokens:   req.MaxTokens,
		Temperature: &temp,
		TopP:        req.TopP,
		Stop:        req.Stop,
		Stream:      stream,
	}
	if req.ToolChoice != "" {
		body.ToolChoice = req.ToolChoice
	}
	return body
}

func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	start := time.Now()
	resp, err := p.completion(ctx, req)
	p.recordCompletion(start, resp, err)
	return resp, err
}

func (p *Provider) completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	payload, _ := json.Marshal(p.buildBody(req, false))

	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, p.completionsURL(), bytes.NewReader(payload))
	p.buildHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &llm.Error{Code: llm.ErrUpstreamError, Message: err.Error(), HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: p.Name()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := readErrMsg(resp.Body)
		p.logger.Warn("completion request failed",
			zap.Int("status", resp.StatusCode),
			zap.String("deployment", p.cfg.Deployment),
		)
		return nil, mapError(resp.StatusCode, msg, p.Name())
	}

	var oaResp openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&oaResp); err != nil {
		return nil, &llm.Error{Code: llm.ErrUpstreamError, Message: err.Error(), HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: p.Name()}
	}

	return toChatResponse(oaResp, p.Name()), nil
}

func (p *Provider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	payload, _ := json.Marshal(p.buildBody(req, true))

	httpReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, p.completionsURL(), bytes.NewReader(payload))
	p.buildHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		msg := readErrMsg(resp.Body)
		return nil, mapError(resp.StatusCode, msg, p.Name())
	}

	ch := make(chan llm.StreamChunk)
	go func() {
		defer resp.Body.Close()
		defer close(ch)
		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err != io.EOF {
					ch <- llm.StreamChunk{Err: &llm.Error{Code: llm.ErrUpstreamError, Message: err.Error(), HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: p.Name()}}
				}
				return
			}
			line = strings.TrimSpace(line)
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}
			var oaResp openAIResponse
			if err := json.Unmarshal([]byte(data), &oaResp); err != nil {
				ch <- llm.StreamChunk{Err: &llm.Error{Code: llm.ErrUpstreamError, Message: err.Error(), HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: p.Name()}}
				return
			}
			for _, choice := range oaResp.Choices {
				chunk := llm.StreamChunk{
					ID:           oaResp.ID,
					Provider:     p.Name(),
					Model:        oaResp.Model,
					Index:        choice.Index,
					FinishReason: choice.FinishReason,
					Delta:        llm.Message{Role: llm.RoleAssistant},
				}
				if choice.Delta != nil {
					chunk.Delta.Content = choice.Delta.Content
					if len(choice.Delta.ToolCalls) > 0 {
						chunk.Delta.ToolCalls = make([]llm.ToolCall, 0, len(choice.Delta.ToolCalls))
						for _, tc := range choice.Delta.ToolCalls {
							chunk.Delta.ToolCalls = append(chunk.Delta.ToolCalls, llm.ToolCall{
								ID:        tc.ID,
								Name:      tc.Function.Name,
								Arguments: tc.Function.Arguments,
							})
						}
					}
				}
				ch <- chunk
			}
		}
	}()
	return ch, nil
}

func toChatResponse(oa openAIResponse, provider string) *llm.ChatResponse {
	choices := make([]llm.ChatChoice, 0, len(oa.Choices))
	for _, c := range oa.Choices {
		msg := llm.Message{
			Role:    llm.RoleAssistant,
			Content: c.Message.Content,
			Name:    c.Message.Name,
		}
		if len(c.Message.ToolCalls) > 0 {
			msg.ToolCalls = make([]llm.ToolCall, 0, len(c.Message.ToolCalls))
			for _, tc := range c.Message.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{
					ID:        tc.ID,
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				})
			}
		}
		choices = append(choices, llm.ChatChoice{
			Index:        c.Index,
			FinishReason: c.FinishReason,
			Message:      msg,
		})
	}
	resp := &llm.ChatResponse{
		ID:       oa.ID,
		Provider: provider,
		Model:    oa.Model,
		Choices:  choices,
	}
	if oa.Usage != nil {
		resp.Usage = llm.ChatUsage{
			PromptTokens:     oa.Usage.PromptTokens,
			CompletionTokens: oa.Usage.CompletionTokens,
			TotalTokens:      oa.Usage.TotalTokens,
		}
	}
	if oa.Created != 0 {
		resp.CreatedAt = time.Unix(oa.Created, 0)
	}
	return resp
}

func readErrMsg(body io.Reader) string {
	data, _ := io.ReadAll(body)
	var errResp openAIErrorResp
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		return errResp.Error.Message
	}
	return string(data)
}
