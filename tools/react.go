package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/veridion/orgagent/llm"
	"go.uber.org/zap"
)

// FailurePrefix marks a tool observation as a downstream API failure. The
// orchestrator pattern-matches on it to stop planning and surface the error.
const FailurePrefix = "API Request Failed:"

// ReActConfig defines ReAct loop configuration.
type ReActConfig struct {
	MaxIterations int  // Maximum iterations (prevents infinite loops)
	StopOnError   bool // Stop on tool execution error
}

// ReActExecutor implements the ReAct (Reasoning and Acting) loop.
// Automatically handles "LLM -> Tool -> LLM" multi-turn conversations.
type ReActExecutor struct {
	provider     llm.Provider
	toolExecutor ToolExecutor
	logger       *zap.Logger
	config       ReActConfig
}

// NewReActExecutor creates a ReAct executor.
func NewReActExecutor(provider llm.Provider, toolExecutor ToolExecutor, config ReActConfig, logger *zap.Logger) *ReActExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MaxIterations == 0 {
		config.MaxIterations = 10
	}
	return &ReActExecutor{
		provider:     provider,
		toolExecutor: toolExecutor,
		logger:       logger,
		config:       config,
	}
}

// Execute runs the ReAct loop, returning the final response and all steps.
// When a tool observation carries FailurePrefix the loop stops and the final
// answer reports the failed action with the downstream detail.
func (r *ReActExecutor) Execute(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, []ReActStep, error) {
	steps := make([]ReActStep, 0)
	messages := append([]llm.Message{}, req.Messages...)

	for i := 0; i < r.config.MaxIterations; i++ {
		r.logger.Debug("ReAct iteration", zap.Int("iteration", i+1))

		callReq := *req
		callReq.Messages = messages
		resp, err := r.provider.Completion(ctx, &callReq)
		if err != nil {
			return nil, steps, fmt.Errorf("LLM call failed at iteration %d: %w", i+1, err)
		}

		if len(resp.Choices) == 0 {
			return resp, steps, fmt.Errorf("no choices in LLM response")
		}

		choice := resp.Choices[0]
		toolCalls := choice.Message.ToolCalls

		step := ReActStep{
			StepNumber: i + 1,
			Thought:    choice.Message.Content,
			TokensUsed: resp.Usage.TotalTokens,
		}

		if len(toolCalls) == 0 {
			r.logger.Info("ReAct completed", zap.Int("iterations", i+1), zap.String("finish_reason", choice.FinishReason))
			steps = append(steps, step)
			return resp, steps, nil
		}

		r.logger.Info("executing tools", zap.Int("count", len(toolCalls)))
		step.Actions = toolCalls
		toolResults := r.toolExecutor.Execute(ctx, toolCalls)
		step.Observations = toolResults
		steps = append(steps, step)

		// A downstream API failure ends the run: report the attempted
		// action and the error detail instead of planning further.
		if failed, found := firstAPIFailure(toolResults); found {
			r.logger.Warn("downstream API call failed, stopping",
				zap.String("tool", failed.Name),
				zap.Int("iteration", i+1),
			)
			return failureResponse(resp, failed), steps, nil
		}

		hasError := false
		for _, result := range toolResults {
			if result.Error != "" {
				hasError = true
				r.logger.Warn("tool execution failed", zap.String("tool", result.Name), zap.String("error", result.Error))
			}
		}

		if hasError && r.config.StopOnError {
			return resp, steps, fmt.Errorf("tool execution failed, stopping ReAct loop")
		}

		messages = append(messages, choice.Message)
		for _, result := range toolResults {
			messages = append(messages, result.ToMessage())
		}
	}

	r.logger.Warn("ReAct max iterations reached", zap.Int("max", r.config.MaxIterations))
	return nil, steps, fmt.Errorf("max iterations reached (%d)", r.config.MaxIterations)
}

// observationText renders a tool result for the model. Tools answer with
// either a JSON-encoded string or a JSON object; strings are unquoted.
func observationText(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}

// firstAPIFailure returns the first observation carrying FailurePrefix.
func firstAPIFailure(results []ToolResult) (ToolResult, bool) {
	for _, result := range results {
		if strings.HasPrefix(strings.TrimSpace(observationText(result.Result)), FailurePrefix) {
			return result, true
		}
	}
	return ToolResult{}, false
}

// failureResponse synthesizes the final answer for a stopped run.
func failureResponse(last *llm.ChatResponse, failed ToolResult) *llm.ChatResponse {
	content := fmt.Sprintf("The requested action could not be completed. Tool '%s' reported:\n%s",
		failed.Name, strings.TrimSpace(observationText(failed.Result)))
	return &llm.ChatResponse{
		ID:       last.ID,
		Provider: last.Provider,
		Model:    last.Model,
		Choices: []llm.ChatChoice{{
			Index:        0,
			FinishReason: "stop",
			Message:      llm.Message{Role: llm.RoleAssistant, Content: content},
		}},
		Usage: last.Usage,
	}
}

// ReActStep represents one step in the ReAct loop (Thought, Action, Observation).
type ReActStep struct {
	StepNumber   int            `json:"step_number"`
	Thought      string         `json:"thought,omitempty"`
	Actions      []llm.ToolCall `json:"actions,omitempty"`
	Observations []ToolResult   `json:"observations,omitempty"`
	TokensUsed   int            `json:"tokens_used,omitempty"`
}

// ToMessage converts a ToolResult to an LLM tool message.
func (tr ToolResult) ToMessage() llm.Message {
	msg := llm.Message{
		Role:       llm.RoleTool,
		ToolCallID: tr.ToolCallID,
		Name:       tr.Name,
	}
	if tr.Error != "" {
		msg.Content = fmt.Sprintf("Error: %s", tr.Error)
	} else {
		msg.Content = observationText(tr.Result)
	}
	return msg
}
