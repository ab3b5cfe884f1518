package tools

import (
	"context"
	"fmt"

	"github.com/veridion/orgagent/llm"
	"go.uber.org/zap"
)

// Spec-assistant tool names. The system prompt routes between them by domain.
const (
	AppMgtAssistantToolName = "app_mgt_api_spec_assistant"
	SCIM2AssistantToolName  = "scim2_api_spec_assistant"
)

// AppMgtAssistantDescription describes the application-management planner.
const AppMgtAssistantDescription = "Useful for determining API details (method, path, params) for Application Management actions (listing apps, creating apps, deleting apps, managing app settings)."

// SCIM2AssistantDescription describes the SCIM2 planner.
const SCIM2AssistantDescription = "Useful for determining API details (method, path, params) for SCIM2 actions (managing Users, Groups, Roles - e.g., listing users, getting user details, creating groups)."

// agentSystemPrompt steers the orchestrating model through the
// plan-then-execute pipeline using native function calling.
const agentSystemPrompt = `You are an assistant for managing an identity server organization. Answer the user's questions and carry out their commands using the available tools. Think step-by-step and break down complex tasks.

1. Determine if the request relates to Application Management OR SCIM2 (Users, Groups, Roles).
2. For common application operations (listing, searching, creating, or deleting applications), prefer the dedicated tools: 'list_applications', 'search_applications', 'create_application', 'delete_application'.
3. For anything else, choose the correct API assistant tool: 'app_mgt_api_spec_assistant' for applications, 'scim2_api_spec_assistant' for users/groups/roles. Give it a clear description of the single action (e.g., 'find how to list users').
4. The assistant tool returns a JSON string with the API details (method, path including prefix like /api/server/v1 or /scim2, params needed).
5. Use the 'identity_api_executor' tool to make the API call. Its input MUST be the exact JSON string obtained from the assistant tool, passed as the value of 'api_call_details_json'.
6. If the action requires specific parameter VALUES (like an ID from a name, or data for creation), plan the steps to get that data first, then call the executor with the necessary 'query_params', 'path_params', or 'request_body' keys and their values included in the JSON string.

If an observation from 'identity_api_executor' starts with 'API Request Failed:', the API call failed. Stop planning, report the failure clearly, mention the requested action, and include the error details. Do not attempt any more tool calls.

When the goal is achieved, give a helpful final answer: summarize results and confirm actions taken. Check the conversation history for context.`

// AgentConfig configures the conversational agent.
type AgentConfig struct {
	Model         string
	MaxIterations int // orchestration loop cap (default 10)
	HistoryWindow int // user/assistant exchanges kept (default 5)
}

// Agent answers one conversation turn by running the orchestration loop over
// the registered tools.
type Agent struct {
	react    *ReActExecutor
	registry ToolRegistry
	config   AgentConfig
	logger   *zap.Logger
}

// NewAgent creates the conversational agent.
func NewAgent(provider llm.Provider, registry ToolRegistry, executor ToolExecutor, cfg AgentConfig, logger *zap.Logger) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxIterations == 0 {
		cfg.MaxIterations = 10
	}
	if cfg.HistoryWindow == 0 {
		cfg.HistoryWindow = 5
	}

	react := NewReActExecutor(provider, executor, ReActConfig{
		MaxIterations: cfg.MaxIterations,
	}, logger)

	return &Agent{
		react:    react,
		registry: registry,
		config:   cfg,
		logger:   logger.With(zap.String("component", "agent")),
	}
}

// Run answers the conversation's latest user message. history holds the
// user/assistant turns in order, newest last; only the most recent window is
// sent to the model.
func (a *Agent) Run(ctx context.Context, history []llm.Message) (string, error) {
	messages := make([]llm.Message, 0, len(history)+1)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: agentSystemPrompt})
	messages = append(messages, trimHistory(history, a.config.HistoryWindow)...)

	resp, steps, err := a.react.Execute(ctx, &llm.ChatRequest{
		Model:       a.config.Model,
		Temperature: 0,
		Messages:    messages,
		Tools:       a.registry.List(),
	})
	if err != nil {
		return "", fmt.Errorf("agent run: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("agent run: empty response")
	}

	a.logger.Info("conversation turn answered",
		zap.Int("steps", len(steps)),
		zap.Int("history_messages", len(history)),
	)
	return resp.Choices[0].Message.Content, nil
}

// trimHistory keeps the last window user messages and everything after the
// earliest of them, preserving assistant turns that belong to those exchanges.
func trimHistory(history []llm.Message, window int) []llm.Message {
	if window <= 0 {
		return history
	}
	seen := 0
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == llm.RoleUser {
			seen++
			if seen == window {
				return history[i:]
			}
		}
	}
	return history
}
