package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
	"github.com/veridion/orgagent/llm"
	"github.com/veridion/orgagent/openapi"
	"github.com/veridion/orgagent/types"
	"go.uber.org/zap"
)

// planPromptTemplate instructs the model to resolve one natural-language
// action against an OpenAPI document and answer with a single JSON object.
const planPromptTemplate = `
You are an expert API assistant...
Your task is to analyze the provided OpenAPI specification (in JSON format) and identify the exact details needed to perform a specific action described by the user.

ACTION DESCRIPTION:
%s

OPENAPI SPECIFICATION (JSON format):
` + "```json\n%s\n```" + `

Based ONLY on the provided specification and the action description, determine the following:

The required HTTP method (e.g., "GET", "POST", "PUT", "DELETE").
The relative API path (e.g., "/applications", "/users/{userId}"). Do NOT include any server or base URL. If path parameters exist (like {userId}), include them in the path string exactly as they appear in the spec.
A list of required query parameter names as defined in the spec's 'parameters' section (where in='query' and required=true), if any. Return an empty list if none.
A list of required path parameter names as defined in the spec's 'parameters' section (where in='path' and required=true), if any. Return an empty list if none.
A concise JSON schema description of the expected request body for POST/PUT/PATCH requests, if applicable and defined in the spec's 'requestBody'. Return null if not applicable or not defined.
Respond ONLY with a valid JSON object containing the keys: "method", "path", "query_params", "path_params", "request_body_schema".
Do not add any explanations, introductory text, or markdown formatting around the JSON.

Example Input Action: "list available applications"
Example Output:
{
"method": "GET",
"path": "/api/server/v1/applications",
"query_params": [],
"path_params": [],
"request_body_schema": null
}

Example Input Action: "get details for application with id 12345"
Example Output:
{
"method": "GET",
"path": "/api/server/v1/applications/{applicationId}",
"query_params": [],
"path_params": ["applicationId"],
"request_body_schema": null
}

Example Input Action: "create a new SAML application"
Example Output:
{
"method": "POST",
"path": "/api/server/v1/applications",
"query_params": [],
"path_params": [],
"request_body_schema": { "description": "Details for the new SAML application including name, description, templateId.", "type": "object" }
}

If you cannot confidently determine a single, specific API call from the spec for the given action, respond ONLY with the following JSON:
{ "error": "Could not determine specific API call for the action from the provided spec." }
`

// planPromptTokenBudget is the point past which we warn that the serialized
// document is eating most of the model's context window.
const planPromptTokenBudget = 100_000

// Plan is a resolved API call: the planner's answer for one action.
type Plan struct {
	Method            string          `json:"method"`
	Path              string          `json:"path"`
	QueryParams       []string        `json:"query_params"`
	PathParams        []string        `json:"path_params"`
	RequestBodySchema json.RawMessage `json:"request_body_schema"`
}

// SpecAssistant turns natural-language action descriptions into Plans by
// prompting an LLM with a full OpenAPI document. One assistant is built per
// document; the serialized form is computed once at construction.
type SpecAssistant struct {
	provider llm.Provider
	model    string
	specJSON string
	logger   *zap.Logger
}

// NewSpecAssistant builds a planner over the given document.
func NewSpecAssistant(provider llm.Provider, model string, doc openapi.Document, logger *zap.Logger) *SpecAssistant {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "spec_assistant"))

	specJSON := serializeDocument(doc, logger)
	if est := estimateTokens(specJSON); est > planPromptTokenBudget {
		logger.Warn("serialized API document is large",
			zap.Int("estimated_tokens", est),
			zap.Int("budget", planPromptTokenBudget),
		)
	}

	return &SpecAssistant{
		provider: provider,
		model:    model,
		specJSON: specJSON,
		logger:   logger,
	}
}

// Plan resolves one action description into an API call. A response the model
// marks with an "error" key becomes PLAN_NO_MATCH; a response that is not the
// expected JSON object becomes PLAN_PARSE_FAILURE.
func (a *SpecAssistant) Plan(ctx context.Context, actionDescription string) (*Plan, error) {
	prompt := fmt.Sprintf(planPromptTemplate, actionDescription, a.specJSON)

	resp, err := a.provider.Completion(ctx, &llm.ChatRequest{
		Model:       a.model,
		Temperature: 0,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: prompt},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("plan LLM call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, types.NewError(types.ErrPlanParseFailure, "planner returned no choices")
	}

	content := stripJSONFences(resp.Choices[0].Message.Content)

	// The model either answers with the plan object or with {"error": ...}.
	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &probe); err != nil {
		a.logger.Warn("planner response was not valid JSON", zap.String("action", actionDescription))
		return nil, types.NewError(types.ErrPlanParseFailure, "Failed to parse LLM response as JSON.")
	}
	if raw, ok := probe["error"]; ok {
		var msg string
		if json.Unmarshal(raw, &msg) != nil {
			msg = string(raw)
		}
		a.logger.Info("planner found no matching operation",
			zap.String("action", actionDescription),
			zap.String("reason", msg),
		)
		return nil, types.NewError(types.ErrPlanNoMatch, msg)
	}

	var plan Plan
	if err := json.Unmarshal([]byte(content), &plan); err != nil {
		return nil, types.NewError(types.ErrPlanParseFailure, "Failed to parse LLM response as JSON.")
	}
	if plan.Method == "" || plan.Path == "" {
		return nil, types.NewError(types.ErrPlanParseFailure, "planner response missing method or path")
	}

	a.logger.Debug("planned API call",
		zap.String("action", actionDescription),
		zap.String("method", plan.Method),
		zap.String("path", plan.Path),
	)
	return &plan, nil
}

// specAssistArgs is the tool argument payload.
type specAssistArgs struct {
	ActionDescription string `json:"action_description"`
}

// Tool wraps the assistant as a registry tool under the given name. Planner
// failures come back as {"error": ...} observations so the orchestrating model
// can read and react to them.
func (a *SpecAssistant) Tool(name, description string) (ToolFunc, ToolMetadata) {
	fn := func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var in specAssistArgs
		if err := json.Unmarshal(args, &in); err != nil {
			return errorObservation(fmt.Sprintf("invalid arguments: %s", err))
		}
		if in.ActionDescription == "" {
			return errorObservation("action_description is required")
		}

		plan, err := a.Plan(ctx, in.ActionDescription)
		if err != nil {
			if typed, ok := err.(*types.Error); ok {
				return errorObservation(typed.Message)
			}
			return errorObservation(fmt.Sprintf("An unexpected error occurred in API assistant tool: %s", err))
		}
		return json.Marshal(plan)
	}

	meta := ToolMetadata{
		Schema: llm.ToolSchema{
			Name:        name,
			Description: description,
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"action_description": {
						"type": "string",
						"description": "The natural language description of the specific action to find API details for (e.g., 'list applications', 'get details for application ID 123')."
					}
				},
				"required": ["action_description"]
			}`),
		},
		Description: description,
	}
	return fn, meta
}

// errorObservation renders an error as a JSON observation for the model.
func errorObservation(msg string) (json.RawMessage, error) {
	return json.Marshal(map[string]string{"error": msg})
}

// serializeDocument renders the document as indented JSON, falling back to a
// plain string rendering when the tree is not marshalable.
func serializeDocument(doc openapi.Document, logger *zap.Logger) string {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		logger.Warn("API document not JSON-serializable, using string fallback", zap.Error(err))
		fallback, _ := json.Marshal(fmt.Sprint(doc))
		return string(fallback)
	}
	return string(data)
}

// estimateTokens counts tokens with the cl100k_base encoding, approximating
// with len/4 when the encoding is unavailable (e.g. offline).
func estimateTokens(s string) int {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return len(s) / 4
	}
	return len(enc.Encode(s, nil, nil))
}

// stripJSONFences removes a markdown code fence around a JSON answer.
func stripJSONFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
