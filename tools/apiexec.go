package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/veridion/orgagent/auth"
	"github.com/veridion/orgagent/llm"
	"github.com/veridion/orgagent/reqctx"
	"go.uber.org/zap"
)

// ExecutorToolName is the registry name of the API execution tool.
const ExecutorToolName = "identity_api_executor"

const executorToolDescription = "Executes a specific API call (GET, POST, PUT, DELETE) against the appropriate identity server API endpoint. " +
	"Input MUST be a single JSON string containing keys: 'method', 'path' (the full relative path including prefixes like /api/server/v1 or /scim2), 'query_params', 'path_params', 'request_body'. " +
	"This JSON string is typically obtained from the 'app_mgt_api_spec_assistant' or 'scim2_api_spec_assistant' tool."

// APIExecutor performs planned API calls on behalf of the request's tenant.
// Every downstream failure is folded into the observation string rather than
// returned as an error: the model must see what went wrong.
type APIExecutor struct {
	tokens  *auth.TokenClient
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// APIExecutorConfig holds the executor settings.
type APIExecutorConfig struct {
	// BaseURL is the identity server root, e.g. https://api.example.io/t
	BaseURL string
	// Timeout bounds every downstream call (default 30s).
	Timeout time.Duration
}

// NewAPIExecutor creates an executor that exchanges the request's credential
// for a token before each call.
func NewAPIExecutor(cfg APIExecutorConfig, tokens *auth.TokenClient, logger *zap.Logger) *APIExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &APIExecutor{
		tokens:  tokens,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With(zap.String("component", "api_executor")),
	}
}

// callDetails is the planned call as produced by a spec assistant, with the
// concrete parameter values filled in by the orchestrating model.
type callDetails struct {
	Method      string         `json:"method"`
	Path        string         `json:"path"`
	QueryParams map[string]any `json:"query_params"`
	PathParams  map[string]any `json:"path_params"`
	RequestBody map[string]any `json:"request_body"`
}

// Execute runs one planned call and returns the observation string.
func (e *APIExecutor) Execute(ctx context.Context, detailsJSON string) string {
	var details callDetails
	if err := json.Unmarshal([]byte(detailsJSON), &details); err != nil {
		return fmt.Sprintf("Error: Input was not a valid JSON string: %s", detailsJSON)
	}
	if details.Method == "" || details.Path == "" {
		return fmt.Sprintf("Error: Invalid content in JSON details: missing 'method' or 'path'. Received: %s", detailsJSON)
	}

	scope, err := reqctx.FromContext(ctx)
	if err != nil {
		return "Error: no request scope available."
	}

	token, err := e.tokens.Exchange(ctx, scope.CredentialBlob, scope.Tenant)
	if err != nil {
		e.logger.Warn("token exchange failed", zap.String("tenant", scope.Tenant), zap.Error(err))
		return fmt.Sprintf("Error: could not obtain API token - %s", err)
	}

	finalPath := substitutePathParams(details.Path, details.PathParams, e.logger)
	fullURL := fmt.Sprintf("%s/%s%s", e.baseURL, scope.Tenant, finalPath)

	if len(details.QueryParams) > 0 {
		query := url.Values{}
		for k, v := range details.QueryParams {
			query.Set(k, fmt.Sprint(v))
		}
		fullURL = fullURL + "?" + query.Encode()
	}

	var reqBody io.Reader
	if details.RequestBody != nil {
		data, err := json.Marshal(details.RequestBody)
		if err != nil {
			return fmt.Sprintf("Error: could not serialize request body - %s", err)
		}
		reqBody = bytes.NewReader(data)
	}

	method := strings.ToUpper(details.Method)
	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return fmt.Sprintf("API Request Failed: Connection or request error - %s", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	e.logger.Info("executing API call",
		zap.String("method", method),
		zap.String("path", finalPath),
		zap.String("tenant", scope.Tenant),
	)

	resp, err := e.client.Do(req)
	if err != nil {
		e.logger.Warn("API call transport error", zap.String("method", method), zap.Error(err))
		return fmt.Sprintf("API Request Failed: Connection or request error - %s", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		e.logger.Warn("API call failed",
			zap.String("method", method),
			zap.Int("status", resp.StatusCode),
		)
		return fmt.Sprintf("API Request Failed: HTTP %d\n--- Response Body ---\n%s", resp.StatusCode, string(body))
	}

	// 204 carries no body; synthesize an observation the model can report.
	if resp.StatusCode == http.StatusNoContent {
		return fmt.Sprintf("Success: %s on '%s' completed with HTTP 204 No Content.", method, finalPath)
	}

	var pretty bytes.Buffer
	if json.Indent(&pretty, bytes.TrimSpace(body), "", "  ") == nil {
		return pretty.String()
	}
	return string(body)
}

// executorArgs is the tool argument payload.
type executorArgs struct {
	APICallDetailsJSON string `json:"api_call_details_json"`
}

// Tool wraps the executor as a registry tool.
func (e *APIExecutor) Tool() (ToolFunc, ToolMetadata) {
	fn := func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var in executorArgs
		if err := json.Unmarshal(args, &in); err != nil {
			return errorObservation(fmt.Sprintf("invalid arguments: %s", err))
		}
		if in.APICallDetailsJSON == "" {
			return errorObservation("api_call_details_json is required")
		}
		observation := e.Execute(ctx, in.APICallDetailsJSON)
		return json.Marshal(observation)
	}

	meta := ToolMetadata{
		Schema: llm.ToolSchema{
			Name:        ExecutorToolName,
			Description: executorToolDescription,
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"api_call_details_json": {
						"type": "string",
						"description": "A JSON string containing the API call details (method, path, query_params, path_params, request_body)."
					}
				},
				"required": ["api_call_details_json"]
			}`),
		},
		Description: executorToolDescription,
	}
	return fn, meta
}

// substitutePathParams replaces {key} placeholders with their values. Keys
// without a matching placeholder are logged and skipped; placeholders without
// a value are left as-is.
func substitutePathParams(path string, params map[string]any, logger *zap.Logger) string {
	for key, value := range params {
		placeholder := "{" + key + "}"
		if !strings.Contains(path, placeholder) {
			logger.Warn("path parameter has no placeholder in path",
				zap.String("key", key),
				zap.String("path", path),
			)
			continue
		}
		path = strings.ReplaceAll(path, placeholder, fmt.Sprint(value))
	}
	return path
}
