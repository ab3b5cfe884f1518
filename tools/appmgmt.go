package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/veridion/orgagent/auth"
	"github.com/veridion/orgagent/identity"
	"github.com/veridion/orgagent/llm"
	"github.com/veridion/orgagent/reqctx"
	"go.uber.org/zap"
)

// Typed application-management tool names.
const (
	ListApplicationsToolName   = "list_applications"
	SearchApplicationsToolName = "search_applications"
	CreateApplicationToolName  = "create_application"
	DeleteApplicationToolName  = "delete_application"
)

// listDisplayCap bounds how many applications a listing observation names.
const listDisplayCap = 10

// AppTools exposes the fixed-purpose application-management tools. They sit
// next to the generic plan/execute pipeline and answer with human-readable
// observation strings the model can relay directly.
type AppTools struct {
	apps   *identity.Client
	tokens *auth.TokenClient
	logger *zap.Logger
}

// NewAppTools creates the typed application-management tool set.
func NewAppTools(apps *identity.Client, tokens *auth.TokenClient, logger *zap.Logger) *AppTools {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AppTools{
		apps:   apps,
		tokens: tokens,
		logger: logger.With(zap.String("component", "app_tools")),
	}
}

// RegisterAll registers the four tools on the registry.
func (t *AppTools) RegisterAll(registry ToolRegistry) error {
	for _, reg := range []struct {
		name string
		fn   ToolFunc
		meta ToolMetadata
	}{
		{ListApplicationsToolName, t.listTool(), listToolMetadata()},
		{SearchApplicationsToolName, t.searchTool(), searchToolMetadata()},
		{CreateApplicationToolName, t.createTool(), createToolMetadata()},
		{DeleteApplicationToolName, t.deleteTool(), deleteToolMetadata()},
	} {
		if err := registry.Register(reg.name, reg.fn, reg.meta); err != nil {
			return err
		}
	}
	return nil
}

// authorize resolves the request scope and exchanges its credential.
func (t *AppTools) authorize(ctx context.Context) (reqctx.Scope, string, string) {
	scope, err := reqctx.FromContext(ctx)
	if err != nil {
		return reqctx.Scope{}, "", fmt.Sprintf("Error: Could not retrieve request context (API Key or Org Name). Detail: %s", err)
	}
	token, err := t.tokens.Exchange(ctx, scope.CredentialBlob, scope.Tenant)
	if err != nil {
		t.logger.Warn("token exchange failed", zap.String("tenant", scope.Tenant), zap.Error(err))
		return scope, "", fmt.Sprintf("Error obtaining authorization token for organization '%s': %s. Please check API key and target URL.", scope.Tenant, err)
	}
	return scope, token, ""
}

// ====== list_applications ======

func (t *AppTools) listTool() ToolFunc {
	return func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
		scope, token, failure := t.authorize(ctx)
		if failure != "" {
			return json.Marshal(failure)
		}

		list, err := t.apps.ListApplications(ctx, scope.Tenant, token)
		if err != nil {
			return json.Marshal(t.apiFailure(scope.Tenant, err,
				fmt.Sprintf("Error parsing the response from the identity API for organization '%s'. The response might not be valid JSON.", scope.Tenant)))
		}

		if len(list.Applications) == 0 {
			return json.Marshal(fmt.Sprintf("No applications found in organization '%s'.", scope.Tenant))
		}

		var lines []string
		for i, app := range list.Applications {
			if i >= listDisplayCap && list.Total > listDisplayCap {
				lines = append(lines, "- ... (and more)")
				break
			}
			lines = append(lines, fmt.Sprintf("- Name: %s (ID: %s, ClientID: %s)",
				orNA(app.Name), orNA(app.ID), orNA(app.ClientID)))
		}

		return json.Marshal(fmt.Sprintf("Found %d application(s) in organization '%s':\n%s",
			list.Total, scope.Tenant, strings.Join(lines, "\n")))
	}
}

// ====== search_applications ======

type searchArgs struct {
	SearchTerm string `json:"search_term"`
}

func (t *AppTools) searchTool() ToolFunc {
	return func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var in searchArgs
		if err := json.Unmarshal(args, &in); err != nil || in.SearchTerm == "" {
			return json.Marshal("Error: Invalid or missing search term provided.")
		}

		scope, token, failure := t.authorize(ctx)
		if failure != "" {
			return json.Marshal(failure)
		}

		list, err := t.apps.SearchApplications(ctx, scope.Tenant, token, in.SearchTerm)
		if err != nil {
			var apiErr *identity.APIError
			if errors.As(err, &apiErr) {
				return json.Marshal(fmt.Sprintf("Failed to search applications matching '%s' in organization '%s'. Status Code: %d. Detail: %s",
					in.SearchTerm, scope.Tenant, apiErr.StatusCode, apiErr.Detail))
			}
			return json.Marshal(fmt.Sprintf("Error communicating with the identity API for organization '%s': %s", scope.Tenant, err))
		}

		if len(list.Applications) == 0 {
			return json.Marshal(fmt.Sprintf("No applications found matching '%s' in organization '%s' (excluding system portals).",
				in.SearchTerm, scope.Tenant))
		}

		var lines []string
		for _, app := range list.Applications {
			lines = append(lines, fmt.Sprintf("- Name: %s (ID: %s, ClientID: %s, Issuer: %s)",
				orNA(app.Name), orNA(app.ID), orNA(app.ClientID), orNA(app.Issuer)))
		}

		summary := fmt.Sprintf("Found %d application(s) matching '%s' in organization '%s'.",
			list.Total, in.SearchTerm, scope.Tenant)
		if list.Total > len(list.Applications) {
			summary += fmt.Sprintf(" Showing first %d.", len(list.Applications))
		}
		return json.Marshal(summary + "\n" + strings.Join(lines, "\n"))
	}
}

// ====== create_application ======

type createArgs struct {
	AppName string `json:"app_name"`
}

func (t *AppTools) createTool() ToolFunc {
	return func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var in createArgs
		if err := json.Unmarshal(args, &in); err != nil || in.AppName == "" {
			return json.Marshal("Error: Invalid or missing application name provided.")
		}

		scope, token, failure := t.authorize(ctx)
		if failure != "" {
			return json.Marshal(failure)
		}

		created, err := t.apps.CreateApplication(ctx, scope.Tenant, token, in.AppName)
		if err != nil {
			var apiErr *identity.APIError
			if errors.As(err, &apiErr) {
				return json.Marshal(fmt.Sprintf("Failed to create application '%s' in organization '%s'. Status Code: %d. Detail: %s",
					in.AppName, scope.Tenant, apiErr.StatusCode, apiErr.Detail))
			}
			return json.Marshal(fmt.Sprintf("Error communicating with the identity API for organization '%s': %s", scope.Tenant, err))
		}

		return json.Marshal(fmt.Sprintf("Successfully created application '%s' with ID '%s' in organization '%s'.",
			created.Name, created.ID, scope.Tenant))
	}
}

// ====== delete_application ======

type deleteArgs struct {
	AppID string `json:"app_id"`
}

func (t *AppTools) deleteTool() ToolFunc {
	return func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var in deleteArgs
		if err := json.Unmarshal(args, &in); err != nil || in.AppID == "" {
			return json.Marshal("Error: Invalid or missing application ID provided.")
		}

		scope, token, failure := t.authorize(ctx)
		if failure != "" {
			return json.Marshal(failure)
		}

		if err := t.apps.DeleteApplication(ctx, scope.Tenant, token, in.AppID); err != nil {
			var apiErr *identity.APIError
			if errors.As(err, &apiErr) {
				return json.Marshal(fmt.Sprintf("Failed to delete application ID '%s' in organization '%s'. Status Code: %d. Detail: %s",
					in.AppID, scope.Tenant, apiErr.StatusCode, apiErr.Detail))
			}
			return json.Marshal(fmt.Sprintf("Error communicating with the identity API for organization '%s': %s", scope.Tenant, err))
		}

		return json.Marshal(fmt.Sprintf("Successfully deleted application with ID '%s' from organization '%s'.",
			in.AppID, scope.Tenant))
	}
}

// apiFailure formats an identity client error for listing, preserving the
// status code when the server answered.
func (t *AppTools) apiFailure(tenant string, err error, parseFailureMsg string) string {
	var apiErr *identity.APIError
	if errors.As(err, &apiErr) {
		return fmt.Sprintf("Error communicating with the identity API for organization '%s' (Status: %d): %s",
			tenant, apiErr.StatusCode, apiErr.Detail)
	}
	if strings.Contains(err.Error(), "parse") {
		return parseFailureMsg
	}
	return fmt.Sprintf("Error communicating with the identity API for organization '%s': %s", tenant, err)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// ====== tool metadata ======

func listToolMetadata() ToolMetadata {
	desc := "Lists applications registered in the organization associated with the current request. Takes no arguments."
	return ToolMetadata{
		Schema: llm.ToolSchema{
			Name:        ListApplicationsToolName,
			Description: desc,
			Parameters:  json.RawMessage(`{"type": "object", "properties": {}}`),
		},
		Description: desc,
	}
}

func searchToolMetadata() ToolMetadata {
	desc := "Searches applications in the organization associated with the current request. Matches the application name, client ID, and issuer fields with a 'contains' filter. Excludes system applications."
	return ToolMetadata{
		Schema: llm.ToolSchema{
			Name:        SearchApplicationsToolName,
			Description: desc,
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"search_term": {
						"type": "string",
						"description": "The term to search for in application names, client IDs, and issuers."
					}
				},
				"required": ["search_term"]
			}`),
		},
		Description: desc,
	}
}

func createToolMetadata() ToolMetadata {
	desc := "Creates a new application registration with default settings (OIDC protocol, client-credentials grant) in the organization associated with the current request. Requires only the desired application name."
	return ToolMetadata{
		Schema: llm.ToolSchema{
			Name:        CreateApplicationToolName,
			Description: desc,
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"app_name": {
						"type": "string",
						"description": "The desired name for the new application."
					}
				},
				"required": ["app_name"]
			}`),
		},
		Description: desc,
	}
}

func deleteToolMetadata() ToolMetadata {
	desc := "Deletes an existing application registration from the organization associated with the current request, identified by its unique application ID (not the name). This is a destructive action."
	return ToolMetadata{
		Schema: llm.ToolSchema{
			Name:        DeleteApplicationToolName,
			Description: desc,
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"app_id": {
						"type": "string",
						"description": "The unique application ID (not the name) to delete."
					}
				},
				"required": ["app_id"]
			}`),
		},
		Description: desc,
	}
}
