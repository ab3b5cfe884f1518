// Package identity is a typed client for the application-management API of
// the identity server. Callers supply a per-call bearer token; the client
// itself holds no credential state.
package identity

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

	"go.uber.org/zap"
)

const appMgtPrefix = "/api/server/v1"

// Default search parameters. The filter matches name, client ID, and issuer
// with a contains comparison; system portal applications are excluded.
const (
	searchAttributes = "advancedConfigurations,templateId,clientId,issuer"
	searchLimit      = 10
	searchOffset     = 0
)

// Application is one registered application.
type Application struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ClientID string `json:"clientId"`
	Issuer   string `json:"issuer,omitempty"`
}

// ApplicationList is a page of applications plus the server-side total.
type ApplicationList struct {
	Total        int
	Applications []Application
}

// APIError carries a non-2xx response from the application-management API.
// Detail is the server's description/message/detail field when the error body
// is JSON, otherwise a bounded excerpt of the raw body.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("identity API error: status %d: %s", e.StatusCode, e.Detail)
}

// Config holds the identity client settings.
type Config struct {
	// BaseURL is the identity server root, e.g. https://api.example.io/t
	BaseURL string
	// Timeout bounds every HTTP call (default 30s).
	Timeout time.Duration
}

// Client calls the application-management API.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewClient creates an application-management API client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With(zap.String("component", "identity_client")),
	}
}

func (c *Client) applicationsURL(tenant string) string {
	return fmt.Sprintf("%s/%s%s/applications", c.baseURL, tenant, appMgtPrefix)
}

// ListApplications returns the tenant's registered applications.
func (c *Client) ListApplications(ctx context.Context, tenant, token string) (*ApplicationList, error) {
	body, err := c.do(ctx, http.MethodGet, c.applicationsURL(tenant), token, nil, nil, 200)
	if err != nil {
		return nil, err
	}

	// The endpoint historically returned either a bare array or an object
	// with an applications key.
	var wrapped struct {
		TotalResults int           `json:"totalResults"`
		Applications []Application `json:"applications"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Applications != nil {
		total := wrapped.TotalResults
		if total == 0 {
			total = len(wrapped.Applications)
		}
		return &ApplicationList{Total: total, Applications: wrapped.Applications}, nil
	}

	var bare []Application
	if err := json.Unmarshal(body, &bare); err != nil {
		return nil, fmt.Errorf("parse applications response: %w", err)
	}
	return &ApplicationList{Total: len(bare), Applications: bare}, nil
}

// SearchApplications runs a contains-filter search over name, client ID, and
// issuer, excluding system portals.
func (c *Client) SearchApplications(ctx context.Context, tenant, token, term string) (*ApplicationList, error) {
	filter := fmt.Sprintf("name co %s or clientId co %s or issuer co %s", term, term, term)
	query := url.Values{
		"attributes":           {searchAttributes},
		"excludeSystemPortals": {"true"},
		"filter":               {filter},
		"limit":                {fmt.Sprint(searchLimit)},
		"offset":               {fmt.Sprint(searchOffset)},
	}

	body, err := c.do(ctx, http.MethodGet, c.applicationsURL(tenant), token, query, nil, 500)
	if err != nil {
		return nil, err
	}

	var resp struct {
		TotalResults int           `json:"totalResults"`
		Applications []Application `json:"applications"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse search response: %w", err)
	}
	return &ApplicationList{Total: resp.TotalResults, Applications: resp.Applications}, nil
}

// CreateApplication registers a new OIDC application with defaults: the
// custom-application-oidc template, client-credentials grant, and consent
// screens skipped.
func (c *Client) CreateApplication(ctx context.Context, tenant, token, name string) (*Application, error) {
	payload := map[string]any{
		"name": name,
		"advancedConfigurations": map[string]any{
			"skipLogoutConsent": true,
			"skipLoginConsent":  true,
		},
		"templateId": "custom-application-oidc",
		"associatedRoles": map[string]any{
			"allowedAudience": "APPLICATION",
			"roles":           []any{},
		},
		"inboundProtocolConfiguration": map[string]any{
			"oidc": map[string]any{
				"grantTypes":        []string{"client_credentials"},
				"isFAPIApplication": false,
			},
		},
	}

	body, err := c.do(ctx, http.MethodPost, c.applicationsURL(tenant), token, nil, payload, 200)
	if err != nil {
		return nil, err
	}

	created := Application{Name: name}
	// A 201 with an unparsable body is still a successful creation.
	if err := json.Unmarshal(body, &created); err != nil {
		c.logger.Warn("create response was not valid JSON", zap.String("tenant", tenant))
	}
	if created.ID == "" {
		created.ID = "N/A"
	}
	if created.Name == "" {
		created.Name = name
	}
	return &created, nil
}

// DeleteApplication removes an application by ID. The server answers 204.
func (c *Client) DeleteApplication(ctx context.Context, tenant, token, id string) error {
	endpoint := fmt.Sprintf("%s/%s", c.applicationsURL(tenant), url.PathEscape(id))
	_, err := c.do(ctx, http.MethodDelete, endpoint, token, nil, nil, 200)
	return err
}

// do issues one authenticated request and returns the response body.
// Non-2xx responses become *APIError with the detail bounded to excerptLimit.
func (c *Client) do(ctx context.Context, method, endpoint, token string, query url.Values, payload any, excerptLimit int) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	if len(query) > 0 {
		endpoint = endpoint + "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("identity API call failed",
			zap.String("method", method),
			zap.Int("status", resp.StatusCode),
		)
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Detail:     errorDetail(body, excerptLimit),
		}
	}
	return body, nil
}

// errorDetail pulls description/message/detail out of a JSON error body,
// falling back to a bounded raw excerpt.
func errorDetail(body []byte, limit int) string {
	var parsed struct {
		Description string `json:"description"`
		Message     string `json:"message"`
		Detail      string `json:"detail"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		for _, s := range []string{parsed.Description, parsed.Message, parsed.Detail} {
			if s != "" {
				return s
			}
		}
	}
	s := string(body)
	if len(s) > limit {
		s = s[:limit]
	}
	return s
}
