package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/veridion/orgagent/types"
	"go.uber.org/zap"
)

const (
	// tokenScope is sent as a query parameter on every exchange.
	tokenScope = "SYSTEM"

	// bodyExcerptLimit bounds error body excerpts carried in failures.
	bodyExcerptLimit = 500
)

// MetricsRecorder receives per-exchange outcomes.
type MetricsRecorder interface {
	RecordTokenExchange(status string, duration time.Duration)
}

// TokenClient exchanges client credentials for a bearer token. One exchange
// per downstream call; tokens are never cached or reused across calls.
type TokenClient struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
	metrics MetricsRecorder // optional
}

// TokenClientConfig configures the token client.
type TokenClientConfig struct {
	// BaseURL is the identity server root, e.g. https://api.example.io/t
	BaseURL string
	// Timeout bounds the exchange HTTP call (default 30s).
	Timeout time.Duration
}

// NewTokenClient creates a token client.
func NewTokenClient(cfg TokenClientConfig, logger *zap.Logger) *TokenClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &TokenClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With(zap.String("component", "token_client")),
	}
}

// WithMetrics attaches a metrics recorder and returns the client.
func (c *TokenClient) WithMetrics(m MetricsRecorder) *TokenClient {
	c.metrics = m
	return c
}

// Exchange POSTs a client-credentials grant to the tenant's token endpoint.
// credentialBlob is the base64 "clientId:clientSecret" string, passed through
// verbatim as the Basic authorization value.
func (c *TokenClient) Exchange(ctx context.Context, credentialBlob, tenant string) (string, error) {
	start := time.Now()
	token, err := c.exchange(ctx, credentialBlob, tenant)
	if c.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		c.metrics.RecordTokenExchange(status, time.Since(start))
	}
	return token, err
}

func (c *TokenClient) exchange(ctx context.Context, credentialBlob, tenant string) (string, error) {
	endpoint := fmt.Sprintf("%s/%s/oauth2/token?scope=%s", c.baseURL, tenant, tokenScope)
	form := url.Values{"grant_type": {"client_credentials"}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", types.NewError(types.ErrTokenNetwork, "failed to build token request").WithCause(err)
	}
	req.Header.Set("Authorization", "Basic "+credentialBlob)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	c.logger.Debug("exchanging client credentials",
		zap.String("tenant", tenant),
		zap.String("endpoint", maskedEndpoint(c.baseURL, tenant)),
	)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", types.NewError(types.ErrTokenNetwork, "token endpoint unreachable").
			WithCause(err).WithRetryable(true)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", types.NewError(types.ErrTokenHTTPStatus,
			fmt.Sprintf("token endpoint returned %d: %s", resp.StatusCode, excerpt(string(body), bodyExcerptLimit))).
			WithHTTPStatus(resp.StatusCode)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", types.NewError(types.ErrTokenBadResponse, "token endpoint returned non-JSON body").WithCause(err)
	}
	if payload.AccessToken == "" {
		return "", types.NewError(types.ErrTokenMissing, "access_token not found in token endpoint response")
	}

	c.logTokenExpiry(payload.AccessToken, tenant)

	return payload.AccessToken, nil
}

// logTokenExpiry peeks at the unverified exp claim of JWT-shaped tokens so
// operators can correlate token lifetimes. Best-effort; never fails the exchange.
func (c *TokenClient) logTokenExpiry(token, tenant string) {
	if strings.Count(token, ".") != 2 {
		return
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return
	}
	c.logger.Debug("obtained access token",
		zap.String("tenant", tenant),
		zap.Time("expires_at", exp.Time),
	)
}

// maskedEndpoint reports the endpoint shape without the scope query string.
func maskedEndpoint(base, tenant string) string {
	return fmt.Sprintf("%s/%s/oauth2/token", base, tenant)
}

func excerpt(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
