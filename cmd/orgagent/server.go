package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/veridion/orgagent/api/handlers"
	"github.com/veridion/orgagent/auth"
	"github.com/veridion/orgagent/config"
	"github.com/veridion/orgagent/identity"
	"github.com/veridion/orgagent/internal/metrics"
	"github.com/veridion/orgagent/internal/server"
	"github.com/veridion/orgagent/openapi"
	"github.com/veridion/orgagent/providers/azure"
	"github.com/veridion/orgagent/tools"
)

// specLoadTimeout bounds the startup fetch of the OpenAPI documents.
const specLoadTimeout = 60 * time.Second

// =============================================================================
// Server
// =============================================================================

// Server wires the agent stack and owns the HTTP lifecycle.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	httpManager *server.Manager

	healthHandler *handlers.HealthHandler
	chatHandler   *handlers.ChatHandler

	metricsCollector *metrics.Collector

	auditStore  *tools.AuditStore
	auditLogger *tools.AuditLogger

	// rate limiter cleanup goroutine lifecycle
	rateLimiterCancel context.CancelFunc
}

// NewServer creates a new server instance.
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger,
	}
}

// =============================================================================
// Startup
// =============================================================================

// Start initializes all components and starts serving.
func (s *Server) Start() error {
	s.metricsCollector = metrics.NewCollector("orgagent", s.logger)

	if err := s.initHandlers(); err != nil {
		return fmt.Errorf("failed to init handlers: %w", err)
	}

	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	s.logger.Info("Server started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
	)

	return nil
}

// initHandlers builds the agent stack and the HTTP handlers on top of it.
func (s *Server) initHandlers() error {
	s.healthHandler = handlers.NewHealthHandler(s.logger)

	provider := azure.NewProvider(azure.Config{
		Endpoint:   s.cfg.LLM.Endpoint,
		Deployment: s.cfg.LLM.Deployment,
		APIVersion: s.cfg.LLM.APIVersion,
		APIKey:     s.cfg.LLM.APIKey,
		Timeout:    s.cfg.LLM.Timeout,
	}, s.logger).WithMetrics(s.metricsCollector)

	tokenClient := auth.NewTokenClient(auth.TokenClientConfig{
		BaseURL: s.cfg.Identity.BaseURL,
		Timeout: s.cfg.Identity.Timeout,
	}, s.logger).WithMetrics(s.metricsCollector)

	identityClient := identity.NewClient(identity.Config{
		BaseURL: s.cfg.Identity.BaseURL,
		Timeout: s.cfg.Identity.Timeout,
	}, s.logger)

	appMgtDoc, scimDoc, err := s.loadSpecs()
	if err != nil {
		return err
	}

	registry := tools.NewDefaultRegistry(s.logger)

	appAssistant := tools.NewSpecAssistant(provider, s.cfg.LLM.Deployment, appMgtDoc, s.logger)
	fn, meta := appAssistant.Tool(tools.AppMgtAssistantToolName, tools.AppMgtAssistantDescription)
	meta.Timeout = s.cfg.Agent.ToolTimeout
	if err := registry.Register(tools.AppMgtAssistantToolName, fn, meta); err != nil {
		return err
	}

	// SCIM2 is optional: without its spec only the application-management
	// assistant is registered.
	if scimDoc != nil {
		scimAssistant := tools.NewSpecAssistant(provider, s.cfg.LLM.Deployment, scimDoc, s.logger)
		fn, meta := scimAssistant.Tool(tools.SCIM2AssistantToolName, tools.SCIM2AssistantDescription)
		meta.Timeout = s.cfg.Agent.ToolTimeout
		if err := registry.Register(tools.SCIM2AssistantToolName, fn, meta); err != nil {
			return err
		}
	}

	apiExecutor := tools.NewAPIExecutor(tools.APIExecutorConfig{
		BaseURL: s.cfg.Identity.BaseURL,
		Timeout: s.cfg.Identity.Timeout,
	}, tokenClient, s.logger)
	fn, meta = apiExecutor.Tool()
	meta.Timeout = s.cfg.Agent.ToolTimeout
	if err := registry.Register(tools.ExecutorToolName, fn, meta); err != nil {
		return err
	}

	appTools := tools.NewAppTools(identityClient, tokenClient, s.logger)
	if err := appTools.RegisterAll(registry); err != nil {
		return err
	}

	if err := s.initAudit(); err != nil {
		return err
	}

	executor := tools.NewDefaultExecutor(registry, s.auditLogger, s.metricsCollector, s.logger)

	agent := tools.NewAgent(provider, registry, executor, tools.AgentConfig{
		Model:         s.cfg.LLM.Deployment,
		MaxIterations: s.cfg.Agent.MaxIterations,
		HistoryWindow: s.cfg.Agent.HistoryWindow,
	}, s.logger)

	s.chatHandler = handlers.NewChatHandler(agent, s.logger)

	// Readiness depends on the identity server being reachable.
	specURL := s.cfg.Identity.AppMgtSpecURL
	s.healthHandler.RegisterCheck(handlers.NewProbeFunc("identity_server", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, specURL, nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode >= 500 {
			return fmt.Errorf("identity server returned status %d", resp.StatusCode)
		}
		return nil
	}))

	s.logger.Info("Handlers initialized",
		zap.Bool("scim2_enabled", scimDoc != nil),
		zap.Bool("audit_enabled", s.auditLogger != nil),
	)
	return nil
}

// loadSpecs fetches both OpenAPI documents concurrently. The SCIM2 document
// is skipped when no URL is configured.
func (s *Server) loadSpecs() (openapi.Document, openapi.Document, error) {
	loader := openapi.NewLoader(s.cfg.Identity.Timeout, s.logger)

	ctx, cancel := context.WithTimeout(context.Background(), specLoadTimeout)
	defer cancel()

	var appMgtDoc, scimDoc openapi.Document

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		doc, err := loader.Load(gctx, s.cfg.Identity.AppMgtSpecURL)
		if err != nil {
			return fmt.Errorf("load application-management spec: %w", err)
		}
		appMgtDoc = openapi.Rewrite(doc, "/api/server/v1")
		return nil
	})
	if s.cfg.Identity.SCIM2SpecURL != "" {
		g.Go(func() error {
			doc, err := loader.Load(gctx, s.cfg.Identity.SCIM2SpecURL)
			if err != nil {
				return fmt.Errorf("load SCIM2 spec: %w", err)
			}
			scimDoc = openapi.Rewrite(doc, "/scim2")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	return appMgtDoc, scimDoc, nil
}

// initAudit opens the audit store when enabled.
func (s *Server) initAudit() error {
	if !s.cfg.Audit.Enabled {
		return nil
	}

	store, err := tools.OpenAuditStore(s.cfg.Audit.Path)
	if err != nil {
		return fmt.Errorf("failed to open audit store: %w", err)
	}
	s.auditStore = store
	s.auditLogger = tools.NewAuditLogger(store, tools.AuditLoggerConfig{
		QueueSize: s.cfg.Audit.QueueSize,
	}, s.logger)

	s.logger.Info("Audit trail enabled", zap.String("path", s.cfg.Audit.Path))
	return nil
}

// =============================================================================
// HTTP server
// =============================================================================

func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	// Health endpoints
	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// API routes
	mux.HandleFunc("/chat", s.chatHandler.HandleChat)

	// Prometheus metrics
	mux.Handle("/metrics", promhttp.Handler())

	// Middleware chain
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel
	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
		RateLimiter(rateLimiterCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
	)

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20, // 1 MB
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)

	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// =============================================================================
// Shutdown
// =============================================================================

// WaitForShutdown blocks until a signal, then shuts everything down.
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown stops all components gracefully.
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx := context.Background()

	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// Flush the audit queue after the HTTP server stops accepting requests.
	if s.auditLogger != nil {
		if err := s.auditLogger.Close(); err != nil {
			s.logger.Error("Audit logger shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}
