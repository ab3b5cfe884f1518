package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/veridion/orgagent/api"
	"github.com/veridion/orgagent/auth"
	"github.com/veridion/orgagent/llm"
	"github.com/veridion/orgagent/reqctx"
	"github.com/veridion/orgagent/types"
	"go.uber.org/zap"
)

// ChatRunner answers one conversation turn. Implemented by tools.Agent.
type ChatRunner interface {
	Run(ctx context.Context, history []llm.Message) (string, error)
}

// ChatHandler serves the conversational endpoint.
type ChatHandler struct {
	runner ChatRunner
	logger *zap.Logger
}

// NewChatHandler creates the chat handler.
func NewChatHandler(runner ChatRunner, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		runner: runner,
		logger: logger,
	}
}

// HandleChat processes one chat request. The caller's credential arrives in
// the api-key header and is validated before any tool can run; the decoded
// blob and organization name become the request scope.
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	apiKey := r.Header.Get("api-key")
	if apiKey == "" {
		WriteErrorMessage(w, http.StatusUnauthorized, types.ErrAuthentication, "api-key header is required", h.logger)
		return
	}
	if _, _, err := auth.DecodeAPIKey(apiKey); err != nil {
		typed, ok := err.(*types.Error)
		if !ok {
			typed = types.NewError(types.ErrAuthentication, "invalid api-key header").WithCause(err)
		}
		typed.WithHTTPStatus(http.StatusUnauthorized)
		WriteError(w, typed, h.logger)
		return
	}

	var req api.ChatRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	if verr := validateChatRequest(&req); verr != nil {
		WriteError(w, verr, h.logger)
		return
	}

	history, verr := convertTurns(req.Chat)
	if verr != nil {
		WriteError(w, verr, h.logger)
		return
	}

	ctx := reqctx.With(r.Context(), reqctx.Scope{
		CredentialBlob: auth.NormalizeAPIKey(apiKey),
		Tenant:         req.OrganizationName,
	})

	start := time.Now()
	answer, err := h.runner.Run(ctx, history)
	if err != nil {
		// Never leak internals to the caller; the cause goes to the log.
		internal := types.NewError(types.ErrInternalError, "failed to process chat request").WithCause(err)
		WriteError(w, internal, h.logger)
		return
	}

	h.logger.Info("chat turn served",
		zap.String("organization", req.OrganizationName),
		zap.Int("turns", len(req.Chat)),
		zap.Duration("duration", time.Since(start)),
	)

	WriteSuccess(w, api.ChatResponse{Role: api.RoleAgent, Content: answer})
}

// validateChatRequest checks the payload shape.
func validateChatRequest(req *api.ChatRequest) *types.Error {
	if req.OrganizationName == "" {
		return types.NewError(types.ErrInvalidRequest, "organization_name is required")
	}
	if len(req.Chat) == 0 {
		return types.NewError(types.ErrInvalidRequest, "chat cannot be empty")
	}
	if req.Chat[len(req.Chat)-1].Role != api.RoleUser {
		return types.NewError(types.ErrInvalidRequest, "last chat turn must be from the user")
	}
	return nil
}

// convertTurns maps wire turns onto provider messages.
func convertTurns(turns []api.ChatTurn) ([]llm.Message, *types.Error) {
	messages := make([]llm.Message, 0, len(turns))
	for _, turn := range turns {
		var role llm.Role
		switch turn.Role {
		case api.RoleUser:
			role = llm.RoleUser
		case api.RoleAgent:
			role = llm.RoleAssistant
		default:
			return nil, types.NewError(types.ErrInvalidRequest, "chat turn role must be 'user' or 'agent'")
		}
		messages = append(messages, llm.Message{Role: role, Content: turn.Content})
	}
	return messages, nil
}
