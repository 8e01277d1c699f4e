package handlers

import (
	"context"
	"net/http"

	"github.com/upb/smart-retail-assistant/internal/observability"
	"github.com/upb/smart-retail-assistant/models"
	"github.com/upb/smart-retail-assistant/services/answer"
	"github.com/upb/smart-retail-assistant/utils"
	"go.uber.org/zap"
)

// ChatRequest is the body of POST /chat
type ChatRequest struct {
	Messages []models.ConversationMessage `json:"messages" validate:"required,min=1,dive"`
}

// ChatResponse is the body returned by POST /chat
type ChatResponse struct {
	Answer    string                `json:"answer"`
	Sources   []models.SearchResult `json:"sources"`
	RequestID string                `json:"request_id,omitempty"`
}

// Answerer produces a grounded answer for a conversation
type Answerer interface {
	Answer(ctx context.Context, history []models.ConversationMessage) (*answer.Result, error)
}

// ChatHandler handles chat HTTP requests
type ChatHandler struct {
	engine Answerer
	logger *zap.Logger
}

// NewChatHandler creates a new ChatHandler
func NewChatHandler(engine Answerer, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		engine: engine,
		logger: logger,
	}
}

// HandleChat handles POST /chat
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	logger := observability.LoggerFromContext(r.Context(), h.logger)

	var req ChatRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		HandleValidationError(w, err, logger)
		return
	}

	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, logger)
		return
	}

	result, err := h.engine.Answer(r.Context(), req.Messages)
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	sources := result.Sources
	if sources == nil {
		sources = []models.SearchResult{}
	}

	if err := utils.WriteOK(w, ChatResponse{
		Answer:    result.Answer,
		Sources:   sources,
		RequestID: result.RequestID,
	}); err != nil {
		logger.Error("failed to write chat response", zap.Error(err))
	}
}
