package answer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/upb/smart-retail-assistant/internal/observability"
	"github.com/upb/smart-retail-assistant/models"
	"github.com/upb/smart-retail-assistant/services"
	"github.com/upb/smart-retail-assistant/services/prompt"
	"github.com/upb/smart-retail-assistant/services/providers"
	"go.uber.org/zap"
)

// DefaultTopK is the number of products retrieved when Config.TopK is unset
const DefaultTopK = 5

// Engine answers a shopper's conversation from catalog products.
// Its fields are set once in NewEngine and never mutated, so one Engine serves concurrent requests.
type Engine struct {
	embedder  Embedder
	searcher  Searcher
	composer  *prompt.Composer
	assembler *prompt.Assembler
	chat      providers.ChatProvider
	config    Config
	logger    *zap.Logger
}

// NewEngine creates a new answer engine with all dependencies
func NewEngine(
	embedder Embedder,
	searcher Searcher,
	composer *prompt.Composer,
	assembler *prompt.Assembler,
	chat providers.ChatProvider,
	config Config,
	logger *zap.Logger,
) *Engine {
	if config.TopK <= 0 {
		config.TopK = DefaultTopK
	}
	return &Engine{
		embedder:  embedder,
		searcher:  searcher,
		composer:  composer,
		assembler: assembler,
		chat:      chat,
		config:    config,
		logger:    logger,
	}
}

// Answer runs embed, search, render, assemble and completion in order.
// The first failing stage aborts the call; no partial answer is returned.
func (e *Engine) Answer(ctx context.Context, history []models.ConversationMessage) (*Result, error) {
	if err := validateHistory(history); err != nil {
		return nil, err
	}

	requestID := observability.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.New().String()
	}
	start := time.Now()
	query := history[len(history)-1].Content

	e.logger.Info("answering question",
		zap.String("request_id", requestID),
		zap.Int("history", len(history)))

	// Step 1: Embed the latest user turn
	e.logger.Debug("step 1: embedding query", zap.String("request_id", requestID))
	vector, err := e.embedder.Embed(ctx, query)
	if err != nil {
		if !services.IsEmbeddingFailure(err) {
			err = services.NewEmbeddingFailure("query embedding failed", err)
		}
		return nil, e.fail(requestID, "embed", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, e.fail(requestID, "embed", services.NewEmbeddingFailure("request cancelled after embedding", err))
	}

	// Step 2: Retrieve the closest products
	e.logger.Debug("step 2: searching catalog", zap.String("request_id", requestID), zap.Int("top_k", e.config.TopK))
	sources, err := e.searcher.Search(ctx, vector, e.config.TopK)
	if err != nil {
		if !services.IsIndexUnavailable(err) {
			err = services.NewIndexUnavailable("catalog search failed", err)
		}
		return nil, e.fail(requestID, "search", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, e.fail(requestID, "search", services.NewIndexUnavailable("request cancelled after search", err))
	}

	// Step 3: Render the grounding block and assemble the model input
	e.logger.Debug("step 3: composing context",
		zap.String("request_id", requestID),
		zap.Int("results", len(sources)))
	block := e.composer.Render(sources)
	messages := e.assembler.Assemble(e.config.SystemPrompt, block, history)

	// Step 4: Ask the model
	e.logger.Debug("step 4: invoking LLM",
		zap.String("request_id", requestID),
		zap.String("provider", e.chat.Name()),
		zap.String("model", e.config.Model))
	resp, err := e.complete(ctx, requestID, messages)
	if err != nil {
		return nil, e.fail(requestID, "generate", err)
	}

	result := &Result{
		Answer:    resp.Content(),
		Sources:   sources,
		Model:     resp.Model,
		RequestID: requestID,
		Usage:     resp.Usage,
		Latency:   time.Since(start),
	}
	if result.Model == "" {
		result.Model = e.config.Model
	}

	e.logger.Info("answer completed",
		zap.String("request_id", requestID),
		zap.Int("sources", len(sources)),
		zap.Int("tokens", resp.Usage.TotalTokens),
		zap.Int64("latency_ms", result.Latency.Milliseconds()))

	return result, nil
}

func (e *Engine) complete(ctx context.Context, requestID string, messages []models.ConversationMessage) (*providers.ChatResponse, error) {
	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	req := &providers.ChatRequest{
		Model:       e.config.Model,
		Messages:    toProviderMessages(messages),
		MaxTokens:   e.config.MaxTokens,
		Temperature: e.config.Temperature,
		Metadata:    map[string]string{"request_id": requestID},
	}

	resp, err := e.chat.ChatCompletion(ctx, req)
	if err != nil {
		return nil, services.NewGenerationFailure("chat completion failed", err).
			WithDetail("provider", e.chat.Name())
	}
	if strings.TrimSpace(resp.Content()) == "" {
		return nil, services.NewGenerationFailure("chat completion returned no content", nil).
			WithDetail("provider", e.chat.Name())
	}
	return resp, nil
}

func (e *Engine) fail(requestID, stage string, err error) error {
	e.logger.Warn("answer failed",
		zap.String("request_id", requestID),
		zap.String("stage", stage),
		zap.Error(err))
	return err
}

func validateHistory(history []models.ConversationMessage) error {
	if len(history) == 0 {
		return services.NewValidationFailure("conversation history cannot be empty")
	}
	for i, msg := range history {
		if !models.IsValidRole(msg.Role) {
			return services.NewValidationFailure(fmt.Sprintf("message %d has invalid role %q", i, msg.Role)).
				WithDetail("index", i)
		}
	}
	last := history[len(history)-1]
	if last.Role != models.RoleUser {
		return services.NewValidationFailure("last message must come from the user")
	}
	if strings.TrimSpace(last.Content) == "" {
		return services.NewValidationFailure("last user message cannot be empty")
	}
	return nil
}

func toProviderMessages(messages []models.ConversationMessage) []providers.Message {
	out := make([]providers.Message, len(messages))
	for i, m := range messages {
		out[i] = providers.Message{Role: m.Role, Content: m.Content}
	}
	return out
}
