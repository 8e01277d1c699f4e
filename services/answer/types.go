package answer

import (
	"context"
	"time"

	"github.com/upb/smart-retail-assistant/models"
	"github.com/upb/smart-retail-assistant/services/providers"
)

// Embedder turns the shopper's question into a query vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher returns the catalog products closest to a query vector
type Searcher interface {
	Search(ctx context.Context, query []float32, topK int) ([]models.SearchResult, error)
}

// Config holds the per-answer retrieval and generation settings
type Config struct {
	TopK         int
	SystemPrompt string
	Model        string
	Temperature  float64
	MaxTokens    int
	Timeout      time.Duration
}

// Result is a grounded answer and the products it was grounded on
type Result struct {
	Answer    string                `json:"answer"`
	Sources   []models.SearchResult `json:"sources"`
	Model     string                `json:"model"`
	RequestID string                `json:"request_id"`
	Usage     providers.Usage       `json:"usage"`
	Latency   time.Duration         `json:"-"`
}
