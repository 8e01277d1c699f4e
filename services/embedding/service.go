package embedding

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/upb/smart-retail-assistant/services"
	"github.com/upb/smart-retail-assistant/services/providers"
	"go.uber.org/zap"
)

// Config holds the embedding model settings
type Config struct {
	Model      string
	Dimensions int
	Timeout    time.Duration
}

// Client turns query and product text into fixed-size vectors
type Client struct {
	provider providers.EmbeddingProvider
	config   Config
	logger   *zap.Logger
}

// NewClient creates a new embedding client
func NewClient(provider providers.EmbeddingProvider, config Config, logger *zap.Logger) *Client {
	return &Client{
		provider: provider,
		config:   config,
		logger:   logger,
	}
}

// Dimensions returns the declared vector size, or 0 when unchecked
func (c *Client) Dimensions() int {
	return c.config.Dimensions
}

// Model returns the embedding model name
func (c *Client) Model() string {
	return c.config.Model
}

// Embed returns the vector for text.
// Blank text is a validation failure; every provider-side problem is an embedding failure.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, services.NewValidationFailure("text to embed cannot be empty")
	}

	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.provider.Embed(ctx, &providers.EmbeddingRequest{
		Model: c.config.Model,
		Input: []string{text},
	})
	if err != nil {
		c.logger.Warn("embedding request failed",
			zap.String("provider", c.provider.Name()),
			zap.String("model", c.config.Model),
			zap.Error(err))
		return nil, services.NewEmbeddingFailure("embedding provider call failed", err).
			WithDetail("provider", c.provider.Name())
	}

	if resp == nil || len(resp.Vectors) == 0 || len(resp.Vectors[0]) == 0 {
		return nil, services.NewEmbeddingFailure("embedding provider returned no vector", nil)
	}

	vector := resp.Vectors[0]
	if c.config.Dimensions > 0 && len(vector) != c.config.Dimensions {
		return nil, services.NewEmbeddingFailure(
			fmt.Sprintf("embedding has %d dimensions, expected %d", len(vector), c.config.Dimensions), nil).
			WithDetail("dimensions", len(vector))
	}

	c.logger.Debug("text embedded",
		zap.String("model", c.config.Model),
		zap.Int("dimensions", len(vector)),
		zap.Int64("latency_ms", time.Since(start).Milliseconds()))

	return vector, nil
}
