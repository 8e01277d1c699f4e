package catalog

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/upb/smart-retail-assistant/models"
	"github.com/upb/smart-retail-assistant/repositories"
	"github.com/upb/smart-retail-assistant/services"
	"go.uber.org/zap"
)

// DefaultMaxTopK bounds every search when Config.MaxTopK is unset
const DefaultMaxTopK = 50

// Config holds the search limits
type Config struct {
	Dimensions    int
	MaxTopK       int
	MinSimilarity *float64
	Timeout       time.Duration
}

// Index ranks catalog products against a query vector
type Index struct {
	backend repositories.ProductIndex
	config  Config
	logger  *zap.Logger
}

// NewIndex creates a new catalog index over a backend
func NewIndex(backend repositories.ProductIndex, config Config, logger *zap.Logger) *Index {
	if config.MaxTopK <= 0 {
		config.MaxTopK = DefaultMaxTopK
	}
	return &Index{
		backend: backend,
		config:  config,
		logger:  logger,
	}
}

// Search returns at most topK products ordered by similarity descending, ties by lower id.
// topK above the configured maximum is clamped. An empty catalog yields an empty slice.
func (i *Index) Search(ctx context.Context, query []float32, topK int) ([]models.SearchResult, error) {
	if topK <= 0 {
		return nil, services.NewValidationFailure("top k must be positive").WithDetail("top_k", topK)
	}
	if len(query) == 0 {
		return nil, services.NewValidationFailure("query vector cannot be empty")
	}
	if i.config.Dimensions > 0 && len(query) != i.config.Dimensions {
		return nil, services.NewValidationFailure(
			fmt.Sprintf("query vector has %d dimensions, index expects %d", len(query), i.config.Dimensions))
	}

	if topK > i.config.MaxTopK {
		i.logger.Debug("top k clamped", zap.Int("requested", topK), zap.Int("max", i.config.MaxTopK))
		topK = i.config.MaxTopK
	}

	if i.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	candidates, err := i.backend.Search(ctx, query, topK)
	if err != nil {
		i.logger.Warn("catalog search failed", zap.Error(err))
		return nil, services.NewIndexUnavailable("catalog search failed", err)
	}

	results := i.rank(candidates, topK)

	i.logger.Debug("catalog searched",
		zap.Int("top_k", topK),
		zap.Int("candidates", len(candidates)),
		zap.Int("results", len(results)),
		zap.Int64("latency_ms", time.Since(start).Milliseconds()))

	return results, nil
}

// rank applies the similarity floor, sorts, keeps the best hit per id and truncates
func (i *Index) rank(candidates []models.SearchResult, topK int) []models.SearchResult {
	filtered := make([]models.SearchResult, 0, len(candidates))
	for _, c := range candidates {
		if i.config.MinSimilarity != nil && c.Similarity < *i.config.MinSimilarity {
			continue
		}
		filtered = append(filtered, c)
	}

	sort.SliceStable(filtered, func(a, b int) bool {
		if filtered[a].Similarity != filtered[b].Similarity {
			return filtered[a].Similarity > filtered[b].Similarity
		}
		return filtered[a].Product.ID < filtered[b].Product.ID
	})

	seen := make(map[int64]struct{}, len(filtered))
	results := make([]models.SearchResult, 0, topK)
	for _, c := range filtered {
		if len(results) == topK {
			break
		}
		if _, dup := seen[c.Product.ID]; dup {
			continue
		}
		seen[c.Product.ID] = struct{}{}
		results = append(results, c)
	}
	return results
}
