package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/upb/smart-retail-assistant/models"
	"github.com/upb/smart-retail-assistant/repositories"
	"github.com/upb/smart-retail-assistant/services/prompt"
	"github.com/upb/smart-retail-assistant/utils"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Pipeline validates, embeds and stores catalog records
type Pipeline struct {
	writer   repositories.ProductWriter
	embedder Embedder
	limiter  *rate.Limiter
	config   Config
	logger   *zap.Logger
}

// NewPipeline creates a new ingestion pipeline.
// embedder may be nil when every record carries a precomputed embedding.
func NewPipeline(writer repositories.ProductWriter, embedder Embedder, config Config, logger *zap.Logger) *Pipeline {
	if config.MaxNameLength <= 0 {
		config.MaxNameLength = DefaultMaxNameLength
	}
	if config.MaxCategoryLength <= 0 {
		config.MaxCategoryLength = DefaultMaxCategoryLength
	}
	if config.MaxBrandLength <= 0 {
		config.MaxBrandLength = DefaultMaxBrandLength
	}
	if config.EmbedBurst <= 0 {
		config.EmbedBurst = 1
	}

	limit := rate.Inf
	if config.EmbedRatePerSecond > 0 {
		limit = rate.Limit(config.EmbedRatePerSecond)
	}

	return &Pipeline{
		writer:   writer,
		embedder: embedder,
		limiter:  rate.NewLimiter(limit, config.EmbedBurst),
		config:   config,
		logger:   logger,
	}
}

// Ingest stores every valid record. A bad record is reported and skipped;
// it never stops the batch. A cancelled context skips whatever is left.
func (p *Pipeline) Ingest(ctx context.Context, records []RawRecord) *Report {
	start := time.Now()
	report := &Report{
		BatchID: uuid.New().String(),
		Total:   len(records),
		Errors:  []RecordError{},
	}

	p.logger.Info("starting ingestion batch",
		zap.String("batch_id", report.BatchID),
		zap.Int("records", len(records)))

	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			for _, rest := range records[i:] {
				report.skip(rest, err.Error())
			}
			p.logger.Warn("ingestion batch cancelled",
				zap.String("batch_id", report.BatchID),
				zap.Int("remaining", len(records)-i))
			break
		}

		if err := p.ingestOne(ctx, rec); err != nil {
			p.logger.Debug("record skipped",
				zap.String("batch_id", report.BatchID),
				zap.Int("row", rec.Row),
				zap.Error(err))
			report.skip(rec, err.Error())
			continue
		}
		report.Inserted++
	}

	report.Duration = time.Since(start)

	p.logger.Info("ingestion batch completed",
		zap.String("batch_id", report.BatchID),
		zap.Int("inserted", report.Inserted),
		zap.Int("skipped", report.Skipped),
		zap.Int64("duration_ms", report.Duration.Milliseconds()))

	return report
}

func (p *Pipeline) ingestOne(ctx context.Context, rec RawRecord) error {
	product, err := p.buildRecord(rec)
	if err != nil {
		return err
	}

	if len(product.Embedding) == 0 {
		vector, err := p.embed(ctx, product)
		if err != nil {
			return err
		}
		product.Embedding = vector
	}
	if p.config.Dimensions > 0 && !product.HasEmbedding(p.config.Dimensions) {
		return fmt.Errorf("embedding has %d dimensions, expected %d", len(product.Embedding), p.config.Dimensions)
	}

	if _, err := p.writer.Insert(ctx, product); err != nil {
		return fmt.Errorf("failed to store product: %w", err)
	}
	return nil
}

// buildRecord trims, parses and truncates a raw row into a product
func (p *Pipeline) buildRecord(rec RawRecord) (*models.ProductRecord, error) {
	product := &models.ProductRecord{
		Name:        prompt.Truncate(prompt.SingleLine(strings.TrimSpace(rec.Name)), p.config.MaxNameLength),
		Description: prompt.SingleLine(strings.TrimSpace(rec.Description)),
		Category:    prompt.Truncate(prompt.SingleLine(strings.TrimSpace(rec.Category)), p.config.MaxCategoryLength),
		Brand:       prompt.Truncate(prompt.SingleLine(strings.TrimSpace(rec.Brand)), p.config.MaxBrandLength),
	}

	if product.Name == "" {
		return nil, fmt.Errorf("product name is required")
	}

	if id := strings.TrimSpace(rec.ID); id != "" {
		parsed, err := strconv.ParseInt(id, 10, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("invalid id %q", id)
		}
		product.ID = parsed
	}

	price, err := parsePrice(rec.Price)
	if err != nil {
		return nil, err
	}
	product.Price = price

	if err := utils.ValidateStruct(product); err != nil {
		return nil, err
	}

	embedding, err := parseEmbedding(rec.Embedding, p.config.Dimensions)
	if err != nil {
		return nil, err
	}
	product.Embedding = embedding

	return product, nil
}

func (p *Pipeline) embed(ctx context.Context, product *models.ProductRecord) ([]float32, error) {
	if p.embedder == nil {
		return nil, fmt.Errorf("record has no embedding and no embedder is configured")
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("embedding rate limiter: %w", err)
	}
	vector, err := p.embedder.Embed(ctx, embeddingText(product))
	if err != nil {
		return nil, fmt.Errorf("failed to embed product: %w", err)
	}
	return vector, nil
}

// embeddingText joins the descriptive fields the way the catalog is queried
func embeddingText(product *models.ProductRecord) string {
	parts := make([]string, 0, 4)
	for _, s := range []string{product.Name, product.Description, product.Category, product.Brand} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ". ")
}

func parsePrice(raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	raw = strings.TrimPrefix(raw, "$")
	value, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return nil, fmt.Errorf("invalid price %q", raw)
	}
	if value < 0 {
		return nil, fmt.Errorf("price cannot be negative: %s", raw)
	}
	return &value, nil
}

func parseEmbedding(raw string, dims int) ([]float32, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var vector []float32
	if err := json.Unmarshal([]byte(raw), &vector); err != nil {
		return nil, fmt.Errorf("invalid embedding: %w", err)
	}
	if len(vector) == 0 {
		return nil, nil
	}
	if dims > 0 && len(vector) != dims {
		return nil, fmt.Errorf("embedding has %d dimensions, expected %d", len(vector), dims)
	}
	return vector, nil
}
