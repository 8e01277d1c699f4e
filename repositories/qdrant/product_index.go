package qdrant

import (
	"context"
	"fmt"
	"sync"

	"github.com/qdrant/go-client/qdrant"
	"github.com/upb/smart-retail-assistant/config"
	"github.com/upb/smart-retail-assistant/models"
	"github.com/upb/smart-retail-assistant/repositories"
	"go.uber.org/zap"
)

// Payload keys stored with every point
const (
	payloadName        = "product_name"
	payloadDescription = "description"
	payloadCategory    = "category"
	payloadPrice       = "list_price"
	payloadBrand       = "brand"
)

// pointClient is the part of *qdrant.Client the index uses
type pointClient interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Get(ctx context.Context, request *qdrant.GetPoints) ([]*qdrant.RetrievedPoint, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Count(ctx context.Context, request *qdrant.CountPoints) (uint64, error)
	HealthCheck(ctx context.Context) (*qdrant.HealthCheckReply, error)
	Close() error
}

// ProductIndex implements repositories.ProductStore on a Qdrant collection with cosine distance.
// Upsert replaces points, so Insert refuses ids that are already taken.
type ProductIndex struct {
	client     pointClient
	collection string
	logger     *zap.Logger

	mu     sync.Mutex
	nextID int64
}

var _ repositories.ProductStore = (*ProductIndex)(nil)

// NewProductIndex connects to Qdrant over gRPC
func NewProductIndex(cfg config.QdrantConfig, logger *zap.Logger) (*ProductIndex, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	logger.Info("qdrant client created",
		zap.String("address", cfg.Address()),
		zap.String("collection", cfg.Collection))

	return newProductIndex(client, cfg.Collection, logger), nil
}

func newProductIndex(client pointClient, collection string, logger *zap.Logger) *ProductIndex {
	return &ProductIndex{
		client:     client,
		collection: collection,
		logger:     logger,
	}
}

// EnsureSchema creates the collection if it does not exist
func (s *ProductIndex) EnsureSchema(ctx context.Context, dims int) error {
	if dims <= 0 {
		return fmt.Errorf("embedding dimensions must be positive, got %d", dims)
	}

	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     uint64(dims),
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	s.logger.Info("qdrant collection created",
		zap.String("collection", s.collection),
		zap.Int("dimensions", dims))
	return nil
}

// Insert upserts a product as a point. Without an explicit id the next free numeric id is used.
// An explicit id that already exists is an error.
func (s *ProductIndex) Insert(ctx context.Context, product *models.ProductRecord) (int64, error) {
	if len(product.Embedding) == 0 {
		return 0, fmt.Errorf("product %q has no embedding", product.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.assignID(ctx, product.ID)
	if err != nil {
		return 0, err
	}

	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewIDNum(uint64(id)),
				Vectors: qdrant.NewVectors(product.Embedding...),
				Payload: qdrant.NewValueMap(payloadFor(product)),
			},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to upsert product: %w", err)
	}

	product.ID = id
	s.logger.Debug("product upserted", zap.Int64("id", id), zap.String("name", product.Name))
	return id, nil
}

// assignID must be called with s.mu held. The counter is seeded from the point count,
// which undercounts when earlier batches used explicit ids, so every candidate is
// checked against the collection before use.
func (s *ProductIndex) assignID(ctx context.Context, requested int64) (int64, error) {
	if s.nextID == 0 {
		count, err := s.count(ctx)
		if err != nil {
			return 0, err
		}
		s.nextID = count + 1
	}

	if requested > 0 {
		taken, err := s.exists(ctx, requested)
		if err != nil {
			return 0, err
		}
		if taken {
			return 0, fmt.Errorf("product %d already exists", requested)
		}
		if requested >= s.nextID {
			s.nextID = requested + 1
		}
		return requested, nil
	}

	for {
		id := s.nextID
		taken, err := s.exists(ctx, id)
		if err != nil {
			return 0, err
		}
		s.nextID++
		if !taken {
			return id, nil
		}
	}
}

func (s *ProductIndex) exists(ctx context.Context, id int64) (bool, error) {
	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collection,
		Ids:            []*qdrant.PointId{qdrant.NewIDNum(uint64(id))},
	})
	if err != nil {
		return false, fmt.Errorf("failed to look up point %d: %w", id, err)
	}
	return len(points) > 0, nil
}

// Search queries the collection for the k nearest points
func (s *ProductIndex) Search(ctx context.Context, query []float32, k int) ([]models.SearchResult, error) {
	limit := uint64(k)
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query qdrant: %w", err)
	}

	results := make([]models.SearchResult, 0, len(points))
	for _, p := range points {
		results = append(results, resultFromPoint(p))
	}
	return results, nil
}

// Count returns the exact number of points
func (s *ProductIndex) Count(ctx context.Context) (int64, error) {
	return s.count(ctx)
}

func (s *ProductIndex) count(ctx context.Context) (int64, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}
	return int64(n), nil
}

// HealthCheck calls the Qdrant health endpoint
func (s *ProductIndex) HealthCheck(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant health check failed: %w", err)
	}
	return nil
}

// Close closes the gRPC connection
func (s *ProductIndex) Close() error {
	return s.client.Close()
}

// payloadFor flattens a product into Qdrant payload values. Empty optional fields are omitted.
func payloadFor(p *models.ProductRecord) map[string]any {
	payload := map[string]any{
		payloadName: p.Name,
	}
	if p.Description != "" {
		payload[payloadDescription] = p.Description
	}
	if p.Category != "" {
		payload[payloadCategory] = p.Category
	}
	if p.Brand != "" {
		payload[payloadBrand] = p.Brand
	}
	if p.Price != nil {
		payload[payloadPrice] = *p.Price
	}
	return payload
}

func resultFromPoint(p *qdrant.ScoredPoint) models.SearchResult {
	result := models.SearchResult{Similarity: float64(p.GetScore())}
	if num, ok := p.GetId().GetPointIdOptions().(*qdrant.PointId_Num); ok {
		result.Product.ID = int64(num.Num)
	}

	payload := p.GetPayload()
	result.Product.Name = payload[payloadName].GetStringValue()
	result.Product.Description = payload[payloadDescription].GetStringValue()
	result.Product.Category = payload[payloadCategory].GetStringValue()
	result.Product.Brand = payload[payloadBrand].GetStringValue()

	if v, ok := payload[payloadPrice]; ok {
		switch kind := v.GetKind().(type) {
		case *qdrant.Value_DoubleValue:
			price := kind.DoubleValue
			result.Product.Price = &price
		case *qdrant.Value_IntegerValue:
			price := float64(kind.IntegerValue)
			result.Product.Price = &price
		}
	}
	return result
}
