// Package memory provides an in-process catalog backend.
// It scans every product on each query, which suits tests, demos and small catalogs.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/upb/smart-retail-assistant/models"
	"github.com/upb/smart-retail-assistant/repositories"
)

// ProductIndex keeps products and their embeddings in memory
type ProductIndex struct {
	mu       sync.RWMutex
	products map[int64]models.ProductRecord
	nextID   int64
	dims     int
}

var _ repositories.ProductStore = (*ProductIndex)(nil)

// NewProductIndex creates an empty index
func NewProductIndex() *ProductIndex {
	return &ProductIndex{
		products: make(map[int64]models.ProductRecord),
		nextID:   1,
	}
}

// Insert stores a copy of the product
func (s *ProductIndex) Insert(ctx context.Context, product *models.ProductRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dims > 0 && len(product.Embedding) > 0 && len(product.Embedding) != s.dims {
		return 0, fmt.Errorf("embedding has %d dimensions, index expects %d", len(product.Embedding), s.dims)
	}

	id := product.ID
	if id <= 0 {
		id = s.nextID
	}
	if _, exists := s.products[id]; exists {
		return 0, fmt.Errorf("product %d already exists", id)
	}
	if id >= s.nextID {
		s.nextID = id + 1
	}

	stored := *product
	stored.ID = id
	stored.Embedding = append([]float32(nil), product.Embedding...)
	s.products[id] = stored

	product.ID = id
	return id, nil
}

// Search finds the k products most similar to query
func (s *ProductIndex) Search(ctx context.Context, query []float32, k int) ([]models.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	queryNorm := norm(query)
	if queryNorm == 0 || k <= 0 {
		return []models.SearchResult{}, nil
	}

	results := make([]models.SearchResult, 0, len(s.products))
	for _, p := range s.products {
		if !p.HasEmbedding(len(query)) {
			continue
		}
		productNorm := norm(p.Embedding)
		if productNorm == 0 {
			continue
		}
		results = append(results, models.SearchResult{
			Product:    p,
			Similarity: dot(query, p.Embedding) / (queryNorm * productNorm),
		})
	}

	// Sort by score descending, then id ascending
	sort.Slice(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].Product.ID < results[j].Product.ID
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Count returns the number of stored products
func (s *ProductIndex) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.products)), nil
}

// EnsureSchema pins the embedding size accepted by Insert
func (s *ProductIndex) EnsureSchema(ctx context.Context, dims int) error {
	if dims <= 0 {
		return fmt.Errorf("embedding dimensions must be positive, got %d", dims)
	}
	s.mu.Lock()
	s.dims = dims
	s.mu.Unlock()
	return nil
}

// HealthCheck always succeeds
func (s *ProductIndex) HealthCheck(ctx context.Context) error {
	return nil
}

// Close drops all products
func (s *ProductIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = make(map[int64]models.ProductRecord)
	return nil
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func norm(v []float32) float64 {
	return math.Sqrt(dot(v, v))
}
