package repositories

import (
	"context"

	"github.com/upb/smart-retail-assistant/models"
)

// ProductIndex answers nearest-neighbour queries over product embeddings
type ProductIndex interface {
	// Search returns up to k products ordered by cosine similarity to query, highest first.
	// Products without an embedding are never returned.
	Search(ctx context.Context, query []float32, k int) ([]models.SearchResult, error)
}

// ProductWriter persists catalog records
type ProductWriter interface {
	// Insert stores the product and returns its ID. A zero ID lets the store assign one.
	Insert(ctx context.Context, product *models.ProductRecord) (int64, error)
}

// ProductStore is a full catalog backend
type ProductStore interface {
	ProductIndex
	ProductWriter

	// Count returns the number of stored products
	Count(ctx context.Context) (int64, error)

	// EnsureSchema creates the table or collection for vectors of size dims if missing
	EnsureSchema(ctx context.Context, dims int) error

	// HealthCheck reports whether the backend is reachable
	HealthCheck(ctx context.Context) error

	// Close releases backend resources
	Close() error
}
