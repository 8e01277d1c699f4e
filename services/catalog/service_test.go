package catalog

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/smart-retail-assistant/models"
	"github.com/upb/smart-retail-assistant/repositories/memory"
	"github.com/upb/smart-retail-assistant/services"
	"go.uber.org/zap"
)

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) Search(ctx context.Context, query []float32, k int) ([]models.SearchResult, error) {
	args := m.Called(ctx, query, k)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.SearchResult), args.Error(1)
}

func result(id int64, similarity float64) models.SearchResult {
	return models.SearchResult{Product: models.ProductRecord{ID: id, Name: fmt.Sprintf("p%d", id)}, Similarity: similarity}
}

func ids(results []models.SearchResult) []int64 {
	out := make([]int64, len(results))
	for i, r := range results {
		out[i] = r.Product.ID
	}
	return out
}

func TestIndex_SearchRejectsInvalidInput(t *testing.T) {
	backend := new(mockBackend)
	idx := NewIndex(backend, Config{Dimensions: 2}, zap.NewNop())

	tests := []struct {
		name  string
		query []float32
		topK  int
	}{
		{name: "zero top k", query: []float32{1, 0}, topK: 0},
		{name: "negative top k", query: []float32{1, 0}, topK: -3},
		{name: "empty query", query: nil, topK: 5},
		{name: "dimension mismatch", query: []float32{1, 0, 0}, topK: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := idx.Search(context.Background(), tt.query, tt.topK)
			assert.True(t, services.IsValidationError(err))
		})
	}
	backend.AssertNotCalled(t, "Search", mock.Anything, mock.Anything, mock.Anything)
}

func TestIndex_SearchClampsTopK(t *testing.T) {
	backend := new(mockBackend)
	backend.On("Search", mock.Anything, []float32{1}, 50).Return([]models.SearchResult{}, nil)

	idx := NewIndex(backend, Config{}, zap.NewNop())
	results, err := idx.Search(context.Background(), []float32{1}, 1000)

	require.NoError(t, err)
	assert.Empty(t, results)
	backend.AssertExpectations(t)
}

func TestIndex_SearchWrapsBackendErrors(t *testing.T) {
	backend := new(mockBackend)
	backend.On("Search", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

	idx := NewIndex(backend, Config{}, zap.NewNop())
	_, err := idx.Search(context.Background(), []float32{1}, 5)

	require.Error(t, err)
	assert.True(t, services.IsIndexUnavailable(err))
	assert.ErrorIs(t, err, services.ErrIndexUnavailable)
}

func TestIndex_SearchOrdersAndDeduplicates(t *testing.T) {
	backend := new(mockBackend)
	backend.On("Search", mock.Anything, mock.Anything, 3).Return([]models.SearchResult{
		result(5, 0.40),
		result(2, 0.90),
		result(9, 0.90),
		result(2, 0.95),
		result(1, 0.10),
	}, nil)

	idx := NewIndex(backend, Config{}, zap.NewNop())
	results, err := idx.Search(context.Background(), []float32{1}, 3)

	require.NoError(t, err)
	assert.Equal(t, []int64{2, 9, 5}, ids(results))
	assert.Equal(t, 0.95, results[0].Similarity)
}

func TestIndex_SearchAppliesSimilarityFloor(t *testing.T) {
	floor := 0.5
	backend := new(mockBackend)
	backend.On("Search", mock.Anything, mock.Anything, 5).Return([]models.SearchResult{
		result(1, 0.8),
		result(2, 0.5),
		result(3, 0.49),
	}, nil)

	idx := NewIndex(backend, Config{MinSimilarity: &floor}, zap.NewNop())
	results, err := idx.Search(context.Background(), []float32{1}, 5)

	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids(results))
}

func TestIndex_SearchAllBelowFloorIsEmpty(t *testing.T) {
	floor := 0.99
	backend := new(mockBackend)
	backend.On("Search", mock.Anything, mock.Anything, 5).Return([]models.SearchResult{result(1, 0.3)}, nil)

	idx := NewIndex(backend, Config{MinSimilarity: &floor}, zap.NewNop())
	results, err := idx.Search(context.Background(), []float32{1}, 5)

	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestIndex_SearchAppliesTimeout(t *testing.T) {
	backend := new(mockBackend)
	backend.On("Search", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			_, ok := args.Get(0).(context.Context).Deadline()
			assert.True(t, ok)
		}).
		Return([]models.SearchResult{}, nil)

	idx := NewIndex(backend, Config{Timeout: time.Second}, zap.NewNop())
	_, err := idx.Search(context.Background(), []float32{1}, 5)
	require.NoError(t, err)
}

// The following run against the in-memory backend end to end.

func newMemoryIndex(t *testing.T, products ...models.ProductRecord) *Index {
	t.Helper()
	store := memory.NewProductIndex()
	for i := range products {
		_, err := store.Insert(context.Background(), &products[i])
		require.NoError(t, err)
	}
	return NewIndex(store, Config{Dimensions: 3}, zap.NewNop())
}

func TestIndex_SearchReturnsExactlyKWhenCatalogIsLarger(t *testing.T) {
	var products []models.ProductRecord
	for i := 1; i <= 20; i++ {
		products = append(products, models.ProductRecord{
			ID:        int64(i),
			Name:      fmt.Sprintf("product %d", i),
			Embedding: []float32{float32(i), 1, 0},
		})
	}
	idx := newMemoryIndex(t, products...)

	results, err := idx.Search(context.Background(), []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, results, 5)

	seen := map[int64]bool{}
	for n, r := range results {
		assert.False(t, seen[r.Product.ID], "duplicate id %d", r.Product.ID)
		seen[r.Product.ID] = true
		if n > 0 {
			assert.GreaterOrEqual(t, results[n-1].Similarity, r.Similarity)
		}
	}
}

func TestIndex_SearchIsDeterministic(t *testing.T) {
	idx := newMemoryIndex(t,
		models.ProductRecord{ID: 3, Name: "a", Embedding: []float32{0, 1, 0}},
		models.ProductRecord{ID: 1, Name: "b", Embedding: []float32{0, 2, 0}},
		models.ProductRecord{ID: 2, Name: "c", Embedding: []float32{1, 1, 0}},
	)

	first, err := idx.Search(context.Background(), []float32{0, 1, 0}, 3)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := idx.Search(context.Background(), []float32{0, 1, 0}, 3)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, []int64{1, 3, 2}, ids(first))
}

func TestIndex_SearchEmptyCatalog(t *testing.T) {
	idx := newMemoryIndex(t)

	results, err := idx.Search(context.Background(), []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}
