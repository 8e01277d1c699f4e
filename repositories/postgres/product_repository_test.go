package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/smart-retail-assistant/models"
	"go.uber.org/zap"
)

func newMockRepository(t *testing.T) (*ProductRepository, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	db := NewDBFromConn(conn, zap.NewNop())
	return NewProductRepository(db, "products", zap.NewNop()), mock
}

func TestProductRepository_Search(t *testing.T) {
	repo, mock := newMockRepository(t)

	rows := sqlmock.NewRows([]string{"id", "product_name", "description", "category", "list_price", "brand", "similarity"}).
		AddRow(3, "Wireless Headphones", "Bluetooth over-ear", "Electronics", 59.99, "Acme", 0.92).
		AddRow(8, "Wired Earbuds", nil, nil, nil, nil, 0.71)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM "products"`)).
		WithArgs(sqlmock.AnyArg(), 5).
		WillReturnRows(rows)

	results, err := repo.Search(context.Background(), []float32{0.1, 0.2, 0.3}, 5)
	require.NoError(t, err)
	require.Len(t, results, 2)

	first := results[0]
	assert.Equal(t, int64(3), first.Product.ID)
	assert.Equal(t, "Wireless Headphones", first.Product.Name)
	assert.Equal(t, "Electronics", first.Product.Category)
	require.NotNil(t, first.Product.Price)
	assert.Equal(t, 59.99, *first.Product.Price)
	assert.Equal(t, 0.92, first.Similarity)

	second := results[1]
	assert.Equal(t, "", second.Product.Description)
	assert.Equal(t, "", second.Product.Category)
	assert.Nil(t, second.Product.Price)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_SearchError(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM "products"`)).
		WillReturnError(errors.New("relation does not exist"))

	_, err := repo.Search(context.Background(), []float32{1}, 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to search products")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_SearchScanError(t *testing.T) {
	repo, mock := newMockRepository(t)

	rows := sqlmock.NewRows([]string{"id", "product_name", "description", "category", "list_price", "brand", "similarity"}).
		AddRow("not-a-number", "Mug", nil, nil, nil, nil, 0.5)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM "products"`)).WillReturnRows(rows)

	_, err := repo.Search(context.Background(), []float32{1}, 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to scan product")
}

func TestProductRepository_Insert(t *testing.T) {
	t.Run("store assigns id", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		price := 12.5
		product := &models.ProductRecord{
			Name:      "Coffee Mug",
			Category:  "Kitchen",
			Price:     &price,
			Embedding: []float32{0.1, 0.2},
		}

		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "products" (product_name, description, category, list_price, brand, embedding)`)).
			WithArgs("Coffee Mug", nil, "Kitchen", 12.5, nil, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

		id, err := repo.Insert(context.Background(), product)
		require.NoError(t, err)
		assert.Equal(t, int64(42), id)
		assert.Equal(t, int64(42), product.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("explicit id", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		product := &models.ProductRecord{ID: 7, Name: "Lamp", Embedding: []float32{1}}

		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "products" (id, product_name`)).
			WithArgs("Lamp", nil, nil, nil, nil, sqlmock.AnyArg(), int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
		mock.ExpectExec(regexp.QuoteMeta(`SELECT setval(pg_get_serial_sequence($1, 'id'), (SELECT MAX(id) FROM "products"))`)).
			WithArgs(`"products"`).
			WillReturnResult(sqlmock.NewResult(0, 1))

		id, err := repo.Insert(context.Background(), product)
		require.NoError(t, err)
		assert.Equal(t, int64(7), id)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("explicit id sequence failure", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		product := &models.ProductRecord{ID: 9, Name: "Rug", Embedding: []float32{1}}

		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "products" (id, product_name`)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))
		mock.ExpectExec(regexp.QuoteMeta(`SELECT setval(`)).
			WillReturnError(errors.New("permission denied for sequence"))

		_, err := repo.Insert(context.Background(), product)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to advance product id sequence")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database error", func(t *testing.T) {
		repo, mock := newMockRepository(t)

		mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "products"`)).
			WillReturnError(errors.New("value too long"))

		_, err := repo.Insert(context.Background(), &models.ProductRecord{Name: "x"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to insert product")
	})
}

func TestNewProductRepository_DefaultTable(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	repo := NewProductRepository(NewDBFromConn(conn, zap.NewNop()), "", zap.NewNop())

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM "products"`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_Count(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM "products"`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1000))

	count, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1000), count)
}

func TestProductRepository_EnsureSchema(t *testing.T) {
	t.Run("creates extension, table and index", func(t *testing.T) {
		repo, mock := newMockRepository(t)

		mock.ExpectExec(`CREATE EXTENSION IF NOT EXISTS vector;(.|\s)*embedding vector\(1536\)(.|\s)*USING hnsw`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		require.NoError(t, repo.EnsureSchema(context.Background(), 1536))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects non-positive dimensions", func(t *testing.T) {
		repo, _ := newMockRepository(t)
		assert.Error(t, repo.EnsureSchema(context.Background(), 0))
	})
}

func TestProductRepository_HealthCheck(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectPing()
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	require.NoError(t, repo.HealthCheck(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_HealthCheckPingFails(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	err := repo.HealthCheck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database health check failed")
}
