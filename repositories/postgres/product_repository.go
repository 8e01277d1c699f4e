package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/upb/smart-retail-assistant/models"
	"github.com/upb/smart-retail-assistant/repositories"
	"go.uber.org/zap"
)

// ProductRepository implements repositories.ProductStore on PostgreSQL with pgvector
type ProductRepository struct {
	db     *DB
	table  string
	logger *zap.Logger
}

var _ repositories.ProductStore = (*ProductRepository)(nil)

// NewProductRepository creates a new product repository over table.
// An empty table name falls back to models.ProductRecord.TableName.
func NewProductRepository(db *DB, table string, logger *zap.Logger) *ProductRepository {
	if table == "" {
		table = models.ProductRecord{}.TableName()
	}
	return &ProductRepository{
		db:     db,
		table:  table,
		logger: logger,
	}
}

// Search returns the k nearest products by cosine distance.
// Ties on distance are broken by the lower id.
func (r *ProductRepository) Search(ctx context.Context, query []float32, k int) ([]models.SearchResult, error) {
	stmt := fmt.Sprintf(`
		SELECT id, product_name, description, category, list_price, brand,
		       1 - (embedding <=> $1) AS similarity
		FROM %s
		WHERE embedding IS NOT NULL
		ORDER BY embedding <=> $1, id
		LIMIT $2
	`, pq.QuoteIdentifier(r.table))

	rows, err := r.db.QueryContext(ctx, stmt, pgvector.NewVector(query), k)
	if err != nil {
		return nil, fmt.Errorf("failed to search products: %w", err)
	}
	defer rows.Close()

	results := make([]models.SearchResult, 0, k)
	for rows.Next() {
		var (
			result      models.SearchResult
			description sql.NullString
			category    sql.NullString
			price       sql.NullFloat64
			brand       sql.NullString
		)
		if err := rows.Scan(
			&result.Product.ID,
			&result.Product.Name,
			&description,
			&category,
			&price,
			&brand,
			&result.Similarity,
		); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		result.Product.Description = description.String
		result.Product.Category = category.String
		result.Product.Brand = brand.String
		if price.Valid {
			p := price.Float64
			result.Product.Price = &p
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate products: %w", err)
	}

	r.logger.Debug("products searched", zap.Int("k", k), zap.Int("results", len(results)))
	return results, nil
}

// Insert stores a product and returns its id
func (r *ProductRepository) Insert(ctx context.Context, product *models.ProductRecord) (int64, error) {
	var embedding interface{}
	if len(product.Embedding) > 0 {
		embedding = pgvector.NewVector(product.Embedding)
	}

	args := []interface{}{
		product.Name,
		nullString(product.Description),
		nullString(product.Category),
		product.Price,
		nullString(product.Brand),
		embedding,
	}

	stmt := fmt.Sprintf(`
		INSERT INTO %s (product_name, description, category, list_price, brand, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, pq.QuoteIdentifier(r.table))
	if product.ID > 0 {
		stmt = fmt.Sprintf(`
			INSERT INTO %s (id, product_name, description, category, list_price, brand, embedding)
			VALUES ($7, $1, $2, $3, $4, $5, $6)
			RETURNING id
		`, pq.QuoteIdentifier(r.table))
		args = append(args, product.ID)
	}

	var id int64
	if err := r.db.QueryRowContext(ctx, stmt, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to insert product: %w", err)
	}
	if product.ID > 0 {
		if err := r.advanceSequence(ctx); err != nil {
			return 0, err
		}
	}

	product.ID = id
	r.logger.Debug("product inserted", zap.Int64("id", id), zap.String("name", product.Name))
	return id, nil
}

// advanceSequence moves the id sequence past explicitly inserted ids so later
// store-assigned ids do not collide with them.
func (r *ProductRepository) advanceSequence(ctx context.Context) error {
	table := pq.QuoteIdentifier(r.table)
	stmt := fmt.Sprintf(`SELECT setval(pg_get_serial_sequence($1, 'id'), (SELECT MAX(id) FROM %s))`, table)
	if _, err := r.db.ExecContext(ctx, stmt, table); err != nil {
		return fmt.Errorf("failed to advance product id sequence: %w", err)
	}
	return nil
}

// Count returns the number of rows in the products table
func (r *ProductRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	stmt := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, pq.QuoteIdentifier(r.table))
	if err := r.db.QueryRowContext(ctx, stmt).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return count, nil
}

// EnsureSchema creates the products table and vector index
func (r *ProductRepository) EnsureSchema(ctx context.Context, dims int) error {
	return r.db.InitSchema(ctx, r.table, dims)
}

// HealthCheck pings the database
func (r *ProductRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// Close closes the underlying pool
func (r *ProductRepository) Close() error {
	return r.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
