package models

import "encoding/json"

// ProductRecord is one catalog entry together with its embedding
type ProductRecord struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"product_name" db:"product_name" validate:"required"`
	Description string    `json:"description" db:"description"`
	Category    string    `json:"category" db:"category"`
	Price       *float64  `json:"list_price" db:"list_price" validate:"omitempty,gte=0"`
	Brand       string    `json:"brand" db:"brand"`
	Embedding   []float32 `json:"-" db:"embedding"`
}

// TableName returns the table name for the ProductRecord model
func (ProductRecord) TableName() string {
	return "products"
}

// HasEmbedding reports whether the record can take part in a search over vectors of size dims
func (p *ProductRecord) HasEmbedding(dims int) bool {
	return len(p.Embedding) > 0 && len(p.Embedding) == dims
}

// SearchResult is a product paired with its cosine similarity to the query
type SearchResult struct {
	Product    ProductRecord
	Similarity float64
}

// searchResultJSON flattens the product fields next to the score
type searchResultJSON struct {
	ID          int64    `json:"id"`
	Name        string   `json:"product_name"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Price       *float64 `json:"list_price"`
	Brand       string   `json:"brand"`
	Similarity  float64  `json:"similarity"`
}

// MarshalJSON renders the result as a flat source object
func (r SearchResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(searchResultJSON{
		ID:          r.Product.ID,
		Name:        r.Product.Name,
		Description: r.Product.Description,
		Category:    r.Product.Category,
		Price:       r.Product.Price,
		Brand:       r.Product.Brand,
		Similarity:  r.Similarity,
	})
}

// UnmarshalJSON reads the flat source object
func (r *SearchResult) UnmarshalJSON(data []byte) error {
	var raw searchResultJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Product = ProductRecord{
		ID:          raw.ID,
		Name:        raw.Name,
		Description: raw.Description,
		Category:    raw.Category,
		Price:       raw.Price,
		Brand:       raw.Brand,
	}
	r.Similarity = raw.Similarity
	return nil
}
