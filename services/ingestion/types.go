package ingestion

import (
	"context"
	"time"
)

// Embedder produces vectors for records that arrive without one
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// RawRecord is one source row, still as text
type RawRecord struct {
	Row         int
	ID          string
	Name        string
	Description string
	Category    string
	Price       string
	Brand       string
	// Embedding is an optional JSON array, e.g. "[0.01, -0.2, ...]"
	Embedding string
}

// Config holds the per-record limits and embed pacing
type Config struct {
	Dimensions         int
	MaxNameLength      int
	MaxCategoryLength  int
	MaxBrandLength     int
	EmbedRatePerSecond float64
	EmbedBurst         int
}

// Defaults applied when Config leaves a limit unset
const (
	DefaultMaxNameLength     = 200
	DefaultMaxCategoryLength = 1000
	DefaultMaxBrandLength    = 500
)

// RecordError explains why a record was not stored
type RecordError struct {
	Row    int    `json:"row"`
	Name   string `json:"name,omitempty"`
	Reason string `json:"reason"`
}

// Report summarizes one ingestion batch
type Report struct {
	BatchID  string        `json:"batch_id"`
	Total    int           `json:"total"`
	Inserted int           `json:"inserted"`
	Skipped  int           `json:"skipped"`
	Errors   []RecordError `json:"errors"`
	Duration time.Duration `json:"duration"`
}

func (r *Report) skip(rec RawRecord, reason string) {
	r.Errors = append(r.Errors, RecordError{Row: rec.Row, Name: rec.Name, Reason: reason})
	r.Skipped++
}
