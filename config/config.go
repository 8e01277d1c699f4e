package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Index backends
const (
	IndexBackendPostgres = "postgres"
	IndexBackendQdrant   = "qdrant"
	IndexBackendMemory   = "memory"
)

// DefaultSystemPrompt keeps the model grounded in the retrieved catalog context.
const DefaultSystemPrompt = "You are a specialized Smart Retail Assistant for a Walmart-like store. " +
	"Your primary goal is to help users find products based ONLY on the provided context from our catalog. " +
	"STRICT GROUNDING RULES: " +
	"1. Only discuss products that are explicitly listed in the 'Context' section below. " +
	"2. If the user asks for something not in the context, say: 'I'm sorry, I couldn't find any products matching that description in our current catalog.' " +
	"3. Do not use outside knowledge about products, prices, or availability. " +
	"4. Always mention the price and category when recommending a product. " +
	"5. Be professional, helpful, and concise."

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Index         IndexConfig
	Providers     ProvidersConfig
	Embedding     EmbeddingConfig
	Generation    GenerationConfig
	Retrieval     RetrievalConfig
	Ingestion     IngestionConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
	AllowedOrigins  []string
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// IndexConfig selects and configures the vector search backend
type IndexConfig struct {
	Backend       string
	ProductsTable string
	Qdrant        QdrantConfig
}

// QdrantConfig holds Qdrant gRPC connection settings
type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
}

// ProvidersConfig holds model provider configurations
type ProvidersConfig struct {
	OpenAI OpenAIConfig
}

// OpenAIConfig holds OpenAI / Azure OpenAI provider configuration.
// AzureEndpoint switches the adapter to Azure deployment URLs.
type OpenAIConfig struct {
	APIKey          string
	BaseURL         string
	AzureEndpoint   string
	AzureAPIVersion string
	Timeout         time.Duration
	MaxRetries      int
	RetryDelay      time.Duration
}

// IsAzure reports whether requests go to an Azure OpenAI resource
func (c *OpenAIConfig) IsAzure() bool {
	return c.AzureEndpoint != ""
}

// EmbeddingConfig describes the embedding model and its vector size
type EmbeddingConfig struct {
	Model      string
	Dimensions int
}

// GenerationConfig describes the chat completion call
type GenerationConfig struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// RetrievalConfig holds the retrieval and prompt composition knobs.
// Fields can be overridden from a YAML file named by RETRIEVAL_CONFIG_FILE.
type RetrievalConfig struct {
	TopK                int           `yaml:"top_k"`
	MaxTopK             int           `yaml:"max_top_k"`
	MinSimilarity       *float64      `yaml:"min_similarity"`
	DescriptionMaxChars int           `yaml:"description_max_chars"`
	HistoryWindow       int           `yaml:"history_window"`
	CurrencySymbol      string        `yaml:"currency_symbol"`
	NoResultsText       string        `yaml:"no_results_text"`
	SystemPrompt        string        `yaml:"system_prompt"`
	EmbedTimeout        time.Duration `yaml:"embed_timeout"`
	SearchTimeout       time.Duration `yaml:"search_timeout"`
}

// IngestionConfig holds bulk loader settings
type IngestionConfig struct {
	CSVPath            string
	Limit              int
	MaxNameLength      int
	MaxCategoryLength  int
	MaxBrandLength     int
	EmbedRatePerSecond float64
	EmbedBurst         int
}

// ObservabilityConfig holds logging and tracing configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string // json or console
	TracingEnabled bool
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 90*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			RequestTimeout:  getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 75*time.Second),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Database: loadDatabaseConfig(),
		Index: IndexConfig{
			Backend:       strings.ToLower(getEnv("INDEX_BACKEND", IndexBackendPostgres)),
			ProductsTable: getEnv("PRODUCTS_TABLE", "products"),
			Qdrant: QdrantConfig{
				Host:       getEnv("QDRANT_HOST", "localhost"),
				Port:       getEnvAsInt("QDRANT_PORT", 6334),
				APIKey:     getEnv("QDRANT_API_KEY", ""),
				UseTLS:     getEnvAsBool("QDRANT_USE_TLS", false),
				Collection: getEnv("QDRANT_COLLECTION", "products"),
			},
		},
		Providers: ProvidersConfig{
			OpenAI: OpenAIConfig{
				APIKey:          getEnv("OPENAI_API_KEY", ""),
				BaseURL:         getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
				AzureEndpoint:   getEnv("OPENAI_ENDPOINT", ""),
				AzureAPIVersion: getEnv("OPENAI_API_VERSION", "2024-06-01"),
				Timeout:         getEnvAsDuration("OPENAI_TIMEOUT", 60*time.Second),
				MaxRetries:      getEnvAsInt("OPENAI_MAX_RETRIES", 3),
				RetryDelay:      getEnvAsDuration("OPENAI_RETRY_DELAY", 500*time.Millisecond),
			},
		},
		Embedding: EmbeddingConfig{
			Model:      getEnv("EMBEDDING_MODEL_NAME", "text-embedding-3-small"),
			Dimensions: getEnvAsInt("EMBEDDING_DIMENSIONS", 1536),
		},
		Generation: GenerationConfig{
			Model:       getEnv("OPENAI_MODEL_NAME", "gpt-4o-mini"),
			Temperature: getEnvAsFloat("GENERATION_TEMPERATURE", 0.7),
			MaxTokens:   getEnvAsInt("GENERATION_MAX_TOKENS", 0),
			Timeout:     getEnvAsDuration("GENERATION_TIMEOUT", 30*time.Second),
		},
		Retrieval: RetrievalConfig{
			TopK:                getEnvAsInt("RETRIEVAL_TOP_K", 5),
			MaxTopK:             getEnvAsInt("RETRIEVAL_MAX_TOP_K", 50),
			MinSimilarity:       getEnvAsOptionalFloat("RETRIEVAL_MIN_SIMILARITY"),
			DescriptionMaxChars: getEnvAsInt("RETRIEVAL_DESCRIPTION_MAX_CHARS", 200),
			HistoryWindow:       getEnvAsInt("RETRIEVAL_HISTORY_WINDOW", 5),
			CurrencySymbol:      getEnv("RETRIEVAL_CURRENCY_SYMBOL", "$"),
			NoResultsText:       getEnv("RETRIEVAL_NO_RESULTS_TEXT", "No matching products found."),
			SystemPrompt:        getEnv("RETRIEVAL_SYSTEM_PROMPT", DefaultSystemPrompt),
			EmbedTimeout:        getEnvAsDuration("RETRIEVAL_EMBED_TIMEOUT", 15*time.Second),
			SearchTimeout:       getEnvAsDuration("RETRIEVAL_SEARCH_TIMEOUT", 10*time.Second),
		},
		Ingestion: IngestionConfig{
			CSVPath:            getEnv("INGEST_CSV_PATH", "walmart-product-with-embeddings-dataset-usa-text-3-small.csv"),
			Limit:              getEnvAsInt("INGEST_LIMIT", 1000),
			MaxNameLength:      getEnvAsInt("INGEST_MAX_NAME_LENGTH", 200),
			MaxCategoryLength:  getEnvAsInt("INGEST_MAX_CATEGORY_LENGTH", 1000),
			MaxBrandLength:     getEnvAsInt("INGEST_MAX_BRAND_LENGTH", 500),
			EmbedRatePerSecond: getEnvAsFloat("INGEST_EMBED_RATE", 5),
			EmbedBurst:         getEnvAsInt("INGEST_EMBED_BURST", 1),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			TracingEnabled: getEnvAsBool("TRACING_ENABLED", false),
		},
	}

	if path := getEnv("RETRIEVAL_CONFIG_FILE", ""); path != "" {
		if err := cfg.Retrieval.LoadFile(path); err != nil {
			return nil, fmt.Errorf("failed to load retrieval config: %w", err)
		}
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadFile overlays the retrieval settings present in a YAML file.
// Keys missing from the file keep their current values.
func (r *RetrievalConfig) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return r.UnmarshalOverlay(data)
}

// UnmarshalOverlay decodes YAML on top of the current values
func (r *RetrievalConfig) UnmarshalOverlay(data []byte) error {
	if err := yaml.Unmarshal(data, r); err != nil {
		return fmt.Errorf("invalid retrieval yaml: %w", err)
	}
	return nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	switch c.Index.Backend {
	case IndexBackendPostgres:
		if c.Database.ConnectionString == "" && c.Database.Host == "" {
			return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
		}
		if c.Database.ConnectionString == "" {
			if c.Database.User == "" {
				return fmt.Errorf("database user is required")
			}
			if c.Database.Database == "" {
				return fmt.Errorf("database name is required")
			}
		}
		if c.Index.ProductsTable == "" {
			return fmt.Errorf("products table is required")
		}
	case IndexBackendQdrant:
		if c.Index.Qdrant.Host == "" {
			return fmt.Errorf("qdrant host is required")
		}
		if c.Index.Qdrant.Collection == "" {
			return fmt.Errorf("qdrant collection is required")
		}
	case IndexBackendMemory:
	default:
		return fmt.Errorf("unknown index backend %q", c.Index.Backend)
	}

	if c.IsProduction() && c.Providers.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required in production")
	}

	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding model is required")
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive")
	}
	if c.Generation.Model == "" {
		return fmt.Errorf("generation model is required")
	}
	if c.Generation.Temperature < 0 || c.Generation.Temperature > 2 {
		return fmt.Errorf("generation temperature must be between 0 and 2")
	}

	r := c.Retrieval
	if r.MaxTopK <= 0 {
		return fmt.Errorf("retrieval max top k must be positive")
	}
	if r.TopK <= 0 || r.TopK > r.MaxTopK {
		return fmt.Errorf("retrieval top k must be between 1 and %d", r.MaxTopK)
	}
	if r.MinSimilarity != nil && (*r.MinSimilarity < -1 || *r.MinSimilarity > 1) {
		return fmt.Errorf("retrieval min similarity must be between -1 and 1")
	}
	if r.DescriptionMaxChars <= 0 {
		return fmt.Errorf("description max chars must be positive")
	}
	if r.HistoryWindow <= 0 {
		return fmt.Errorf("history window must be positive")
	}
	if r.EmbedTimeout <= 0 || r.SearchTimeout <= 0 || c.Generation.Timeout <= 0 {
		return fmt.Errorf("stage timeouts must be positive")
	}

	in := c.Ingestion
	if in.MaxNameLength <= 0 || in.MaxCategoryLength <= 0 || in.MaxBrandLength <= 0 {
		return fmt.Errorf("ingestion field limits must be positive")
	}
	if in.EmbedRatePerSecond <= 0 {
		return fmt.Errorf("ingestion embed rate must be positive")
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password)
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			return fmt.Sprintf("host=%s port=%s database=%s", u.Hostname(), port, strings.TrimPrefix(u.Path, "/"))
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Address returns the Qdrant gRPC address
func (c *QdrantConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func loadDatabaseConfig() DatabaseConfig {
	pool := DatabaseConfig{
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
	if dbURL := getEnv("DATABASE_URL", ""); dbURL != "" {
		pool.ConnectionString = dbURL
		return pool
	}
	pool.Host = getEnv("DB_HOST", "localhost")
	pool.Port = getEnvAsInt("DB_PORT", 5432)
	pool.User = getEnv("DB_USER", "retail")
	pool.Password = getEnv("DB_PASSWORD", "")
	pool.Database = getEnv("DB_NAME", "retail")
	pool.SSLMode = getEnv("DB_SSLMODE", "disable")
	return pool
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8000)
func getPort() int {
	for _, key := range []string{"PORT", "SERVER_PORT"} {
		if value := os.Getenv(key); value != "" {
			if p, err := strconv.Atoi(value); err == nil {
				return p
			}
		}
	}
	return 8000
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsOptionalFloat returns nil when the variable is unset or unparsable
func getEnvAsOptionalFloat(key string) *float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return nil
	}
	return &value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
