package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/upb/smart-retail-assistant/services/providers"
)

func testConfig(baseURL string) providers.ProviderConfig {
	return providers.ProviderConfig{
		APIKey:     "test-key",
		BaseURL:    baseURL,
		Timeout:    5 * time.Second,
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
	}
}

func TestNewOpenAIAdapter(t *testing.T) {
	adapter := NewOpenAIAdapter(providers.ProviderConfig{APIKey: "test-key"})

	if adapter == nil {
		t.Fatal("NewOpenAIAdapter() returned nil")
	}
	if adapter.Name() != "openai" {
		t.Errorf("Name() = %s, want openai", adapter.Name())
	}
	if adapter.config.BaseURL != defaultBaseURL {
		t.Errorf("BaseURL = %s, want %s", adapter.config.BaseURL, defaultBaseURL)
	}
}

func TestNewOpenAIAdapter_Azure(t *testing.T) {
	adapter := NewOpenAIAdapter(providers.ProviderConfig{
		APIKey:        "azure-key",
		AzureEndpoint: "https://retail.openai.azure.com/",
	})

	if adapter.Name() != "azure-openai" {
		t.Errorf("Name() = %s, want azure-openai", adapter.Name())
	}

	got := adapter.endpoint("gpt-4o-mini", "chat/completions")
	want := "https://retail.openai.azure.com/openai/deployments/gpt-4o-mini/chat/completions?api-version=" + defaultAzureAPIVersion
	if got != want {
		t.Errorf("endpoint() = %s, want %s", got, want)
	}
}

func TestOpenAIAdapter_ChatCompletion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Expected path /chat/completions, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Expected Authorization header with test-key")
		}

		body, _ := io.ReadAll(r.Body)
		var req OpenAIChatRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("Failed to unmarshal request: %v", err)
		}
		if req.Model != "gpt-4o-mini" {
			t.Errorf("Expected model gpt-4o-mini, got %s", req.Model)
		}
		if req.Temperature == nil || *req.Temperature != 0.7 {
			t.Errorf("Expected temperature 0.7, got %v", req.Temperature)
		}
		if len(req.Messages) != 3 || req.Messages[1].Content != "Context:\nproducts" {
			t.Errorf("Unexpected messages: %+v", req.Messages)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(OpenAIChatResponse{
			ID:      "chatcmpl-123",
			Object:  "chat.completion",
			Created: time.Now().Unix(),
			Model:   "gpt-4o-mini",
			Choices: []OpenAIChoice{
				{
					Index:        0,
					Message:      OpenAIMessage{Role: "assistant", Content: "Try the Acme headphones."},
					FinishReason: "stop",
				},
			},
			Usage: OpenAIUsage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
		})
	}))
	defer server.Close()

	adapter := NewOpenAIAdapter(testConfig(server.URL))

	resp, err := adapter.ChatCompletion(context.Background(), &providers.ChatRequest{
		Model: "gpt-4o-mini",
		Messages: []providers.Message{
			{Role: "system", Content: "rules"},
			{Role: "system", Content: "Context:\nproducts"},
			{Role: "user", Content: "headphones?"},
		},
		Temperature: 0.7,
	})
	if err != nil {
		t.Fatalf("ChatCompletion() error = %v", err)
	}

	if resp.ID != "chatcmpl-123" {
		t.Errorf("ID = %s, want chatcmpl-123", resp.ID)
	}
	if resp.Content() != "Try the Acme headphones." {
		t.Errorf("Content = %s", resp.Content())
	}
	if resp.Usage.TotalTokens != 30 {
		t.Errorf("TotalTokens = %d, want 30", resp.Usage.TotalTokens)
	}
	if resp.Provider != "openai" {
		t.Errorf("Provider = %s, want openai", resp.Provider)
	}
}

func TestOpenAIAdapter_ChatCompletionZeroTemperatureIsSent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"temperature":0`) {
			t.Errorf("Expected explicit zero temperature in %s", body)
		}
		json.NewEncoder(w).Encode(OpenAIChatResponse{Choices: []OpenAIChoice{{Message: OpenAIMessage{Content: "ok"}}}})
	}))
	defer server.Close()

	adapter := NewOpenAIAdapter(testConfig(server.URL))
	if _, err := adapter.ChatCompletion(context.Background(), &providers.ChatRequest{Model: "gpt-4o-mini"}); err != nil {
		t.Fatalf("ChatCompletion() error = %v", err)
	}
}

func TestOpenAIAdapter_Azure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/openai/deployments/text-embedding-3-small/embeddings" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("api-version") != "2024-02-01" {
			t.Errorf("Unexpected api-version %s", r.URL.Query().Get("api-version"))
		}
		if r.Header.Get("api-key") != "azure-key" {
			t.Errorf("Expected api-key header")
		}
		if r.Header.Get("Authorization") != "" {
			t.Errorf("Azure requests must not carry a bearer token")
		}
		json.NewEncoder(w).Encode(OpenAIEmbeddingResponse{
			Data: []OpenAIEmbeddingData{{Index: 0, Embedding: []float32{0.1, 0.2}}},
		})
	}))
	defer server.Close()

	adapter := NewOpenAIAdapter(providers.ProviderConfig{
		APIKey:          "azure-key",
		AzureEndpoint:   server.URL,
		AzureAPIVersion: "2024-02-01",
	})

	resp, err := adapter.Embed(context.Background(), &providers.EmbeddingRequest{
		Model: "text-embedding-3-small",
		Input: []string{"headphones"},
	})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(resp.Vectors) != 1 || len(resp.Vectors[0]) != 2 {
		t.Errorf("Unexpected vectors %v", resp.Vectors)
	}
}

func TestOpenAIAdapter_EmbedOrdersByIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("Expected path /embeddings, got %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(OpenAIEmbeddingResponse{
			Model: "text-embedding-3-small",
			Data: []OpenAIEmbeddingData{
				{Index: 1, Embedding: []float32{2}},
				{Index: 0, Embedding: []float32{1}},
			},
			Usage: OpenAIUsage{PromptTokens: 4, TotalTokens: 4},
		})
	}))
	defer server.Close()

	adapter := NewOpenAIAdapter(testConfig(server.URL))
	resp, err := adapter.Embed(context.Background(), &providers.EmbeddingRequest{
		Model: "text-embedding-3-small",
		Input: []string{"a", "b"},
	})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if resp.Vectors[0][0] != 1 || resp.Vectors[1][0] != 2 {
		t.Errorf("Vectors not ordered by index: %v", resp.Vectors)
	}
	if resp.Usage.TotalTokens != 4 {
		t.Errorf("TotalTokens = %d, want 4", resp.Usage.TotalTokens)
	}
}

func TestOpenAIAdapter_EmbedCountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(OpenAIEmbeddingResponse{})
	}))
	defer server.Close()

	adapter := NewOpenAIAdapter(testConfig(server.URL))
	_, err := adapter.Embed(context.Background(), &providers.EmbeddingRequest{Model: "m", Input: []string{"a"}})

	provErr, ok := err.(*providers.ProviderError)
	if !ok {
		t.Fatalf("Expected ProviderError, got %T", err)
	}
	if provErr.Code != providers.CodeInvalidResponse {
		t.Errorf("Code = %s, want %s", provErr.Code, providers.CodeInvalidResponse)
	}
}

func TestOpenAIAdapter_ErrorHandling(t *testing.T) {
	tests := []struct {
		name          string
		statusCode    int
		body          string
		expectedCode  string
		expectedRetry bool
		expectedCalls int32
	}{
		{
			name:          "rate limit",
			statusCode:    http.StatusTooManyRequests,
			body:          `{"error":{"message":"Rate limit exceeded","type":"rate_limit_error","code":"rate_limit_exceeded"}}`,
			expectedCode:  providers.CodeRateLimited,
			expectedRetry: true,
			expectedCalls: 3,
		},
		{
			name:          "server error",
			statusCode:    http.StatusInternalServerError,
			body:          `{"error":{"message":"Internal server error","type":"server_error"}}`,
			expectedCode:  providers.CodeServerError,
			expectedRetry: true,
			expectedCalls: 3,
		},
		{
			name:          "content filter",
			statusCode:    http.StatusBadRequest,
			body:          `{"error":{"message":"filtered","type":"invalid_request_error","code":"content_filter"}}`,
			expectedCode:  providers.CodeContentFilter,
			expectedCalls: 1,
		},
		{
			name:          "invalid api key",
			statusCode:    http.StatusUnauthorized,
			body:          `{"error":{"message":"Invalid API key","type":"invalid_request_error"}}`,
			expectedCode:  providers.CodeInvalidRequest,
			expectedCalls: 1,
		},
		{
			name:          "non json body",
			statusCode:    http.StatusBadGateway,
			body:          "bad gateway",
			expectedCode:  providers.CodeServerError,
			expectedRetry: true,
			expectedCalls: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(tt.statusCode)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			adapter := NewOpenAIAdapter(testConfig(server.URL))
			_, err := adapter.ChatCompletion(context.Background(), &providers.ChatRequest{
				Model:    "gpt-4o-mini",
				Messages: []providers.Message{{Role: "user", Content: "test"}},
			})

			if err == nil {
				t.Fatal("Expected error but got none")
			}
			provErr, ok := err.(*providers.ProviderError)
			if !ok {
				t.Fatalf("Expected ProviderError, got %T", err)
			}
			if provErr.Code != tt.expectedCode {
				t.Errorf("Code = %s, want %s", provErr.Code, tt.expectedCode)
			}
			if provErr.StatusCode != tt.statusCode {
				t.Errorf("StatusCode = %d, want %d", provErr.StatusCode, tt.statusCode)
			}
			if provErr.Retryable != tt.expectedRetry {
				t.Errorf("Retryable = %v, want %v", provErr.Retryable, tt.expectedRetry)
			}
			if got := atomic.LoadInt32(&calls); got != tt.expectedCalls {
				t.Errorf("calls = %d, want %d", got, tt.expectedCalls)
			}
		})
	}
}

func TestOpenAIAdapter_ContentFilterFinishReason(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(OpenAIChatResponse{
			Choices: []OpenAIChoice{{FinishReason: "content_filter"}},
		})
	}))
	defer server.Close()

	adapter := NewOpenAIAdapter(testConfig(server.URL))
	_, err := adapter.ChatCompletion(context.Background(), &providers.ChatRequest{Model: "gpt-4o-mini"})

	if !providers.IsContentFiltered(err) {
		t.Errorf("Expected content filter error, got %v", err)
	}
}

func TestOpenAIAdapter_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	adapter := NewOpenAIAdapter(testConfig(server.URL))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := adapter.ChatCompletion(ctx, &providers.ChatRequest{Model: "gpt-4o-mini"})
	if err == nil {
		t.Fatal("Expected error due to context cancellation")
	}
	if !providers.IsTimeout(err) {
		t.Errorf("Expected timeout error, got %v", err)
	}
}

func TestOpenAIAdapter_WithTracing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(OpenAIChatResponse{Choices: []OpenAIChoice{{Message: OpenAIMessage{Content: "traced"}}}})
	}))
	defer server.Close()

	adapter := NewOpenAIAdapter(testConfig(server.URL), WithTracing())
	if adapter.httpClient.Transport == nil {
		t.Fatal("Expected instrumented transport")
	}

	resp, err := adapter.ChatCompletion(context.Background(), &providers.ChatRequest{Model: "gpt-4o-mini"})
	if err != nil {
		t.Fatalf("ChatCompletion() error = %v", err)
	}
	if resp.Content() != "traced" {
		t.Errorf("Content = %s, want traced", resp.Content())
	}
}
