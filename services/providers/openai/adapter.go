package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/upb/smart-retail-assistant/services/providers"
)

const (
	defaultBaseURL         = "https://api.openai.com/v1"
	defaultAzureAPIVersion = "2024-06-01"
)

var _ providers.Provider = (*OpenAIAdapter)(nil)

// OpenAIAdapter implements ChatProvider and EmbeddingProvider for OpenAI and Azure OpenAI
type OpenAIAdapter struct {
	config     providers.ProviderConfig
	httpClient *http.Client
	retry      providers.RetryPolicy
}

// Option customizes an adapter
type Option func(*OpenAIAdapter)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(a *OpenAIAdapter) {
		a.httpClient = client
	}
}

// WithTracing instruments outbound calls with OpenTelemetry spans
func WithTracing() Option {
	return func(a *OpenAIAdapter) {
		base := a.httpClient.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		a.httpClient.Transport = otelhttp.NewTransport(base)
	}
}

// NewOpenAIAdapter creates a new OpenAI adapter
func NewOpenAIAdapter(config providers.ProviderConfig, opts ...Option) *OpenAIAdapter {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	config.AzureEndpoint = strings.TrimRight(config.AzureEndpoint, "/")
	if config.AzureEndpoint != "" && config.AzureAPIVersion == "" {
		config.AzureAPIVersion = defaultAzureAPIVersion
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	adapter := &OpenAIAdapter{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		retry: providers.RetryPolicyFromConfig(config),
	}
	for _, opt := range opts {
		opt(adapter)
	}
	return adapter
}

// Name returns the provider name
func (a *OpenAIAdapter) Name() string {
	if a.isAzure() {
		return "azure-openai"
	}
	return "openai"
}

func (a *OpenAIAdapter) isAzure() bool {
	return a.config.AzureEndpoint != ""
}

// ChatCompletion performs a chat completion request
func (a *OpenAIAdapter) ChatCompletion(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	startTime := time.Now()

	reqBody, err := json.Marshal(a.buildOpenAIRequest(req))
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), providers.CodeInvalidRequest, "failed to marshal request", 0, false, err)
	}

	respBody, err := a.post(ctx, a.endpoint(req.Model, "chat/completions"), reqBody)
	if err != nil {
		return nil, err
	}

	var openaiResp OpenAIChatResponse
	if err := json.Unmarshal(respBody, &openaiResp); err != nil {
		return nil, providers.NewProviderError(a.Name(), providers.CodeInvalidResponse, "failed to unmarshal response", http.StatusOK, false, err)
	}

	if len(openaiResp.Choices) > 0 {
		first := openaiResp.Choices[0]
		if first.FinishReason == "content_filter" && first.Message.Content == "" {
			return nil, providers.NewProviderError(a.Name(), providers.CodeContentFilter, "completion blocked by content filter", http.StatusOK, false, nil)
		}
	}

	return a.convertToUnifiedResponse(&openaiResp, time.Since(startTime)), nil
}

// Embed requests embeddings for every input string
func (a *OpenAIAdapter) Embed(ctx context.Context, req *providers.EmbeddingRequest) (*providers.EmbeddingResponse, error) {
	reqBody, err := json.Marshal(OpenAIEmbeddingRequest{Model: req.Model, Input: req.Input})
	if err != nil {
		return nil, providers.NewProviderError(a.Name(), providers.CodeInvalidRequest, "failed to marshal request", 0, false, err)
	}

	respBody, err := a.post(ctx, a.endpoint(req.Model, "embeddings"), reqBody)
	if err != nil {
		return nil, err
	}

	var openaiResp OpenAIEmbeddingResponse
	if err := json.Unmarshal(respBody, &openaiResp); err != nil {
		return nil, providers.NewProviderError(a.Name(), providers.CodeInvalidResponse, "failed to unmarshal response", http.StatusOK, false, err)
	}
	if len(openaiResp.Data) != len(req.Input) {
		return nil, providers.NewProviderError(a.Name(), providers.CodeInvalidResponse,
			fmt.Sprintf("expected %d embeddings, got %d", len(req.Input), len(openaiResp.Data)), http.StatusOK, false, nil)
	}

	sort.Slice(openaiResp.Data, func(i, j int) bool {
		return openaiResp.Data[i].Index < openaiResp.Data[j].Index
	})

	resp := &providers.EmbeddingResponse{
		Model:   openaiResp.Model,
		Vectors: make([][]float32, len(openaiResp.Data)),
		Usage: providers.Usage{
			PromptTokens: openaiResp.Usage.PromptTokens,
			TotalTokens:  openaiResp.Usage.TotalTokens,
		},
	}
	for i, d := range openaiResp.Data {
		resp.Vectors[i] = d.Embedding
	}
	return resp, nil
}

// endpoint builds the URL for an operation. Azure addresses models by deployment name.
func (a *OpenAIAdapter) endpoint(model, operation string) string {
	if a.isAzure() {
		return fmt.Sprintf("%s/openai/deployments/%s/%s?api-version=%s",
			a.config.AzureEndpoint, url.PathEscape(model), operation, url.QueryEscape(a.config.AzureAPIVersion))
	}
	return a.config.BaseURL + "/" + operation
}

// post sends body to target with retry and returns the successful response body
func (a *OpenAIAdapter) post(ctx context.Context, target string, body []byte) ([]byte, error) {
	return providers.Retry(ctx, a.retry, func(ctx context.Context) ([]byte, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
		if err != nil {
			return nil, providers.NewProviderError(a.Name(), providers.CodeInvalidRequest, "failed to create request", 0, false, err)
		}
		a.setHeaders(httpReq)

		httpResp, err := a.httpClient.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return nil, providers.NewProviderError(a.Name(), providers.CodeTimeout, "request cancelled or timed out", 0, false, ctx.Err())
			}
			var urlErr *url.Error
			if errors.As(err, &urlErr) && urlErr.Timeout() {
				return nil, providers.NewProviderError(a.Name(), providers.CodeTimeout, "request timed out", 0, true, err)
			}
			return nil, providers.NewProviderError(a.Name(), providers.CodeTransport, "HTTP request failed", 0, true, err)
		}
		defer httpResp.Body.Close()

		respBody, err := io.ReadAll(httpResp.Body)
		if err != nil {
			return nil, providers.NewProviderError(a.Name(), providers.CodeTransport, "failed to read response", httpResp.StatusCode, true, err)
		}

		if httpResp.StatusCode != http.StatusOK {
			return nil, a.handleErrorResponse(httpResp.StatusCode, respBody)
		}
		return respBody, nil
	})
}

func (a *OpenAIAdapter) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if a.isAzure() {
		req.Header.Set("api-key", a.config.APIKey)
	} else {
		req.Header.Set("Authorization", "Bearer "+a.config.APIKey)
	}
	for k, v := range a.config.Headers {
		req.Header.Set(k, v)
	}
}

// buildOpenAIRequest converts a chat request to OpenAI format
func (a *OpenAIAdapter) buildOpenAIRequest(req *providers.ChatRequest) *OpenAIChatRequest {
	temperature := req.Temperature
	openaiReq := &OpenAIChatRequest{
		Model:       req.Model,
		Messages:    make([]OpenAIMessage, len(req.Messages)),
		Temperature: &temperature,
	}

	for i, msg := range req.Messages {
		openaiReq.Messages[i] = OpenAIMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	if req.MaxTokens > 0 {
		openaiReq.MaxTokens = &req.MaxTokens
	}

	return openaiReq
}

// convertToUnifiedResponse converts an OpenAI response to the provider-neutral form
func (a *OpenAIAdapter) convertToUnifiedResponse(openaiResp *OpenAIChatResponse, latency time.Duration) *providers.ChatResponse {
	resp := &providers.ChatResponse{
		ID:       openaiResp.ID,
		Model:    openaiResp.Model,
		Provider: a.Name(),
		Choices:  make([]providers.Choice, len(openaiResp.Choices)),
		Usage: providers.Usage{
			PromptTokens:     openaiResp.Usage.PromptTokens,
			CompletionTokens: openaiResp.Usage.CompletionTokens,
			TotalTokens:      openaiResp.Usage.TotalTokens,
		},
		Latency: latency,
		Created: time.Unix(openaiResp.Created, 0),
	}

	for i, choice := range openaiResp.Choices {
		resp.Choices[i] = providers.Choice{
			Index: choice.Index,
			Message: providers.Message{
				Role:    choice.Message.Role,
				Content: choice.Message.Content,
			},
			FinishReason: choice.FinishReason,
		}
	}

	return resp
}

// handleErrorResponse classifies OpenAI error responses
func (a *OpenAIAdapter) handleErrorResponse(statusCode int, body []byte) error {
	var errResp OpenAIErrorResponse
	message := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	}

	code := providers.CodeInvalidRequest
	retryable := false
	switch {
	case statusCode == http.StatusTooManyRequests:
		code, retryable = providers.CodeRateLimited, true
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusGatewayTimeout:
		code, retryable = providers.CodeTimeout, true
	case statusCode >= 500:
		code, retryable = providers.CodeServerError, true
	case errResp.Error.Code == "content_filter" || errResp.Error.Code == "content_policy_violation":
		code = providers.CodeContentFilter
	}

	return providers.NewProviderError(a.Name(), code, message, statusCode, retryable, nil)
}

// OpenAI-specific request/response types

type OpenAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []OpenAIMessage `json:"messages"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
}

type OpenAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type OpenAIChatResponse struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []OpenAIChoice `json:"choices"`
	Usage   OpenAIUsage    `json:"usage"`
}

type OpenAIChoice struct {
	Index        int           `json:"index"`
	Message      OpenAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type OpenAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type OpenAIEmbeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type OpenAIEmbeddingResponse struct {
	Object string                `json:"object"`
	Model  string                `json:"model"`
	Data   []OpenAIEmbeddingData `json:"data"`
	Usage  OpenAIUsage           `json:"usage"`
}

type OpenAIEmbeddingData struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

type OpenAIErrorResponse struct {
	Error OpenAIError `json:"error"`
}

type OpenAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}
