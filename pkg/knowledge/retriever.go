// Package knowledge provides the retrieval backend for the agent's
// knowledge-search tool. The bridge calls it off the audio path, so a slow
// or failing retriever never stalls the conversation.
package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/voxbridge/voxbridge/internal/httpc"
)

// ErrEmptyQuery indicates a search was requested with no query text.
var ErrEmptyQuery = errors.New("knowledge: empty query")

// Retriever answers knowledge-search queries. sourceIDs scope the search to
// the call's configured knowledge sources; empty means the service's
// default corpus.
type Retriever interface {
	Search(ctx context.Context, query string, sourceIDs []string) (string, error)
}

// Result is one retrieved passage.
type Result struct {
	Title   string  `json:"title,omitempty"`
	Content string  `json:"content"`
	Score   float64 `json:"score,omitempty"`
}

// HTTPRetriever queries an external retrieval service over HTTP.
type HTTPRetriever struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

// HTTPOption configures an HTTPRetriever.
type HTTPOption func(*HTTPRetriever)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(r *HTTPRetriever) {
		r.client = client
	}
}

// WithAPIKey sets the bearer token sent to the retrieval service.
func WithAPIKey(key string) HTTPOption {
	return func(r *HTTPRetriever) {
		r.apiKey = key
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) HTTPOption {
	return func(r *HTTPRetriever) {
		r.logger = logger
	}
}

// NewHTTPRetriever creates a retriever targeting the given search endpoint.
func NewHTTPRetriever(baseURL string, opts ...HTTPOption) *HTTPRetriever {
	r := &HTTPRetriever{
		baseURL: baseURL,
		client:  httpc.Client,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "knowledge")
	return r
}

type searchRequest struct {
	Query     string   `json:"query"`
	TopK      int      `json:"top_k"`
	SourceIDs []string `json:"source_ids,omitempty"`
}

type searchResponse struct {
	Results []Result `json:"results"`
}

// Search implements Retriever. It returns the retrieved passages joined into
// one text block suitable for a tool result.
func (r *HTTPRetriever) Search(ctx context.Context, query string, sourceIDs []string) (string, error) {
	if query == "" {
		return "", ErrEmptyQuery
	}

	body, err := json.Marshal(searchRequest{Query: query, TopK: 5, SourceIDs: sourceIDs})
	if err != nil {
		return "", fmt.Errorf("knowledge: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("knowledge: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("knowledge: search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("knowledge: search returned %d: %s", resp.StatusCode, string(data))
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("knowledge: decode response: %w", err)
	}

	r.logger.Debug("search completed",
		"query_len", len(query),
		"sources", len(sourceIDs),
		"results", len(parsed.Results),
		"elapsed", time.Since(start))

	if len(parsed.Results) == 0 {
		return "No relevant information found.", nil
	}

	var buf bytes.Buffer
	for i, res := range parsed.Results {
		if i > 0 {
			buf.WriteString("\n\n")
		}
		if res.Title != "" {
			buf.WriteString(res.Title)
			buf.WriteString(": ")
		}
		buf.WriteString(res.Content)
	}
	return buf.String(), nil
}

// Static serves searches from an in-memory text corpus. It backs deployments
// without a retrieval service and the tests.
type Static struct {
	text string
}

// NewStatic creates a retriever that always returns the given text.
func NewStatic(text string) *Static {
	return &Static{text: text}
}

// Search implements Retriever.
func (s *Static) Search(_ context.Context, query string, _ []string) (string, error) {
	if query == "" {
		return "", ErrEmptyQuery
	}
	if s.text == "" {
		return "No relevant information found.", nil
	}
	return s.text, nil
}
