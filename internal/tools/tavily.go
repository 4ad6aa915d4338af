package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/berth-dev/todoagent/internal/llm"
)

// DefaultTavilyURL is the Tavily API endpoint.
const DefaultTavilyURL = "https://api.tavily.com"

// TavilyClient performs authenticated calls against the Tavily REST API.
type TavilyClient struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// NewTavilyClient returns a client for apiKey. An empty baseURL uses the
// public endpoint.
func NewTavilyClient(apiKey, baseURL string) *TavilyClient {
	if baseURL == "" {
		baseURL = DefaultTavilyURL
	}
	return &TavilyClient{
		APIKey:     apiKey,
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *TavilyClient) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("tavily %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("reading tavily response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tavily %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding tavily response: %w", err)
	}
	return nil
}

// TavilySearch is a web search tool.
type TavilySearch struct {
	Client     *TavilyClient
	MaxResults int
	Topic      string
}

type searchRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
	Topic      string `json:"topic"`
}

type searchResponse struct {
	Query   string `json:"query"`
	Answer  string `json:"answer"`
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Definition implements Tool.
func (t *TavilySearch) Definition() llm.ToolDef {
	return llm.ToolDef{
		Name:        "tavily_search",
		Description: "Search the web. Returns the most relevant results with title, URL and a content snippet.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string", "description": "The search query"},
			},
			"required": []string{"query"},
		},
	}
}

// Call implements Tool.
func (t *TavilySearch) Call(ctx context.Context, args map[string]any) (string, error) {
	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("query is required")
	}
	maxResults := t.MaxResults
	if maxResults <= 0 {
		maxResults = 3
	}
	topic := t.Topic
	if topic == "" {
		topic = "general"
	}

	var resp searchResponse
	if err := t.Client.post(ctx, "/search", searchRequest{Query: query, MaxResults: maxResults, Topic: topic}, &resp); err != nil {
		return "", err
	}
	if len(resp.Results) == 0 {
		return "No results found.", nil
	}

	var b strings.Builder
	for i, r := range resp.Results {
		fmt.Fprintf(&b, "%d. %s\n   %s\n   %s\n", i+1, r.Title, r.URL, strings.TrimSpace(r.Content))
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// TavilyExtract fetches and extracts the readable content of web pages.
type TavilyExtract struct {
	Client *TavilyClient
	Depth  string
}

type extractRequest struct {
	URLs          []string `json:"urls"`
	ExtractDepth  string   `json:"extract_depth"`
	IncludeImages bool     `json:"include_images"`
}

type extractResponse struct {
	Results []struct {
		URL        string `json:"url"`
		RawContent string `json:"raw_content"`
	} `json:"results"`
	FailedResults []struct {
		URL   string `json:"url"`
		Error string `json:"error"`
	} `json:"failed_results"`
}

// Definition implements Tool.
func (t *TavilyExtract) Definition() llm.ToolDef {
	return llm.ToolDef{
		Name:        "tavily_extract",
		Description: "Extract the text content of one or more web pages given their URLs.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"urls": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "URLs to extract content from",
				},
			},
			"required": []string{"urls"},
		},
	}
}

// Call implements Tool.
func (t *TavilyExtract) Call(ctx context.Context, args map[string]any) (string, error) {
	urls := stringList(args["urls"])
	if len(urls) == 0 {
		return "", fmt.Errorf("urls is required")
	}
	depth := t.Depth
	if depth == "" {
		depth = "basic"
	}

	var resp extractResponse
	if err := t.Client.post(ctx, "/extract", extractRequest{URLs: urls, ExtractDepth: depth}, &resp); err != nil {
		return "", err
	}

	var b strings.Builder
	for _, r := range resp.Results {
		fmt.Fprintf(&b, "URL: %s\n%s\n\n", r.URL, strings.TrimSpace(r.RawContent))
	}
	for _, f := range resp.FailedResults {
		fmt.Fprintf(&b, "URL: %s\nfailed: %s\n\n", f.URL, f.Error)
	}
	if b.Len() == 0 {
		return "No content extracted.", nil
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// stringList accepts either a JSON array of strings or a single string.
func stringList(v any) []string {
	switch val := v.(type) {
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
