package google

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avolkov/climate-rag/internal/core/domain"
)

const defaultBaseURL = "https://www.googleapis.com/customsearch/v1"

const defaultResultCount = 5

// Client queries the Google Custom Search JSON API. Results whose host
// matches a denied domain are dropped before the caller sees them; a query
// with no surviving results yields the no-result sentinel instead of an
// empty slice.
type Client struct {
	baseURL       string
	apiKey        string
	engineID      string
	resultCount   int
	deniedDomains []string
	httpClient    *http.Client
}

type Options struct {
	// BaseURL overrides the API endpoint, used by tests.
	BaseURL  string
	APIKey   string
	EngineID string

	// ResultCount caps results per query. Zero means 5.
	ResultCount int

	// DeniedDomains lists host suffixes to drop, e.g. "youtube.com".
	DeniedDomains []string
}

func New(options Options) *Client {
	baseURL := strings.TrimSpace(options.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	resultCount := options.ResultCount
	if resultCount <= 0 {
		resultCount = defaultResultCount
	}
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		apiKey:        options.APIKey,
		engineID:      options.EngineID,
		resultCount:   resultCount,
		deniedDomains: options.DeniedDomains,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) SearchWeb(ctx context.Context, query string) ([]domain.WebResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return noResultSentinel(), nil
	}

	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("cx", c.engineID)
	params.Set("q", query)
	params.Set("num", fmt.Sprintf("%d", c.resultCount))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("google search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if msg := strings.TrimSpace(string(raw)); msg != "" {
			return nil, fmt.Errorf("google search status: %s: %s", resp.Status, msg)
		}
		return nil, fmt.Errorf("google search status: %s", resp.Status)
	}

	var searchResp struct {
		Items []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	out := make([]domain.WebResult, 0, len(searchResp.Items))
	for _, item := range searchResp.Items {
		if c.isDenied(item.Link) {
			continue
		}
		out = append(out, domain.WebResult{
			Title:   item.Title,
			Link:    item.Link,
			Snippet: item.Snippet,
		})
	}
	if len(out) == 0 {
		return noResultSentinel(), nil
	}
	return out, nil
}

func (c *Client) isDenied(link string) bool {
	parsed, err := url.Parse(link)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	for _, denied := range c.deniedDomains {
		denied = strings.ToLower(strings.TrimSpace(denied))
		if denied == "" {
			continue
		}
		if host == denied || strings.HasSuffix(host, "."+denied) {
			return true
		}
	}
	return false
}

func noResultSentinel() []domain.WebResult {
	return []domain.WebResult{{Title: domain.WebNoResultTitle}}
}
