package google

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/avolkov/climate-rag/internal/core/domain"
)

func newTestClient(serverURL string, denied ...string) *Client {
	return New(Options{
		BaseURL:       serverURL,
		APIKey:        "key",
		EngineID:      "cx",
		DeniedDomains: denied,
	})
}

func TestSearchWebPassesQueryParameters(t *testing.T) {
	var capturedQuery map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedQuery = r.URL.Query()
		_, _ = w.Write([]byte(`{"items":[{"title":"Result","link":"https://example.com","snippet":"text"}]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	results, err := client.SearchWeb(context.Background(), "sea level rise")
	if err != nil {
		t.Fatalf("SearchWeb() error = %v", err)
	}
	if len(results) != 1 || results[0].Title != "Result" {
		t.Fatalf("unexpected results: %v", results)
	}
	if capturedQuery["q"][0] != "sea level rise" || capturedQuery["key"][0] != "key" || capturedQuery["cx"][0] != "cx" {
		t.Fatalf("unexpected query params: %v", capturedQuery)
	}
}

func TestSearchWebFiltersDeniedDomains(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items":[
			{"title":"Video","link":"https://www.youtube.com/watch?v=x","snippet":"a"},
			{"title":"SERP","link":"https://google.com/search?q=x","snippet":"b"},
			{"title":"Kept","link":"https://climate.example.org/report","snippet":"c"}
		]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, "youtube.com", "google.com")
	results, err := client.SearchWeb(context.Background(), "question")
	if err != nil {
		t.Fatalf("SearchWeb() error = %v", err)
	}
	if len(results) != 1 || results[0].Title != "Kept" {
		t.Fatalf("denylist not applied: %v", results)
	}
}

func TestSearchWebAllFilteredYieldsSentinel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items":[{"title":"Video","link":"https://youtube.com/x","snippet":"a"}]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, "youtube.com")
	results, err := client.SearchWeb(context.Background(), "question")
	if err != nil {
		t.Fatalf("SearchWeb() error = %v", err)
	}
	if !domain.IsWebNoResult(results) {
		t.Fatalf("expected no-result sentinel, got %v", results)
	}
}

func TestSearchWebEmptyItemsYieldsSentinel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	results, err := client.SearchWeb(context.Background(), "question")
	if err != nil {
		t.Fatalf("SearchWeb() error = %v", err)
	}
	if !domain.IsWebNoResult(results) {
		t.Fatalf("expected no-result sentinel, got %v", results)
	}
}

func TestSearchWebErrorIncludesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.SearchWeb(context.Background(), "question")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("expected response body in error, got %v", err)
	}
}

func TestIsDeniedMatchesSubdomains(t *testing.T) {
	client := newTestClient("http://unused.invalid", "youtube.com")
	if !client.isDenied("https://music.youtube.com/watch") {
		t.Fatalf("subdomain must match denied suffix")
	}
	if client.isDenied("https://notyoutube.com/page") {
		t.Fatalf("suffix match must not cross a dot boundary")
	}
}
