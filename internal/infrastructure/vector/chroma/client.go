package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avolkov/climate-rag/internal/core/domain"
)

// Client serves one Chroma collection over its HTTP API. The collection is
// created on first use and its server-side id is cached for the lifetime of
// the client.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client

	ensureMu     sync.Mutex
	collectionID string
}

func New(baseURL, collection string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) IndexDocuments(ctx context.Context, docs []domain.RetrievedDocument, vectors [][]float32) error {
	if len(docs) == 0 || len(vectors) == 0 {
		return nil
	}
	if len(docs) != len(vectors) {
		return fmt.Errorf("documents/vectors mismatch")
	}

	collectionID, err := c.ensureCollection(ctx)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(docs))
	documents := make([]string, 0, len(docs))
	metadatas := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, uuid.NewString())
		documents = append(documents, doc.Content)
		metadatas = append(metadatas, map[string]any{
			"title":      doc.Metadata.Title,
			"year":       doc.Metadata.Year,
			"source_url": doc.Metadata.SourceURL,
		})
	}

	reqBody := map[string]any{
		"ids":        ids,
		"embeddings": vectors,
		"documents":  documents,
		"metadatas":  metadatas,
	}
	return c.postJSON(ctx, fmt.Sprintf("/api/v1/collections/%s/add", collectionID), reqBody, nil, "add")
}

func (c *Client) Search(ctx context.Context, queryVector []float32, limit int, filter domain.SearchFilter) ([]domain.RetrievedDocument, error) {
	if len(queryVector) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	collectionID, err := c.ensureCollection(ctx)
	if err != nil {
		return nil, err
	}

	reqBody := map[string]any{
		"query_embeddings": [][]float32{queryVector},
		"n_results":        limit,
		"include":          []string{"documents", "metadatas"},
	}
	if where := buildWhereFilter(filter); where != nil {
		reqBody["where"] = where
	}

	var queryResp struct {
		Documents [][]string         `json:"documents"`
		Metadatas [][]map[string]any `json:"metadatas"`
	}
	if err := c.postJSON(ctx, fmt.Sprintf("/api/v1/collections/%s/query", collectionID), reqBody, &queryResp, "query"); err != nil {
		return nil, err
	}
	if len(queryResp.Documents) == 0 {
		return nil, nil
	}

	documents := queryResp.Documents[0]
	var metadatas []map[string]any
	if len(queryResp.Metadatas) > 0 {
		metadatas = queryResp.Metadatas[0]
	}

	out := make([]domain.RetrievedDocument, 0, len(documents))
	for i, text := range documents {
		doc := domain.RetrievedDocument{Content: text}
		if i < len(metadatas) {
			doc.Metadata = domain.DocumentMetadata{
				Title:     getStringField(metadatas[i], "title"),
				Year:      getIntField(metadatas[i], "year"),
				SourceURL: getStringField(metadatas[i], "source_url"),
			}
		}
		out = append(out, doc)
	}
	return out, nil
}

// buildWhereFilter translates the metadata filter into Chroma's where
// clause. Multiple conditions combine under $and; an empty filter returns
// nil so the query stays unfiltered.
func buildWhereFilter(filter domain.SearchFilter) map[string]any {
	conditions := make([]map[string]any, 0, 2)
	if strings.TrimSpace(filter.Title) != "" {
		conditions = append(conditions, map[string]any{"title": map[string]any{"$eq": filter.Title}})
	}
	if filter.Year != 0 {
		conditions = append(conditions, map[string]any{"year": map[string]any{"$eq": filter.Year}})
	}

	switch len(conditions) {
	case 0:
		return nil
	case 1:
		return conditions[0]
	default:
		return map[string]any{"$and": conditions}
	}
}

func (c *Client) ensureCollection(ctx context.Context) (string, error) {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	if c.collectionID != "" {
		return c.collectionID, nil
	}

	reqBody := map[string]any{
		"name":          c.collection,
		"get_or_create": true,
		"metadata":      map[string]any{"hnsw:space": "cosine"},
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := c.postJSON(ctx, "/api/v1/collections", reqBody, &created, "ensure collection"); err != nil {
		return "", err
	}
	if strings.TrimSpace(created.ID) == "" {
		return "", fmt.Errorf("chroma ensure collection: empty collection id")
	}

	c.collectionID = created.ID
	return c.collectionID, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("chroma %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if msg := strings.TrimSpace(string(raw)); msg != "" {
			return fmt.Errorf("chroma %s status: %s: %s", operation, resp.Status, msg)
		}
		return fmt.Errorf("chroma %s status: %s", operation, resp.Status)
	}
	// Some endpoints answer with a bare boolean or an empty body.
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func getStringField(metadata map[string]any, key string) string {
	v, ok := metadata[key]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getIntField(metadata map[string]any, key string) int {
	switch v := metadata[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	default:
		return 0
	}
}
