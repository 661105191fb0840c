package redpill

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/avolkov/climate-rag/internal/core/domain"
	"github.com/avolkov/climate-rag/internal/infrastructure/resilience"
)

// Client talks to a RedPill (OpenAI-compatible) inference endpoint. One
// client serves both chat completion and embedding requests.
type Client struct {
	baseURL    string
	apiKey     string
	chatModel  string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Options struct {
	BaseURL    string
	APIKey     string
	ChatModel  string
	EmbedModel string

	// Timeout applies per HTTP request. Zero means 120s.
	Timeout time.Duration

	// ResilienceExecutor wraps every request in retry and breaker handling
	// when set.
	ResilienceExecutor *resilience.Executor
}

func New(options Options) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(options.BaseURL, "/"),
		apiKey:     options.APIKey,
		chatModel:  options.ChatModel,
		embedModel: options.EmbedModel,
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.ResilienceExecutor,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generator adapts the client to the chat-completion port.
type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) Complete(ctx context.Context, messages []domain.Message) (string, error) {
	return g.client.complete(ctx, messages, false)
}

func (g *Generator) CompleteStructured(ctx context.Context, messages []domain.Message, out any) error {
	text, err := g.client.complete(ctx, messages, true)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(extractJSONObject(text)), out); err != nil {
		return fmt.Errorf("parse structured completion: %w", err)
	}
	return nil
}

func (c *Client) complete(ctx context.Context, messages []domain.Message, structured bool) (string, error) {
	request := chatRequest{
		Model:    c.chatModel,
		Messages: toWireMessages(messages),
	}
	if structured {
		request.ResponseFormat = &struct {
			Type string `json:"type"`
		}{Type: "json_object"}
	}

	var response chatResponse
	if err := c.postJSON(ctx, "/v1/chat/completions", request, &response, "complete"); err != nil {
		return "", err
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("redpill complete: empty choices")
	}
	return strings.TrimSpace(response.Choices[0].Message.Content), nil
}

// Embedder adapts the client to the embedding port.
type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}
	var response struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := e.client.postJSON(ctx, "/v1/embeddings", request, &response, "embed"); err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(response.Data))
	for i, item := range response.Data {
		idx := item.Index
		if idx < 0 || idx >= len(vectors) {
			idx = i
		}
		vectors[idx] = item.Embedding
	}
	return vectors, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

func toWireMessages(messages []domain.Message) []chatMessage {
	wire := make([]chatMessage, 0, len(messages))
	for _, msg := range messages {
		wire = append(wire, chatMessage{Role: string(msg.Role), Content: msg.Content})
	}
	return wire
}

// extractJSONObject trims any prose the model wraps around the JSON value.
func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
