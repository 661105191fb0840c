package ports

import (
	"context"
	"io"

	"github.com/avolkov/climate-rag/internal/core/domain"
)

// Generator wraps the chat-completion backend. CompleteStructured constrains
// the backend to return a JSON value decoded into out; it fails when no
// conforming value can be produced.
type Generator interface {
	Complete(ctx context.Context, messages []domain.Message) (string, error)
	CompleteStructured(ctx context.Context, messages []domain.Message, out any) error
}

// Embedder builds vectors for document chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorStore indexes documents and performs metadata-filterable
// nearest-neighbor search over one collection.
type VectorStore interface {
	IndexDocuments(ctx context.Context, docs []domain.RetrievedDocument, vectors [][]float32) error
	Search(ctx context.Context, queryVector []float32, limit int, filter domain.SearchFilter) ([]domain.RetrievedDocument, error)
}

// DocumentRetriever is the opaque "top-k documents for a query" capability
// consumed by the dispatcher, one per collection.
type DocumentRetriever interface {
	Search(ctx context.Context, query string, k int, filter domain.SearchFilter) ([]domain.RetrievedDocument, error)
}

// WebSearcher runs an external web search, already filtered against the
// configured domain denylist.
type WebSearcher interface {
	SearchWeb(ctx context.Context, query string) ([]domain.WebResult, error)
}

// ConversationStore persists keyed, append-only conversation threads.
type ConversationStore interface {
	EnsureConversation(ctx context.Context, sessionKey, name string) error
	AppendMessage(ctx context.Context, sessionKey string, msg domain.Message) error
	ListRecentMessages(ctx context.Context, sessionKey string, limit int) ([]domain.Message, error)
	ListMessages(ctx context.Context, sessionKey string) ([]domain.Message, error)
	ListConversations(ctx context.Context) ([]domain.ChatSession, error)
}

// IngestQueue publishes/consumes corpus ingestion events.
type IngestQueue interface {
	PublishCorpusIngest(ctx context.Context, path string) error
	SubscribeCorpusIngest(ctx context.Context, handler func(context.Context, string) error) error
}

// ObjectStorage stores corpus source files.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// Chunker splits full-text content into indexable chunks.
type Chunker interface {
	Split(text string) []string
}
