package ports

import (
	"context"

	"github.com/avolkov/climate-rag/internal/core/domain"
)

// ChatService is the inbound contract for one conversation turn.
type ChatService interface {
	SubmitTurn(ctx context.Context, sessionKey string, msg domain.Message) (*domain.Answer, error)
}

// ChatDirectory is the inbound read/create model for conversation threads.
type ChatDirectory interface {
	CreateChat(ctx context.Context, name string) (*domain.ChatSession, error)
	ListChats(ctx context.Context) ([]domain.ChatSession, error)
	ListMessages(ctx context.Context, sessionKey string) ([]domain.Message, error)
}

// CorpusIngestor is the inbound contract for corpus ingestion.
type CorpusIngestor interface {
	Enqueue(ctx context.Context, path string) error
	ProcessCorpus(ctx context.Context, path string) (*domain.IngestStats, error)
}
