package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/avolkov/climate-rag/internal/core/domain"
	"github.com/avolkov/climate-rag/internal/core/ports"
)

const embedBatchSize = 32

// CorpusIngestUseCase loads a corpus file of theses and indexes whole
// abstracts into the abstract collection and split full-text chunks into the
// content collection.
type CorpusIngestUseCase struct {
	storage  ports.ObjectStorage
	queue    ports.IngestQueue
	chunker  ports.Chunker
	embedder ports.Embedder
	abstract ports.VectorStore
	content  ports.VectorStore
}

func NewCorpusIngestUseCase(
	storage ports.ObjectStorage,
	queue ports.IngestQueue,
	chunker ports.Chunker,
	embedder ports.Embedder,
	abstract ports.VectorStore,
	content ports.VectorStore,
) *CorpusIngestUseCase {
	return &CorpusIngestUseCase{
		storage:  storage,
		queue:    queue,
		chunker:  chunker,
		embedder: embedder,
		abstract: abstract,
		content:  content,
	}
}

func (uc *CorpusIngestUseCase) Enqueue(ctx context.Context, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return domain.WrapError(domain.ErrInvalidInput, "enqueue corpus", fmt.Errorf("corpus path is required"))
	}
	if err := uc.queue.PublishCorpusIngest(ctx, path); err != nil {
		return fmt.Errorf("publish ingest event: %w", err)
	}
	return nil
}

func (uc *CorpusIngestUseCase) ProcessCorpus(ctx context.Context, path string) (*domain.IngestStats, error) {
	reader, err := uc.storage.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open corpus file: %w", err)
	}
	defer reader.Close()

	var theses []domain.Thesis
	if err := json.NewDecoder(reader).Decode(&theses); err != nil {
		return nil, fmt.Errorf("decode corpus json: %w", err)
	}

	stats := &domain.IngestStats{Theses: len(theses)}
	abstractDocs := make([]domain.RetrievedDocument, 0, len(theses))
	contentDocs := make([]domain.RetrievedDocument, 0, len(theses))

	for _, thesis := range theses {
		if strings.TrimSpace(thesis.Title) == "" {
			stats.SkippedEntries++
			continue
		}
		meta := domain.DocumentMetadata{Title: thesis.Title, Year: thesis.Year}

		if abstract := strings.TrimSpace(thesis.Abstract); abstract != "" {
			abstractDocs = append(abstractDocs, domain.RetrievedDocument{Content: abstract, Metadata: meta})
		}
		for _, chunk := range uc.chunker.Split(thesis.Content) {
			contentDocs = append(contentDocs, domain.RetrievedDocument{Content: chunk, Metadata: meta})
		}
	}
	stats.AbstractDocs = len(abstractDocs)
	stats.ContentChunks = len(contentDocs)

	if err := uc.indexDocuments(ctx, uc.abstract, abstractDocs); err != nil {
		return nil, fmt.Errorf("index abstracts: %w", err)
	}
	if err := uc.indexDocuments(ctx, uc.content, contentDocs); err != nil {
		return nil, fmt.Errorf("index content chunks: %w", err)
	}
	return stats, nil
}

func (uc *CorpusIngestUseCase) indexDocuments(ctx context.Context, store ports.VectorStore, docs []domain.RetrievedDocument) error {
	for start := 0; start < len(docs); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(docs) {
			end = len(docs)
		}
		batch := docs[start:end]

		texts := make([]string, 0, len(batch))
		for _, doc := range batch {
			texts = append(texts, doc.Content)
		}

		vectors, err := uc.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed batch: %w", err)
		}
		if len(vectors) != len(batch) {
			return fmt.Errorf("embed batch: got %d vectors for %d texts", len(vectors), len(batch))
		}
		if err := store.IndexDocuments(ctx, batch, vectors); err != nil {
			return fmt.Errorf("index batch: %w", err)
		}
	}
	return nil
}
