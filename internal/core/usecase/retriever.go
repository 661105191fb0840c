package usecase

import (
	"context"

	"github.com/avolkov/climate-rag/internal/core/domain"
	"github.com/avolkov/climate-rag/internal/core/ports"
)

// VectorRetriever composes an embedder with one vector store collection into
// the opaque "top-k documents for a query" capability.
type VectorRetriever struct {
	embedder ports.Embedder
	store    ports.VectorStore
}

func NewVectorRetriever(embedder ports.Embedder, store ports.VectorStore) *VectorRetriever {
	return &VectorRetriever{
		embedder: embedder,
		store:    store,
	}
}

func (r *VectorRetriever) Search(ctx context.Context, query string, k int, filter domain.SearchFilter) ([]domain.RetrievedDocument, error) {
	if k <= 0 {
		k = 10
	}

	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRetrieval, "embed query", err)
	}

	docs, err := r.store.Search(ctx, vector, k, filter)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRetrieval, "vector search", err)
	}
	return docs, nil
}
