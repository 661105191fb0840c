package usecase

import (
	"context"
	"log/slog"
	"strings"

	"github.com/avolkov/climate-rag/internal/core/domain"
	"github.com/avolkov/climate-rag/internal/core/ports"
)

// SelfQueryPlanner derives metadata constraints from the query text before
// similarity search runs, so "theses from 2021 about permafrost" narrows the
// vector search to year=2021 instead of relying on the embedding to carry
// the year.
type SelfQueryPlanner struct {
	gen ports.Generator
}

func NewSelfQueryPlanner(gen ports.Generator) *SelfQueryPlanner {
	return &SelfQueryPlanner{gen: gen}
}

type filterPayload struct {
	Title string `json:"title"`
	Year  int    `json:"year"`
}

// DeriveFilter asks the backend for optional title/year constraints stated
// in the query. Derivation is best-effort: a backend that cannot produce a
// structured value yields an unconstrained search, never a failed turn.
func (p *SelfQueryPlanner) DeriveFilter(ctx context.Context, query string) domain.SearchFilter {
	if p == nil || p.gen == nil || strings.TrimSpace(query) == "" {
		return domain.SearchFilter{}
	}

	messages := []domain.Message{
		{Role: domain.RoleSystem, Content: selfQuerySystemPrompt},
		{Role: domain.RoleUser, Content: buildSelfQueryPrompt(query)},
	}

	var payload filterPayload
	if err := p.gen.CompleteStructured(ctx, messages, &payload); err != nil {
		slog.Debug("self_query_filter_skipped", "error", err)
		return domain.SearchFilter{}
	}

	filter := domain.SearchFilter{Title: strings.TrimSpace(payload.Title)}
	if payload.Year > 0 {
		filter.Year = payload.Year
	}
	return filter
}
