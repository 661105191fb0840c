package usecase

import (
	"context"
	"regexp"
	"strings"

	"github.com/avolkov/climate-rag/internal/core/domain"
	"github.com/avolkov/climate-rag/internal/core/ports"
)

const maxReformulations = 4

// MultiQueryGenerator expands one question into progressively scoped
// reformulations that feed the rank fusion engine.
type MultiQueryGenerator struct {
	gen ports.Generator
}

func NewMultiQueryGenerator(gen ports.Generator) *MultiQueryGenerator {
	return &MultiQueryGenerator{gen: gen}
}

var listPrefixPattern = regexp.MustCompile(`^\s*(?:\d+[.)]|[-*])\s*`)

// Expand asks the backend for up to four reformulated queries and splits the
// response on line boundaries. The model may return fewer lines; downstream
// fusion tolerates any count, but at least the original question is always
// returned.
func (g *MultiQueryGenerator) Expand(ctx context.Context, question string) ([]string, error) {
	raw, err := g.gen.Complete(ctx, []domain.Message{
		{Role: domain.RoleUser, Content: buildMultiQueryPrompt(question)},
	})
	if err != nil {
		return nil, domain.WrapError(domain.ErrGeneration, "expand query", err)
	}

	queries := parseQueryLines(raw)
	if len(queries) == 0 {
		queries = []string{question}
	}
	return queries, nil
}

func parseQueryLines(raw string) []string {
	out := make([]string, 0, maxReformulations)
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(listPrefixPattern.ReplaceAllString(line, ""))
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == maxReformulations {
			break
		}
	}
	return out
}
