package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/avolkov/climate-rag/internal/core/domain"
)

func TestExpandParsesNumberedLines(t *testing.T) {
	gen := &generatorFake{completeText: "1. climate change overview\n2) greenhouse gas drivers\n- feedback loop analysis\n4. policy implications"}
	expander := NewMultiQueryGenerator(gen)

	queries, err := expander.Expand(context.Background(), "what drives climate change?")
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	want := []string{
		"climate change overview",
		"greenhouse gas drivers",
		"feedback loop analysis",
		"policy implications",
	}
	if len(queries) != len(want) {
		t.Fatalf("expected %d queries, got %d: %v", len(want), len(queries), queries)
	}
	for i := range want {
		if queries[i] != want[i] {
			t.Fatalf("query %d = %q, want %q", i, queries[i], want[i])
		}
	}
}

func TestExpandCapsAtFour(t *testing.T) {
	gen := &generatorFake{completeText: "a\nb\nc\nd\ne\nf"}
	expander := NewMultiQueryGenerator(gen)

	queries, err := expander.Expand(context.Background(), "q")
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if len(queries) != 4 {
		t.Fatalf("expected at most 4 queries, got %d", len(queries))
	}
}

func TestExpandSkipsBlankLines(t *testing.T) {
	gen := &generatorFake{completeText: "\n\nonly query\n\n"}
	expander := NewMultiQueryGenerator(gen)

	queries, err := expander.Expand(context.Background(), "q")
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if len(queries) != 1 || queries[0] != "only query" {
		t.Fatalf("unexpected queries: %v", queries)
	}
}

func TestExpandFallsBackToQuestion(t *testing.T) {
	gen := &generatorFake{completeText: "   \n  "}
	expander := NewMultiQueryGenerator(gen)

	queries, err := expander.Expand(context.Background(), "original question")
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if len(queries) != 1 || queries[0] != "original question" {
		t.Fatalf("expected fallback to original question, got %v", queries)
	}
}

func TestExpandGenerationError(t *testing.T) {
	expander := NewMultiQueryGenerator(&generatorFake{completeErr: errors.New("backend down")})

	_, err := expander.Expand(context.Background(), "q")
	if !domain.IsKind(err, domain.ErrGeneration) {
		t.Fatalf("expected ErrGeneration, got %v", err)
	}
}
