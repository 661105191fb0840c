package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sort"
	"sync"
	"testing"

	"github.com/avolkov/climate-rag/internal/core/domain"
)

// scriptedGenerator returns queued responses in call order, so one fake can
// serve both the expansion call and the answer call of a dispatch. Structured
// calls decode structuredJSON when set and fail otherwise.
type scriptedGenerator struct {
	mu             sync.Mutex
	responses      []string
	err            error
	calls          int
	prompts        []string
	structuredJSON string
}

func (g *scriptedGenerator) Complete(_ context.Context, messages []domain.Message) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if len(messages) > 0 {
		g.prompts = append(g.prompts, messages[len(messages)-1].Content)
	}
	if g.err != nil {
		return "", g.err
	}
	if len(g.responses) == 0 {
		return "", errors.New("no scripted response left")
	}
	next := g.responses[0]
	g.responses = g.responses[1:]
	return next, nil
}

func (g *scriptedGenerator) CompleteStructured(_ context.Context, _ []domain.Message, out any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.structuredJSON == "" {
		return errors.New("not scripted")
	}
	return json.Unmarshal([]byte(g.structuredJSON), out)
}

type retrieverFake struct {
	mu      sync.Mutex
	byQuery map[string][]domain.RetrievedDocument
	fixed   []domain.RetrievedDocument
	err     error
	queries []string
	filters []domain.SearchFilter
}

func (f *retrieverFake) Search(_ context.Context, query string, _ int, filter domain.SearchFilter) ([]domain.RetrievedDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	f.filters = append(f.filters, filter)
	if f.err != nil {
		return nil, f.err
	}
	if f.byQuery != nil {
		return f.byQuery[query], nil
	}
	return f.fixed, nil
}

type webSearcherSpy struct {
	results []domain.WebResult
	err     error
	calls   int
	queries []string
}

func (s *webSearcherSpy) SearchWeb(_ context.Context, query string) ([]domain.WebResult, error) {
	s.calls++
	s.queries = append(s.queries, query)
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

func newTestDispatcher(abstract, content *retrieverFake, gen *scriptedGenerator, web *webSearcherSpy, webEnabled bool) *Dispatcher {
	var searcher *webSearcherSpy
	if web != nil {
		searcher = web
	}
	d := NewDispatcher(abstract, content, NewMultiQueryGenerator(gen), gen, nil, nil, DispatcherConfig{
		TopK:             10,
		FusionK:          60,
		WebSearchEnabled: webEnabled,
	})
	if searcher != nil {
		d.web = searcher
	}
	return d
}

func TestDispatchAbstractBranch(t *testing.T) {
	abstract := &retrieverFake{fixed: []domain.RetrievedDocument{
		doc("paper-1", 2020, "abstract one"),
		doc("paper-2", 2021, "abstract two"),
	}}
	content := &retrieverFake{}
	gen := &scriptedGenerator{responses: []string{"final answer"}}

	d := newTestDispatcher(abstract, content, gen, nil, false)
	answer, err := d.Execute(context.Background(), domain.RouteDecision{
		Datasource:   domain.DatasourceAbstract,
		CarriedQuery: "summarize recent work",
	}, []domain.Message{userTurn("summarize recent work")})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if answer.Text != "final answer" {
		t.Fatalf("unexpected answer text: %q", answer.Text)
	}
	if len(answer.Citations) != 2 {
		t.Fatalf("expected 2 citations, got %d", len(answer.Citations))
	}
	if len(content.queries) != 0 {
		t.Fatalf("abstract branch must not touch the content retriever")
	}
}

func TestDispatchContentBranchFusesReformulations(t *testing.T) {
	content := &retrieverFake{byQuery: map[string][]domain.RetrievedDocument{
		"reform one": {
			doc("a", 2019, "x"),
			doc("b", 2020, "y"),
			doc("c", 2021, "z"),
		},
		"reform two": {
			doc("b", 2020, "y"),
			doc("d", 2022, "w"),
			doc("e", 2023, "v"),
		},
	}}
	gen := &scriptedGenerator{responses: []string{
		"reform one\nreform two",
		"fused answer",
	}}

	d := newTestDispatcher(&retrieverFake{}, content, gen, nil, false)
	answer, err := d.Execute(context.Background(), domain.RouteDecision{
		Datasource:   domain.DatasourceContent,
		CarriedQuery: "explain feedback loops",
	}, []domain.Message{userTurn("explain feedback loops")})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if answer.Text != "fused answer" {
		t.Fatalf("unexpected answer text: %q", answer.Text)
	}

	queries := append([]string(nil), content.queries...)
	sort.Strings(queries)
	if len(queries) != 2 || queries[0] != "reform one" || queries[1] != "reform two" {
		t.Fatalf("expected one retrieval per reformulation, got %v", content.queries)
	}
	// Union of 3+3 with one shared doc: 5 distinct citations.
	if len(answer.Citations) != 5 {
		t.Fatalf("expected 5 deduped citations, got %d", len(answer.Citations))
	}
}

func TestDispatchContentBranchFusedScores(t *testing.T) {
	shared := doc("shared", 2020, "both lists")
	rankings := [][]domain.RetrievedDocument{
		{shared, doc("a", 2019, "x")},
		{shared, doc("b", 2021, "y")},
	}
	fused := FuseRankings(rankings, 60)
	if fused[0].Document != shared {
		t.Fatalf("shared doc must rank first")
	}
	if math.Abs(fused[0].Score-2.0/60.0) > 1e-12 {
		t.Fatalf("shared score = %f, want %f", fused[0].Score, 2.0/60.0)
	}
}

func TestDispatchOtherBranchDisabled(t *testing.T) {
	web := &webSearcherSpy{results: []domain.WebResult{{Title: "t", Link: "l"}}}
	gen := &scriptedGenerator{}

	d := newTestDispatcher(&retrieverFake{}, &retrieverFake{}, gen, web, false)
	answer, err := d.Execute(context.Background(), domain.RouteDecision{
		Datasource:   domain.DatasourceOther,
		CarriedQuery: "unrelated question",
	}, []domain.Message{userTurn("unrelated question")})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if answer.Text != webSearchDisabledAnswer {
		t.Fatalf("expected fixed disabled answer, got %q", answer.Text)
	}
	if web.calls != 0 {
		t.Fatalf("disabled web search must not be called, got %d calls", web.calls)
	}
	if gen.calls != 0 {
		t.Fatalf("disabled branch must not generate, got %d calls", gen.calls)
	}
}

func TestDispatchOtherBranchSynthesizesFromWebResults(t *testing.T) {
	web := &webSearcherSpy{results: []domain.WebResult{
		{Title: "Result A", Link: "https://a.example.com", Snippet: "snippet a"},
		{Title: "Result B", Link: "https://b.example.com", Snippet: "snippet b"},
	}}
	gen := &scriptedGenerator{responses: []string{"web answer"}}

	d := newTestDispatcher(&retrieverFake{}, &retrieverFake{}, gen, web, true)
	answer, err := d.Execute(context.Background(), domain.RouteDecision{
		Datasource:   domain.DatasourceOther,
		CarriedQuery: "latest heat wave news",
	}, []domain.Message{userTurn("latest heat wave news")})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if answer.Text != "web answer" {
		t.Fatalf("unexpected answer: %q", answer.Text)
	}
	if len(answer.Citations) != 2 || answer.Citations[0].URL != "https://a.example.com" {
		t.Fatalf("unexpected citations: %v", answer.Citations)
	}
	if web.calls != 1 || web.queries[0] != "latest heat wave news" {
		t.Fatalf("unexpected web queries: %v", web.queries)
	}
}

func TestDispatchOtherBranchErrorBecomesApology(t *testing.T) {
	web := &webSearcherSpy{err: errors.New("search backend down")}
	gen := &scriptedGenerator{}

	d := newTestDispatcher(&retrieverFake{}, &retrieverFake{}, gen, web, true)
	answer, err := d.Execute(context.Background(), domain.RouteDecision{
		Datasource:   domain.DatasourceOther,
		CarriedQuery: "anything",
	}, []domain.Message{userTurn("anything")})
	if err != nil {
		t.Fatalf("web branch is best-effort, expected no error, got %v", err)
	}
	if answer.Text != webSearchFailureAnswer {
		t.Fatalf("expected apologetic answer, got %q", answer.Text)
	}
}

func TestDispatchOtherBranchNoResultSentinel(t *testing.T) {
	web := &webSearcherSpy{results: []domain.WebResult{{Title: domain.WebNoResultTitle}}}
	gen := &scriptedGenerator{}

	d := newTestDispatcher(&retrieverFake{}, &retrieverFake{}, gen, web, true)
	answer, err := d.Execute(context.Background(), domain.RouteDecision{
		Datasource:   domain.DatasourceOther,
		CarriedQuery: "obscure question",
	}, []domain.Message{userTurn("obscure question")})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if answer.Text != domain.WebNoResultTitle+"." {
		t.Fatalf("unexpected sentinel answer: %q", answer.Text)
	}
	if gen.calls != 0 {
		t.Fatalf("no-result sentinel must not trigger generation")
	}
}

func TestDispatchRetrievalErrorPropagates(t *testing.T) {
	abstract := &retrieverFake{err: errors.New("vector store down")}
	gen := &scriptedGenerator{responses: []string{"unused"}}

	d := newTestDispatcher(abstract, &retrieverFake{}, gen, nil, false)
	_, err := d.Execute(context.Background(), domain.RouteDecision{
		Datasource:   domain.DatasourceAbstract,
		CarriedQuery: "q",
	}, []domain.Message{userTurn("q")})
	if err == nil {
		t.Fatalf("expected retrieval error to propagate")
	}
}

func TestExtractQuestionPrefersTypedHistory(t *testing.T) {
	history := []domain.Message{
		userTurn("older question"),
		{Role: domain.RoleAssistant, Content: "an answer"},
		userTurn("newest question"),
	}
	if got := extractQuestion(history, "carried"); got != "newest question" {
		t.Fatalf("expected newest user content, got %q", got)
	}
}

func TestExtractQuestionSerializedFallback(t *testing.T) {
	carried := `[{"role":"user","content":"first"},{"role":"user","content":"the real question"}]`
	if got := extractQuestion(nil, carried); got != "the real question" {
		t.Fatalf("expected last quoted content field, got %q", got)
	}
}

func TestExtractQuestionRawFallback(t *testing.T) {
	if got := extractQuestion(nil, "plain carried value"); got != "plain carried value" {
		t.Fatalf("expected raw carried value, got %q", got)
	}
}
