package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/avolkov/climate-rag/internal/core/domain"
	"github.com/avolkov/climate-rag/internal/core/ports"
)

const webSearchDisabledAnswer = "Web search is disabled, so this question cannot be answered from the research corpus."

const webSearchFailureAnswer = "I am sorry, I ran into a problem while searching the web for this question. Please try again in a moment."

// TurnObserver receives dispatch telemetry. Implementations must be safe for
// concurrent use; a nil observer disables recording.
type TurnObserver interface {
	ObserveRoute(datasource domain.Datasource)
	ObserveFusion(lists, fused int)
	ObserveWebSearch(status string)
}

type DispatcherConfig struct {
	TopK             int
	FusionK          int
	WebSearchEnabled bool
}

// Dispatcher executes the retrieval+generation pipeline selected by a route
// decision. Exactly one branch runs per turn; branch selection is a pure
// function of the decision's datasource.
type Dispatcher struct {
	abstract ports.DocumentRetriever
	content  ports.DocumentRetriever
	expander *MultiQueryGenerator
	planner  *SelfQueryPlanner
	gen      ports.Generator
	web      ports.WebSearcher
	observer TurnObserver
	cfg      DispatcherConfig
}

func NewDispatcher(
	abstract ports.DocumentRetriever,
	content ports.DocumentRetriever,
	expander *MultiQueryGenerator,
	gen ports.Generator,
	web ports.WebSearcher,
	observer TurnObserver,
	cfg DispatcherConfig,
) *Dispatcher {
	if cfg.TopK <= 0 {
		cfg.TopK = 10
	}
	if cfg.FusionK <= 0 {
		cfg.FusionK = defaultRRFK
	}
	return &Dispatcher{
		abstract: abstract,
		content:  content,
		expander: expander,
		planner:  NewSelfQueryPlanner(gen),
		gen:      gen,
		web:      web,
		observer: observer,
		cfg:      cfg,
	}
}

func (d *Dispatcher) Execute(ctx context.Context, decision domain.RouteDecision, history []domain.Message) (*domain.Answer, error) {
	if d.observer != nil {
		d.observer.ObserveRoute(decision.Datasource)
	}

	switch decision.Datasource {
	case domain.DatasourceAbstract:
		return d.answerFromAbstracts(ctx, decision, history)
	case domain.DatasourceContent:
		return d.answerFromContent(ctx, decision, history)
	default:
		return d.answerFromWeb(ctx, decision, history)
	}
}

func (d *Dispatcher) answerFromAbstracts(ctx context.Context, decision domain.RouteDecision, history []domain.Message) (*domain.Answer, error) {
	filter := d.planner.DeriveFilter(ctx, decision.CarriedQuery)
	docs, err := d.abstract.Search(ctx, decision.CarriedQuery, d.cfg.TopK, filter)
	if err != nil {
		return nil, fmt.Errorf("abstract retrieval: %w", err)
	}
	return d.generateAnswer(ctx, docs, history, decision.IsEvaluation)
}

func (d *Dispatcher) answerFromContent(ctx context.Context, decision domain.RouteDecision, history []domain.Message) (*domain.Answer, error) {
	queries, err := d.expander.Expand(ctx, decision.CarriedQuery)
	if err != nil {
		return nil, fmt.Errorf("multi-query expansion: %w", err)
	}

	// The filter is derived once from the original query and shared across
	// all reformulations; reformulations rephrase, they never add
	// constraints.
	filter := d.planner.DeriveFilter(ctx, decision.CarriedQuery)

	// Retrieval calls run in parallel, but each result lands at its query's
	// index so fusion processes lists in a fixed order and tie-breaking stays
	// deterministic.
	rankings := make([][]domain.RetrievedDocument, len(queries))
	group, groupCtx := errgroup.WithContext(ctx)
	for idx, query := range queries {
		idx, query := idx, query
		group.Go(func() error {
			docs, err := d.content.Search(groupCtx, query, d.cfg.TopK, filter)
			if err != nil {
				return fmt.Errorf("content retrieval %q: %w", query, err)
			}
			rankings[idx] = docs
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	fused := FuseRankings(rankings, d.cfg.FusionK)
	if d.observer != nil {
		d.observer.ObserveFusion(len(rankings), len(fused))
	}

	docs := make([]domain.RetrievedDocument, 0, len(fused))
	for _, scored := range fused {
		docs = append(docs, scored.Document)
	}
	if len(docs) > d.cfg.TopK {
		docs = docs[:d.cfg.TopK]
	}
	return d.generateAnswer(ctx, docs, history, decision.IsEvaluation)
}

// answerFromWeb handles everything that matched neither store. The branch is
// best-effort: internal failures become an apologetic answer, never an error.
func (d *Dispatcher) answerFromWeb(ctx context.Context, decision domain.RouteDecision, history []domain.Message) (*domain.Answer, error) {
	if !d.cfg.WebSearchEnabled || d.web == nil {
		if d.observer != nil {
			d.observer.ObserveWebSearch("disabled")
		}
		return &domain.Answer{Text: webSearchDisabledAnswer}, nil
	}

	question := extractQuestion(history, decision.CarriedQuery)

	results, err := d.web.SearchWeb(ctx, question)
	if err != nil {
		slog.Warn("web_search_failed", "error", err)
		if d.observer != nil {
			d.observer.ObserveWebSearch("error")
		}
		return &domain.Answer{Text: webSearchFailureAnswer}, nil
	}
	if domain.IsWebNoResult(results) {
		if d.observer != nil {
			d.observer.ObserveWebSearch("no_result")
		}
		return &domain.Answer{Text: results[0].Title + "."}, nil
	}

	text, err := d.gen.Complete(ctx, []domain.Message{
		{Role: domain.RoleUser, Content: buildWebAnswerPrompt(question, results)},
	})
	if err != nil {
		slog.Warn("web_answer_generation_failed", "error", err)
		if d.observer != nil {
			d.observer.ObserveWebSearch("error")
		}
		return &domain.Answer{Text: webSearchFailureAnswer}, nil
	}

	citations := make([]domain.Citation, 0, len(results))
	for _, result := range results {
		citations = append(citations, domain.Citation{Title: result.Title, URL: result.Link})
	}
	if d.observer != nil {
		d.observer.ObserveWebSearch("ok")
	}
	return &domain.Answer{Text: text, Citations: citations}, nil
}

func (d *Dispatcher) generateAnswer(ctx context.Context, docs []domain.RetrievedDocument, history []domain.Message, evaluation bool) (*domain.Answer, error) {
	text, err := d.gen.Complete(ctx, []domain.Message{
		{Role: domain.RoleUser, Content: buildAnswerPrompt(formatContext(docs), history, evaluation)},
	})
	if err != nil {
		return nil, domain.WrapError(domain.ErrGeneration, "generate answer", err)
	}

	citations := make([]domain.Citation, 0, len(docs))
	seen := make(map[string]struct{}, len(docs))
	for _, doc := range docs {
		key := doc.Metadata.Title + "|" + doc.Metadata.SourceURL
		if _, dup := seen[key]; dup || doc.Metadata.Title == "" {
			continue
		}
		seen[key] = struct{}{}
		citations = append(citations, domain.Citation{Title: doc.Metadata.Title, URL: doc.Metadata.SourceURL})
	}
	return &domain.Answer{Text: text, Citations: citations}, nil
}

var quotedContentPattern = regexp.MustCompile(`"content"\s*:\s*"((?:[^"\\]|\\.)*)"`)

// extractQuestion reduces a history to the question string for the web
// branch. The typed history is authoritative; the quoted-content scan only
// covers foreign serialized shapes that cross the system boundary inside the
// carried value, and the raw carried value is the final fallback.
func extractQuestion(history []domain.Message, carried string) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == domain.RoleUser {
			if content := strings.TrimSpace(history[i].Content); content != "" {
				return content
			}
		}
	}

	matches := quotedContentPattern.FindAllStringSubmatch(carried, -1)
	if len(matches) > 0 {
		last := matches[len(matches)-1][1]
		if unquoted := strings.TrimSpace(last); unquoted != "" {
			return unquoted
		}
	}
	return carried
}
