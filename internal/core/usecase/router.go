package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/avolkov/climate-rag/internal/core/domain"
	"github.com/avolkov/climate-rag/internal/core/ports"
)

// Router classifies a bounded conversation history into one of the fixed
// retrieval destinations using the generation backend in structured mode.
type Router struct {
	gen ports.Generator
}

func NewRouter(gen ports.Generator) *Router {
	return &Router{gen: gen}
}

type routePayload struct {
	Datasource string `json:"datasource"`
}

// Route builds the two-part routing prompt, asks the backend for a structured
// datasource value and validates it. The backend output is untrusted: the
// declared enum is enforced by containment matching and anything unmatched
// maps to OTHER rather than failing the turn. A backend that cannot produce a
// structured value at all fails with ErrRouting; there is no local retry.
func (r *Router) Route(ctx context.Context, history []domain.Message) (domain.RouteDecision, error) {
	if len(history) == 0 {
		return domain.RouteDecision{}, domain.WrapError(domain.ErrInvalidInput, "route", fmt.Errorf("history is empty"))
	}

	messages := []domain.Message{
		{Role: domain.RoleSystem, Content: routerSystemPrompt},
		{Role: domain.RoleUser, Content: buildRouterPrompt(history)},
	}

	var payload routePayload
	if err := r.gen.CompleteStructured(ctx, messages, &payload); err != nil {
		return domain.RouteDecision{}, domain.WrapError(domain.ErrRouting, "route", err)
	}

	carried := latestUserContent(history)
	carried, isEval := domain.StripEvaluationMarker(carried)

	return domain.RouteDecision{
		Datasource:   domain.ParseDatasource(payload.Datasource),
		CarriedQuery: carried,
		IsEvaluation: isEval,
	}, nil
}

func latestUserContent(history []domain.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == domain.RoleUser {
			if content := strings.TrimSpace(history[i].Content); content != "" {
				return content
			}
		}
	}
	// No user turn in the window; fall back to the newest entry.
	return strings.TrimSpace(history[len(history)-1].Content)
}
