package domain

import "strings"

// Datasource is the destination a routed query is dispatched to.
type Datasource string

const (
	DatasourceAbstract Datasource = "Abstract_Store"
	DatasourceContent  Datasource = "Content_Store"
	DatasourceOther    Datasource = "OTHER"
)

// ParseDatasource classifies a raw model-produced datasource value. The
// comparison is a case-insensitive containment check rather than strict
// equality, so values with incidental surrounding text or casing still
// classify. Anything that matches neither store maps to DatasourceOther.
func ParseDatasource(raw string) Datasource {
	lower := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.Contains(lower, "abstract_store"):
		return DatasourceAbstract
	case strings.Contains(lower, "content_store"):
		return DatasourceContent
	default:
		return DatasourceOther
	}
}

// RouteDecision is the per-turn classification result. It is consumed once
// and never persisted.
type RouteDecision struct {
	Datasource   Datasource
	CarriedQuery string
	IsEvaluation bool
}

// EvaluationMarker is the literal tag appended to a query by callers that
// issue it for offline evaluation rather than live chat.
const EvaluationMarker = "[eval]"

// StripEvaluationMarker reports whether text carries the evaluation marker
// and returns the text with the marker removed.
func StripEvaluationMarker(text string) (string, bool) {
	if !strings.Contains(text, EvaluationMarker) {
		return text, false
	}
	stripped := strings.ReplaceAll(text, EvaluationMarker, "")
	return strings.TrimSpace(stripped), true
}
