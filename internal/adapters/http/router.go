package httpadapter

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avolkov/climate-rag/internal/core/domain"
	"github.com/avolkov/climate-rag/internal/core/ports"
	"github.com/avolkov/climate-rag/internal/observability/metrics"
)

// defaultSessionKey backs the stateless /query and /evaluate endpoints.
// Turns submitted through them share one well-known conversation.
const defaultSessionKey = "default"

// Services bundles the inbound ports the HTTP surface exposes.
type Services struct {
	Chat      ports.ChatService
	Directory ports.ChatDirectory
	Ingestor  ports.CorpusIngestor
}

// ServiceProvider resolves the current application services. It returns an
// ErrNotReady-kind error until initialization completes, which the handlers
// translate into 503 so early callers see a retryable status instead of a
// crash or a hang.
type ServiceProvider func() (Services, error)

type Options struct {
	ServiceName          string
	RateLimitRPS         float64
	RateLimitBurst       int
	BackpressureCapacity int
	BackpressureWait     time.Duration
	Metrics              *metrics.HTTPServerMetrics
}

type Router struct {
	provider ServiceProvider
	opts     Options
}

func NewRouter(provider ServiceProvider, opts Options) *Router {
	if opts.ServiceName == "" {
		opts.ServiceName = "api"
	}
	return &Router{provider: provider, opts: opts}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/api/v1/query", rt.query)
	mux.HandleFunc("/api/v1/evaluate", rt.evaluate)
	mux.HandleFunc("/api/v1/chats", rt.createChat)
	mux.HandleFunc("/api/v1/chats/", rt.chatSubresource)
	mux.HandleFunc("/api/v1/conversations", rt.listConversations)
	mux.HandleFunc("/api/v1/ingest", rt.ingest)
	if rt.opts.Metrics != nil {
		mux.Handle("/metrics", rt.opts.Metrics.Handler())
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.opts.BackpressureCapacity, rt.opts.BackpressureWait)
	handler = rateLimitMiddleware(handler, rt.opts.RateLimitRPS, rt.opts.RateLimitBurst)
	if rt.opts.Metrics != nil {
		handler = rt.opts.Metrics.Middleware(rt.opts.ServiceName, handler)
	}
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type queryRequest struct {
	Text string `json:"text"`
}

type answerResponse struct {
	Answer    string            `json:"answer"`
	Citations []domain.Citation `json:"citations,omitempty"`
}

func (rt *Router) query(w http.ResponseWriter, r *http.Request) {
	rt.submitTurn(w, r, defaultSessionKey, false)
}

// evaluate forces the evaluation marker onto the submitted text so the
// downstream pipeline answers with ground-truth snippets per citation.
func (rt *Router) evaluate(w http.ResponseWriter, r *http.Request) {
	rt.submitTurn(w, r, defaultSessionKey, true)
}

func (rt *Router) submitTurn(w http.ResponseWriter, r *http.Request, sessionKey string, evaluation bool) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	svc, err := rt.provider()
	if err != nil {
		writeError(w, err)
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "text is required"})
		return
	}
	if evaluation && !strings.Contains(text, domain.EvaluationMarker) {
		text += " " + domain.EvaluationMarker
	}

	start := time.Now()
	answer, err := svc.Chat.SubmitTurn(r.Context(), sessionKey, domain.Message{
		Role:    domain.RoleUser,
		Content: text,
	})
	if rt.opts.Metrics != nil {
		rt.opts.Metrics.RecordTurn(rt.opts.ServiceName, time.Since(start), err)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, answerResponse{
		Answer:    answer.Text,
		Citations: answer.Citations,
	})
}

func (rt *Router) createChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	svc, err := rt.provider()
	if err != nil {
		writeError(w, err)
		return
	}

	// The name is optional, so an empty body is accepted.
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	session, err := svc.Directory.CreateChat(r.Context(), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

// chatSubresource serves /api/v1/chats/{id}/query and
// /api/v1/chats/{id}/messages.
func (rt *Router) chatSubresource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/chats/")
	sessionKey, action, found := strings.Cut(rest, "/")
	if sessionKey == "" || !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	switch action {
	case "query":
		rt.submitTurn(w, r, sessionKey, false)
	case "messages":
		rt.listChatMessages(w, r, sessionKey)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	}
}

func (rt *Router) listChatMessages(w http.ResponseWriter, r *http.Request, sessionKey string) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	svc, err := rt.provider()
	if err != nil {
		writeError(w, err)
		return
	}

	messages, err := svc.Directory.ListMessages(r.Context(), sessionKey)
	if err != nil {
		writeError(w, err)
		return
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}

func (rt *Router) listConversations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	svc, err := rt.provider()
	if err != nil {
		writeError(w, err)
		return
	}

	chats, err := svc.Directory.ListChats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if chats == nil {
		chats = []domain.ChatSession{}
	}
	writeJSON(w, http.StatusOK, chats)
}

func (rt *Router) ingest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	svc, err := rt.provider()
	if err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	if err := svc.Ingestor.Enqueue(r.Context(), req.Path); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "queued",
		"path":   req.Path,
	})
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
