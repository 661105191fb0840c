package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avolkov/climate-rag/internal/core/domain"
	"github.com/avolkov/climate-rag/internal/core/ports"
)

const defaultMemoryLimit = 6

// ChatUseCase owns turn-bounded conversation memory: it appends the incoming
// message, replays a bounded history window through the router and
// dispatcher, and appends the resulting answer back into the thread.
type ChatUseCase struct {
	store       ports.ConversationStore
	router      *Router
	dispatcher  *Dispatcher
	memoryLimit int

	// Mutations to one session key are serialized through a per-key lock so
	// turns on distinct keys never block each other.
	mu           sync.Mutex
	sessionLocks map[string]*sync.Mutex
}

func NewChatUseCase(
	store ports.ConversationStore,
	router *Router,
	dispatcher *Dispatcher,
	memoryLimit int,
) *ChatUseCase {
	if memoryLimit <= 0 {
		memoryLimit = defaultMemoryLimit
	}
	return &ChatUseCase{
		store:        store,
		router:       router,
		dispatcher:   dispatcher,
		memoryLimit:  memoryLimit,
		sessionLocks: make(map[string]*sync.Mutex),
	}
}

// SubmitTurn runs one conversation turn. The user message is appended before
// dispatch begins, so a failed turn still leaves an accurate log of what was
// asked; no assistant message is appended on failure.
func (uc *ChatUseCase) SubmitTurn(ctx context.Context, sessionKey string, msg domain.Message) (*domain.Answer, error) {
	sessionKey = strings.TrimSpace(sessionKey)
	if sessionKey == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit turn", fmt.Errorf("session key is required"))
	}
	if strings.TrimSpace(msg.Content) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit turn", fmt.Errorf("message content is required"))
	}
	if msg.Role == "" {
		msg.Role = domain.RoleUser
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	lock := uc.sessionLock(sessionKey)
	lock.Lock()
	defer lock.Unlock()

	if err := uc.store.EnsureConversation(ctx, sessionKey, sessionKey); err != nil {
		return nil, fmt.Errorf("ensure conversation: %w", err)
	}
	if err := uc.store.AppendMessage(ctx, sessionKey, msg); err != nil {
		return nil, fmt.Errorf("append user message: %w", err)
	}

	recent, err := uc.store.ListRecentMessages(ctx, sessionKey, uc.memoryLimit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	history := boundHistory(recent, uc.memoryLimit)

	decision, err := uc.router.Route(ctx, history)
	if err != nil {
		return nil, err
	}

	answer, err := uc.dispatcher.Execute(ctx, decision, history)
	if err != nil {
		return nil, err
	}

	if err := uc.store.AppendMessage(ctx, sessionKey, domain.Message{
		ID:        uuid.NewString(),
		Role:      domain.RoleAssistant,
		Content:   answer.Text,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		return nil, fmt.Errorf("append assistant message: %w", err)
	}

	return answer, nil
}

func (uc *ChatUseCase) sessionLock(sessionKey string) *sync.Mutex {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	lock, ok := uc.sessionLocks[sessionKey]
	if !ok {
		lock = &sync.Mutex{}
		uc.sessionLocks[sessionKey] = lock
	}
	return lock
}

// boundHistory derives the replay window: at most limit messages counted from
// the most recent, never dropping the newest, and never leaving a tool-role
// message as the oldest retained entry (a dangling tool reply without its
// preceding call). The boundary advances one message at a time until that
// holds or a single message remains.
func boundHistory(messages []domain.Message, limit int) []domain.Message {
	if limit <= 0 {
		limit = defaultMemoryLimit
	}
	if len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	for len(messages) > 1 && messages[0].Role == domain.RoleTool {
		messages = messages[1:]
	}
	return messages
}
