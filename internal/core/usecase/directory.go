package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/avolkov/climate-rag/internal/core/domain"
	"github.com/avolkov/climate-rag/internal/core/ports"
)

// DirectoryUseCase exposes chat thread CRUD on top of the conversation store.
type DirectoryUseCase struct {
	store ports.ConversationStore
}

func NewDirectoryUseCase(store ports.ConversationStore) *DirectoryUseCase {
	return &DirectoryUseCase{store: store}
}

func (uc *DirectoryUseCase) CreateChat(ctx context.Context, name string) (*domain.ChatSession, error) {
	id := uuid.NewString()
	name = strings.TrimSpace(name)
	if name == "" {
		name = "New chat"
	}
	if err := uc.store.EnsureConversation(ctx, id, name); err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}
	return &domain.ChatSession{ID: id, Name: name}, nil
}

func (uc *DirectoryUseCase) ListChats(ctx context.Context) ([]domain.ChatSession, error) {
	chats, err := uc.store.ListConversations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	return chats, nil
}

func (uc *DirectoryUseCase) ListMessages(ctx context.Context, sessionKey string) ([]domain.Message, error) {
	sessionKey = strings.TrimSpace(sessionKey)
	if sessionKey == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "list messages", fmt.Errorf("session key is required"))
	}
	messages, err := uc.store.ListMessages(ctx, sessionKey)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}
