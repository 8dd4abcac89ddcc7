package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/pliu/simquery/internal/models"
	"github.com/pliu/simquery/internal/store"
	"github.com/pliu/simquery/internal/validate"
)

const maxTitleLength = 255

// ListChats returns the caller's chats, most recently updated first.
func (s *Service) ListChats(ctx context.Context, p models.Principal) ([]models.Chat, error) {
	chats, err := s.store.ListOwnedChats(ctx, p.UserID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	return chats, nil
}

func (s *Service) CreateChat(ctx context.Context, p models.Principal, title string) (*models.Chat, error) {
	title = strings.TrimSpace(title)
	if err := validate.Length("title", title, 1, maxTitleLength); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	chat := &models.Chat{
		ExternalID: uuid.NewString(),
		Title:      title,
		OwnerID:    p.UserID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.CreateChat(ctx, chat); err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}
	s.logger.Info("chat created", "chat_id", chat.ExternalID, "user_id", p.UserID)
	return chat, nil
}

func (s *Service) GetChat(ctx context.Context, p models.Principal, externalID string) (*models.Chat, error) {
	return s.ownedChat(ctx, p, externalID)
}

func (s *Service) UpdateChat(ctx context.Context, p models.Principal, externalID, title string) (*models.Chat, error) {
	title = strings.TrimSpace(title)
	if err := validate.Length("title", title, 1, maxTitleLength); err != nil {
		return nil, err
	}
	id, err := canonicalID(externalID, ErrChatNotFound)
	if err != nil {
		return nil, err
	}

	chat, err := s.store.UpdateChatTitle(ctx, p.UserID, id, title, s.now().UTC())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("update chat: %w", err)
	}

	s.notify(p.UserID, Event{Type: EventChatUpdated, ChatExternalID: chat.ExternalID, Chat: chat})
	return chat, nil
}

// DeleteChat removes the chat and all of its messages in one transaction.
func (s *Service) DeleteChat(ctx context.Context, p models.Principal, externalID string) error {
	id, err := canonicalID(externalID, ErrChatNotFound)
	if err != nil {
		return err
	}

	chat, err := s.store.DeleteChat(ctx, p.UserID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrChatNotFound
		}
		return fmt.Errorf("delete chat: %w", err)
	}

	s.logger.Info("chat deleted", "chat_id", chat.ExternalID, "user_id", p.UserID)
	s.notify(p.UserID, Event{Type: EventChatDeleted, ChatExternalID: chat.ExternalID})
	return nil
}
