package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/pliu/simquery/internal/models"
	"github.com/pliu/simquery/internal/store"
	"github.com/pliu/simquery/internal/validate"
)

// MessageResult is the outcome of posting a message. AIMessage is nil when
// the scorer failed or was not configured.
type MessageResult struct {
	UserMessage *models.Message `json:"userMessage"`
	AIMessage   *models.Message `json:"aiMessage,omitempty"`
}

// ListMessages returns the chat's messages, newest first.
func (s *Service) ListMessages(ctx context.Context, p models.Principal, chatExternalID string) ([]models.Message, error) {
	chat, err := s.ownedChat(ctx, p, chatExternalID)
	if err != nil {
		return nil, err
	}
	messages, err := s.store.GetChatMessages(ctx, chat.ID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

// CreateMessage stores the user's message, then asks the scorer for a reply
// and stores that as an AI_MODEL message. The user message is committed
// before the scorer is called and is kept whatever the scorer does.
func (s *Service) CreateMessage(ctx context.Context, p models.Principal, chatExternalID, content string) (*MessageResult, error) {
	if err := validate.First(
		validate.Required("content", content),
		validate.Length("content", content, 1, models.MaxMessageLength),
	); err != nil {
		return nil, err
	}

	chat, err := s.ownedChat(ctx, p, chatExternalID)
	if err != nil {
		return nil, err
	}

	userMsg, err := s.saveMessage(ctx, chat, content, models.SenderUser)
	if err != nil {
		return nil, err
	}
	s.notify(p.UserID, Event{Type: EventMessageCreated, ChatExternalID: chat.ExternalID, Message: userMsg})

	result := &MessageResult{UserMessage: userMsg}
	if s.scorer == nil {
		return result, nil
	}

	score, err := s.scorer.Score(ctx, content)
	if err != nil {
		s.logger.Warn("ai scoring failed", "chat_id", chat.ExternalID, "message_id", userMsg.ExternalID, "error", err)
		return result, nil
	}
	if ctx.Err() != nil {
		s.logger.Warn("request cancelled, discarding ai reply", "message_id", userMsg.ExternalID)
		return result, nil
	}
	if err := validate.Length("content", score, 1, models.MaxMessageLength); err != nil {
		s.logger.Warn("discarding ai reply", "chat_id", chat.ExternalID, "message_id", userMsg.ExternalID, "error", err)
		return result, nil
	}

	aiMsg, err := s.saveMessage(ctx, chat, score, models.SenderAIModel)
	if err != nil {
		// The user message is already stored; failing now would invite a
		// duplicate retry.
		s.logger.Error("failed to save ai reply", "chat_id", chat.ExternalID, "error", err)
		return result, nil
	}
	s.notify(p.UserID, Event{Type: EventMessageCreated, ChatExternalID: chat.ExternalID, Message: aiMsg})

	result.AIMessage = aiMsg
	return result, nil
}

func (s *Service) saveMessage(ctx context.Context, chat *models.Chat, content string, sender models.SenderType) (*models.Message, error) {
	msg := &models.Message{
		ExternalID:     uuid.NewString(),
		ChatID:         chat.ID,
		ChatExternalID: chat.ExternalID,
		Content:        content,
		Sender:         sender,
		SentAt:         s.now().UTC(),
	}
	if err := s.store.SaveMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("save %s message: %w", sender, err)
	}
	return msg, nil
}

func (s *Service) GetMessage(ctx context.Context, p models.Principal, externalID string) (*models.Message, error) {
	id, err := canonicalID(externalID, ErrMessageNotFound)
	if err != nil {
		return nil, err
	}
	msg, err := s.store.GetOwnedMessage(ctx, p.UserID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	return msg, nil
}

func (s *Service) DeleteMessage(ctx context.Context, p models.Principal, externalID string) error {
	id, err := canonicalID(externalID, ErrMessageNotFound)
	if err != nil {
		return err
	}
	msg, err := s.store.DeleteOwnedMessage(ctx, p.UserID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrMessageNotFound
		}
		return fmt.Errorf("delete message: %w", err)
	}
	s.notify(p.UserID, Event{Type: EventMessageDeleted, ChatExternalID: msg.ChatExternalID, Message: msg})
	return nil
}
