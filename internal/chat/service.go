// Package chat implements owner-scoped chats and the message pipeline.
//
// Every operation takes the caller's principal explicitly. Chats and
// messages belonging to someone else are indistinguishable from ones that
// do not exist.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pliu/simquery/internal/models"
	"github.com/pliu/simquery/internal/store"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrChatNotFound    = fmt.Errorf("chat %w", ErrNotFound)
	ErrMessageNotFound = fmt.Errorf("message %w", ErrNotFound)
)

// Scorer produces the AI reply for a user message.
type Scorer interface {
	Score(ctx context.Context, prompt string) (string, error)
}

// Notifier pushes events to a user's live connections.
type Notifier interface {
	SendNotification(userID string, event any)
}

const (
	EventMessageCreated = "message.created"
	EventMessageDeleted = "message.deleted"
	EventChatUpdated    = "chat.updated"
	EventChatDeleted    = "chat.deleted"
)

type Event struct {
	Type           string          `json:"type"`
	ChatExternalID string          `json:"chatExternalId"`
	Chat           *models.Chat    `json:"chat,omitempty"`
	Message        *models.Message `json:"message,omitempty"`
}

type Service struct {
	store    store.Store
	scorer   Scorer
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewService wires the chat service. scorer and notifier may be nil, in
// which case no AI replies are produced and no events are sent.
func NewService(st store.Store, scorer Scorer, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{
		store:    st,
		scorer:   scorer,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *Service) notify(userID string, event Event) {
	if s.notifier == nil {
		return
	}
	s.notifier.SendNotification(userID, event)
}

// canonicalID normalizes an external id. Anything that is not a UUID can
// never match a row, so it is reported as missing.
func canonicalID(externalID string, notFound error) (string, error) {
	id, err := uuid.Parse(externalID)
	if err != nil {
		return "", notFound
	}
	return id.String(), nil
}

func (s *Service) ownedChat(ctx context.Context, p models.Principal, externalID string) (*models.Chat, error) {
	id, err := canonicalID(externalID, ErrChatNotFound)
	if err != nil {
		return nil, err
	}
	chat, err := s.store.GetOwnedChat(ctx, p.UserID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("get chat: %w", err)
	}
	return chat, nil
}
