package store

import (
	"context"
	"errors"
	"time"

	"github.com/pliu/simquery/internal/models"
)

var (
	// ErrNotFound is returned when no row matches, including rows that exist
	// but are owned by someone else.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyExists is returned when a unique constraint rejects a write.
	ErrAlreadyExists = errors.New("record already exists")
)

type Store interface {
	// User operations
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByExternalID(ctx context.Context, externalID string) (*models.User, error)
	ConsumeVerificationToken(ctx context.Context, token string, now time.Time) error
	SetVerificationToken(ctx context.Context, userID int64, token string, expiresAt, now time.Time) error

	// Chat operations, always scoped by owner
	CreateChat(ctx context.Context, chat *models.Chat) error
	GetOwnedChat(ctx context.Context, ownerID, externalID string) (*models.Chat, error)
	ListOwnedChats(ctx context.Context, ownerID string) ([]models.Chat, error)
	UpdateChatTitle(ctx context.Context, ownerID, externalID, title string, now time.Time) (*models.Chat, error)
	DeleteChat(ctx context.Context, ownerID, externalID string) (*models.Chat, error)

	// Message operations
	SaveMessage(ctx context.Context, msg *models.Message) error
	GetChatMessages(ctx context.Context, chatID int64) ([]models.Message, error)
	GetOwnedMessage(ctx context.Context, ownerID, externalID string) (*models.Message, error)
	DeleteOwnedMessage(ctx context.Context, ownerID, externalID string) (*models.Message, error)

	Close() error
}
