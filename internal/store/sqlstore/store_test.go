package sqlstore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pliu/simquery/internal/models"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *SQLStore {
	t.Helper()
	s, err := New("sqlite3", ":memory:")
	require.NoError(t, err, "failed to open test database")
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestUser(t *testing.T, s *SQLStore, email string) *models.User {
	t.Helper()
	now := time.Now().UTC()
	user := &models.User{
		ExternalID:   uuid.NewString(),
		Email:        email,
		PasswordHash: "hash",
		FullName:     "Test User",
		Role:         models.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, s.CreateUser(context.Background(), user))
	return user
}

func createTestChat(t *testing.T, s *SQLStore, owner *models.User, title string) *models.Chat {
	t.Helper()
	now := time.Now().UTC()
	chat := &models.Chat{
		ExternalID: uuid.NewString(),
		Title:      title,
		OwnerID:    owner.ExternalID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, s.CreateChat(context.Background(), chat))
	return chat
}

func saveTestMessage(t *testing.T, s *SQLStore, chat *models.Chat, content string, sentAt time.Time) *models.Message {
	t.Helper()
	msg := &models.Message{
		ExternalID: uuid.NewString(),
		ChatID:     chat.ID,
		Content:    content,
		Sender:     models.SenderUser,
		SentAt:     sentAt,
	}
	require.NoError(t, s.SaveMessage(context.Background(), msg))
	return msg
}
