package sqlstore

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pliu/simquery/internal/models"
	"github.com/pliu/simquery/internal/store"
)

const chatColumns = "id, external_id, title, owner_id, created_at, updated_at"

const messageColumns = `m.id, m.external_id, m.chat_id, c.external_id AS chat_external_id,
	m.content, m.sender, m.sent_at`

func (s *SQLStore) CreateChat(ctx context.Context, chat *models.Chat) error {
	query := s.db.Rebind(`INSERT INTO chats (external_id, title, owner_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?) RETURNING id`)
	err := s.db.QueryRowxContext(ctx, query,
		chat.ExternalID, chat.Title, chat.OwnerID, chat.CreatedAt, chat.UpdatedAt,
	).Scan(&chat.ID)
	return translateError(err)
}

func (s *SQLStore) GetOwnedChat(ctx context.Context, ownerID, externalID string) (*models.Chat, error) {
	var chat models.Chat
	query := s.db.Rebind("SELECT " + chatColumns + " FROM chats WHERE external_id = ? AND owner_id = ?")
	if err := s.db.GetContext(ctx, &chat, query, externalID, ownerID); err != nil {
		return nil, translateError(err)
	}
	return &chat, nil
}

func (s *SQLStore) ListOwnedChats(ctx context.Context, ownerID string) ([]models.Chat, error) {
	chats := []models.Chat{}
	query := s.db.Rebind("SELECT " + chatColumns + " FROM chats WHERE owner_id = ? ORDER BY updated_at DESC, id DESC")
	if err := s.db.SelectContext(ctx, &chats, query, ownerID); err != nil {
		return nil, err
	}
	return chats, nil
}

func (s *SQLStore) UpdateChatTitle(ctx context.Context, ownerID, externalID, title string, now time.Time) (*models.Chat, error) {
	query := s.db.Rebind("UPDATE chats SET title = ?, updated_at = ? WHERE external_id = ? AND owner_id = ?")
	result, err := s.db.ExecContext(ctx, query, title, now, externalID, ownerID)
	if err != nil {
		return nil, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetOwnedChat(ctx, ownerID, externalID)
}

// DeleteChat removes an owned chat and all of its messages atomically and
// returns the chat as it was before deletion.
func (s *SQLStore) DeleteChat(ctx context.Context, ownerID, externalID string) (*models.Chat, error) {
	var chat models.Chat
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		query := tx.Rebind("SELECT " + chatColumns + " FROM chats WHERE external_id = ? AND owner_id = ?")
		if err := tx.GetContext(ctx, &chat, query, externalID, ownerID); err != nil {
			return translateError(err)
		}

		// Delete messages first (foreign key constraint)
		query = tx.Rebind("DELETE FROM messages WHERE chat_id = ?")
		if _, err := tx.ExecContext(ctx, query, chat.ID); err != nil {
			return err
		}

		query = tx.Rebind("DELETE FROM chats WHERE id = ?")
		_, err := tx.ExecContext(ctx, query, chat.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

func (s *SQLStore) SaveMessage(ctx context.Context, msg *models.Message) error {
	query := s.db.Rebind(`INSERT INTO messages (external_id, chat_id, content, sender, sent_at)
		VALUES (?, ?, ?, ?, ?) RETURNING id`)
	err := s.db.QueryRowxContext(ctx, query,
		msg.ExternalID, msg.ChatID, msg.Content, msg.Sender, msg.SentAt,
	).Scan(&msg.ID)
	return translateError(err)
}

// GetChatMessages returns the chat's messages, most recent first. Messages
// sharing a timestamp come back in reverse insertion order.
func (s *SQLStore) GetChatMessages(ctx context.Context, chatID int64) ([]models.Message, error) {
	messages := []models.Message{}
	query := s.db.Rebind(`
		SELECT ` + messageColumns + `
		FROM messages m
		JOIN chats c ON c.id = m.chat_id
		WHERE m.chat_id = ?
		ORDER BY m.sent_at DESC, m.id DESC
	`)
	if err := s.db.SelectContext(ctx, &messages, query, chatID); err != nil {
		return nil, err
	}
	return messages, nil
}

func (s *SQLStore) GetOwnedMessage(ctx context.Context, ownerID, externalID string) (*models.Message, error) {
	var msg models.Message
	query := s.db.Rebind(`
		SELECT ` + messageColumns + `
		FROM messages m
		JOIN chats c ON c.id = m.chat_id
		WHERE m.external_id = ? AND c.owner_id = ?
	`)
	if err := s.db.GetContext(ctx, &msg, query, externalID, ownerID); err != nil {
		return nil, translateError(err)
	}
	return &msg, nil
}

func (s *SQLStore) DeleteOwnedMessage(ctx context.Context, ownerID, externalID string) (*models.Message, error) {
	var msg models.Message
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		query := tx.Rebind(`
			SELECT ` + messageColumns + `
			FROM messages m
			JOIN chats c ON c.id = m.chat_id
			WHERE m.external_id = ? AND c.owner_id = ?
		`)
		if err := tx.GetContext(ctx, &msg, query, externalID, ownerID); err != nil {
			return translateError(err)
		}
		query = tx.Rebind("DELETE FROM messages WHERE id = ?")
		_, err := tx.ExecContext(ctx, query, msg.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}
