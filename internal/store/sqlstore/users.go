package sqlstore

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pliu/simquery/internal/models"
	"github.com/pliu/simquery/internal/store"
)

const userColumns = `id, external_id, email, password_hash, full_name, role, email_verified,
	verification_token, verification_token_expires_at, created_at, updated_at`

func (s *SQLStore) CreateUser(ctx context.Context, user *models.User) error {
	query := s.db.Rebind(`INSERT INTO users (external_id, email, password_hash, full_name, role, email_verified,
		verification_token, verification_token_expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)
	err := s.db.QueryRowxContext(ctx, query,
		user.ExternalID, user.Email, user.PasswordHash, user.FullName, user.Role, user.EmailVerified,
		user.VerificationToken, user.VerificationTokenExpiresAt, user.CreatedAt, user.UpdatedAt,
	).Scan(&user.ID)
	return translateError(err)
}

func (s *SQLStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, "email = ?", email)
}

func (s *SQLStore) GetUserByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	return s.getUser(ctx, "external_id = ?", externalID)
}

func (s *SQLStore) getUser(ctx context.Context, where string, arg any) (*models.User, error) {
	var user models.User
	query := s.db.Rebind("SELECT " + userColumns + " FROM users WHERE " + where)
	if err := s.db.GetContext(ctx, &user, query, arg); err != nil {
		return nil, translateError(err)
	}
	return &user, nil
}

// ConsumeVerificationToken marks the owner of an unexpired token as verified
// and clears the token in a single statement, so a token can succeed once.
func (s *SQLStore) ConsumeVerificationToken(ctx context.Context, token string, now time.Time) error {
	query := s.db.Rebind(`UPDATE users
		SET email_verified = TRUE, verification_token = NULL, verification_token_expires_at = NULL, updated_at = ?
		WHERE verification_token = ? AND verification_token_expires_at > ?`)
	result, err := s.db.ExecContext(ctx, query, now, token, now)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *SQLStore) SetVerificationToken(ctx context.Context, userID int64, token string, expiresAt, now time.Time) error {
	query := s.db.Rebind(`UPDATE users
		SET verification_token = ?, verification_token_expires_at = ?, updated_at = ?
		WHERE id = ? AND email_verified = FALSE`)
	result, err := s.db.ExecContext(ctx, query, token, expiresAt, now, userID)
	if err != nil {
		return translateError(err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteUser removes a user together with their chats and messages.
// Accounts are never hard-deleted by the services, so it is not part of
// store.Store.
func (s *SQLStore) DeleteUser(ctx context.Context, externalID string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		query := tx.Rebind("DELETE FROM messages WHERE chat_id IN (SELECT id FROM chats WHERE owner_id = ?)")
		if _, err := tx.ExecContext(ctx, query, externalID); err != nil {
			return err
		}
		query = tx.Rebind("DELETE FROM chats WHERE owner_id = ?")
		if _, err := tx.ExecContext(ctx, query, externalID); err != nil {
			return err
		}
		query = tx.Rebind("DELETE FROM users WHERE external_id = ?")
		result, err := tx.ExecContext(ctx, query, externalID)
		if err != nil {
			return err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return store.ErrNotFound
		}
		return nil
	})
}
