package models

import "time"

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// SenderType identifies who authored a message.
type SenderType string

const (
	SenderUser    SenderType = "USER"
	SenderAIModel SenderType = "AI_MODEL"
)

// MaxMessageLength bounds message content in characters.
const MaxMessageLength = 4000

type User struct {
	ID                         int64      `db:"id" json:"-"`
	ExternalID                 string     `db:"external_id" json:"id"`
	Email                      string     `db:"email" json:"email"`
	PasswordHash               string     `db:"password_hash" json:"-"`
	FullName                   string     `db:"full_name" json:"fullName"`
	Role                       Role       `db:"role" json:"role"`
	EmailVerified              bool       `db:"email_verified" json:"emailVerified"`
	VerificationToken          *string    `db:"verification_token" json:"-"`
	VerificationTokenExpiresAt *time.Time `db:"verification_token_expires_at" json:"-"`
	CreatedAt                  time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt                  time.Time  `db:"updated_at" json:"updatedAt"`
}

type Chat struct {
	ID         int64     `db:"id" json:"-"`
	ExternalID string    `db:"external_id" json:"externalId"`
	Title      string    `db:"title" json:"title"`
	OwnerID    string    `db:"owner_id" json:"-"` // owning user's external id
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time `db:"updated_at" json:"updatedAt"`
}

type Message struct {
	ID             int64      `db:"id" json:"-"`
	ExternalID     string     `db:"external_id" json:"externalId"`
	ChatID         int64      `db:"chat_id" json:"-"`
	ChatExternalID string     `db:"chat_external_id" json:"chatExternalId"`
	Content        string     `db:"content" json:"content"`
	Sender         SenderType `db:"sender" json:"sender"`
	SentAt         time.Time  `db:"sent_at" json:"sentAt"`
}

// Principal is the authenticated caller of a request. It is derived from a
// verified access token and passed explicitly to every scoped operation.
type Principal struct {
	UserID string
	Email  string
}
