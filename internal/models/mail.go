package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// MailMessage is a mailbox entry. A nil SenderID means the message came from
// the system (workflow notifications).
type MailMessage struct {
	bun.BaseModel `bun:"table:mail_messages,alias:m"`

	ID          uuid.UUID  `bun:"id,pk,type:text"               json:"id"`
	SenderID    *uuid.UUID `bun:"sender_id,type:text"           json:"sender_id,omitempty"`
	RecipientID uuid.UUID  `bun:"recipient_id,notnull,type:text" json:"recipient_id"`
	Subject     string     `bun:"subject,notnull"               json:"subject"`
	Body        string     `bun:"body,notnull"                  json:"body"`
	Read        bool       `bun:"is_read,notnull"               json:"is_read"`
	CreatedAt   time.Time  `bun:"created_at,nullzero,notnull"   json:"created_at"`
}

type Announcement struct {
	bun.BaseModel `bun:"table:announcements,alias:a"`

	ID        uuid.UUID `bun:"id,pk,type:text"             json:"id"`
	Title     string    `bun:"title,notnull"               json:"title"`
	Body      string    `bun:"body,notnull"                json:"body"`
	Tag       string    `bun:"tag,notnull"                 json:"tag"`
	Author    string    `bun:"author,notnull"              json:"author"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull" json:"created_at"`
}

// PasswordReset holds a hashed one-time reset code with a short expiry.
type PasswordReset struct {
	bun.BaseModel `bun:"table:password_resets,alias:pw"`

	ID        uuid.UUID `bun:"id,pk,type:text"             json:"id"`
	UserID    uuid.UUID `bun:"user_id,notnull,type:text"   json:"user_id"`
	CodeHash  string    `bun:"code_hash,notnull"           json:"-"`
	ExpiresAt time.Time `bun:"expires_at,notnull"          json:"expires_at"`
	Used      bool      `bun:"used,notnull"                json:"used"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull" json:"created_at"`
}
