package mail

import (
	"context"
	"fmt"
	"time"

	"github.com/emberhold-oss/keep/internal/models"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Mailer writes mailbox rows. It is the delivery side of the workflow
// engine's Notifier contract and the backing store for user-to-user mail.
type Mailer struct {
	db *bun.DB
}

func NewMailer(db *bun.DB) *Mailer {
	return &Mailer{db: db}
}

// System delivers a message with no sender (the guild itself).
func (m *Mailer) System(ctx context.Context, recipientID uuid.UUID, subject, body string) error {
	return m.deliver(ctx, nil, recipientID, subject, body)
}

// Send delivers a message from one user to another.
func (m *Mailer) Send(ctx context.Context, senderID, recipientID uuid.UUID, subject, body string) (*models.MailMessage, error) {
	msg, err := m.insert(ctx, &senderID, recipientID, subject, body)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (m *Mailer) deliver(ctx context.Context, senderID *uuid.UUID, recipientID uuid.UUID, subject, body string) error {
	_, err := m.insert(ctx, senderID, recipientID, subject, body)
	return err
}

func (m *Mailer) insert(ctx context.Context, senderID *uuid.UUID, recipientID uuid.UUID, subject, body string) (*models.MailMessage, error) {
	msg := &models.MailMessage{
		ID:          uuid.New(),
		SenderID:    senderID,
		RecipientID: recipientID,
		Subject:     subject,
		Body:        body,
		CreatedAt:   time.Now().UTC(),
	}
	if _, err := m.db.NewInsert().Model(msg).Exec(ctx); err != nil {
		return nil, fmt.Errorf("insert mail message: %w", err)
	}
	return msg, nil
}
