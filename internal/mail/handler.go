package mail

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/emberhold-oss/keep/internal/auth"
	"github.com/emberhold-oss/keep/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	defaultInboxLimit = 50
	maxInboxLimit     = 200
	maxSubjectLen     = 120
	maxBodyLen        = 5000
)

type Handler struct {
	db     *bun.DB
	mailer *Mailer
}

func NewHandler(db *bun.DB, mailer *Mailer) *Handler {
	return &Handler{db: db, mailer: mailer}
}

func (h *Handler) UnreadCount(c *gin.Context) {
	ctx := c.Request.Context()
	actor := auth.CurrentActor(c)

	count, err := h.db.NewSelect().
		Model((*models.MailMessage)(nil)).
		Where("recipient_id = ?", actor.ID).
		Where("is_read = 0").
		Count(ctx)
	if err != nil {
		fetchFailed(c)
		return
	}

	c.JSON(http.StatusOK, gin.H{"unread": count})
}

type mailContact struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
}

type inboxRow struct {
	ID           uuid.UUID  `bun:"id"`
	Subject      string     `bun:"subject"`
	Body         string     `bun:"body"`
	Read         bool       `bun:"is_read"`
	CreatedAt    time.Time  `bun:"created_at"`
	PeerID       *uuid.UUID `bun:"peer_id"`
	PeerUsername *string    `bun:"peer_username"`
}

func (h *Handler) Inbox(c *gin.Context) {
	ctx := c.Request.Context()
	actor := auth.CurrentActor(c)

	limit := normalizeLimit(c.Query("limit"))
	onlyUnread := c.Query("unread") == "1"

	q := h.db.NewSelect().
		Model((*models.MailMessage)(nil)).
		ColumnExpr("m.id, m.subject, m.body, m.is_read, m.created_at").
		ColumnExpr("s.id AS peer_id, s.username AS peer_username").
		Join("LEFT JOIN users AS s ON s.id = m.sender_id").
		Where("m.recipient_id = ?", actor.ID).
		OrderExpr("m.created_at DESC").
		Limit(limit)
	if onlyUnread {
		q = q.Where("m.is_read = 0")
	}

	var rows []inboxRow
	if err := q.Scan(ctx, &rows); err != nil {
		fetchFailed(c)
		return
	}

	out := make([]gin.H, 0, len(rows))
	for _, r := range rows {
		out = append(out, gin.H{
			"id":         r.ID,
			"subject":    r.Subject,
			"body":       r.Body,
			"is_read":    r.Read,
			"created_at": r.CreatedAt,
			"from":       contactOrNil(r.PeerID, r.PeerUsername),
		})
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) Sent(c *gin.Context) {
	ctx := c.Request.Context()
	actor := auth.CurrentActor(c)

	limit := normalizeLimit(c.Query("limit"))

	var rows []inboxRow
	err := h.db.NewSelect().
		Model((*models.MailMessage)(nil)).
		ColumnExpr("m.id, m.subject, m.body, m.is_read, m.created_at").
		ColumnExpr("r.id AS peer_id, r.username AS peer_username").
		Join("LEFT JOIN users AS r ON r.id = m.recipient_id").
		Where("m.sender_id = ?", actor.ID).
		OrderExpr("m.created_at DESC").
		Limit(limit).
		Scan(ctx, &rows)
	if err != nil {
		fetchFailed(c)
		return
	}

	out := make([]gin.H, 0, len(rows))
	for _, r := range rows {
		out = append(out, gin.H{
			"id":         r.ID,
			"subject":    r.Subject,
			"body":       r.Body,
			"created_at": r.CreatedAt,
			"to":         contactOrNil(r.PeerID, r.PeerUsername),
		})
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) MarkRead(c *gin.Context) {
	ctx := c.Request.Context()
	actor := auth.CurrentActor(c)

	msgID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_id",
			Message: "Invalid message ID",
		})
		return
	}

	msg := new(models.MailMessage)
	if err := h.db.NewSelect().Model(msg).Where("m.id = ?", msgID).Scan(ctx); err != nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "not_found",
			Message: "Message not found",
		})
		return
	}
	if msg.RecipientID != actor.ID {
		c.JSON(http.StatusForbidden, models.ErrorResponse{
			Error:   "not_authorized",
			Message: "Not authorized",
		})
		return
	}

	if !msg.Read {
		if _, err := h.db.NewUpdate().
			Model((*models.MailMessage)(nil)).
			Set("is_read = 1").
			Where("id = ?", msgID).
			Exec(ctx); err != nil {
			fetchFailed(c)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Send delivers user-to-user mail. Leadership can message anyone; regular
// members can only message leadership.
func (h *Handler) Send(c *gin.Context) {
	ctx := c.Request.Context()
	actor := auth.CurrentActor(c)

	var req struct {
		ToUsername string `json:"to_username" binding:"required"`
		Subject    string `json:"subject" binding:"required"`
		Body       string `json:"body" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "to_username, subject and body are required",
		})
		return
	}

	subject := strings.TrimSpace(req.Subject)
	body := strings.TrimSpace(req.Body)
	toName := strings.TrimSpace(req.ToUsername)

	switch {
	case toName == "" || subject == "" || body == "":
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "to_username, subject and body are required",
		})
		return
	case len(subject) > maxSubjectLen:
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "Subject too long",
		})
		return
	case len(body) > maxBodyLen:
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "Body too long",
		})
		return
	}

	recipient := new(models.User)
	if err := h.db.NewSelect().Model(recipient).Where("username = ?", toName).Scan(ctx); err != nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "not_found",
			Message: "Recipient not found",
		})
		return
	}
	if recipient.ID == actor.ID {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "Can't message yourself",
		})
		return
	}

	if !models.IsLeadershipRank(actor.Rank) && !models.IsLeadershipRank(recipient.GuildRank) {
		c.JSON(http.StatusForbidden, models.ErrorResponse{
			Error:   "not_authorized",
			Message: "Members can only message leaders",
		})
		return
	}

	msg, err := h.mailer.Send(ctx, actor.ID, recipient.ID, subject, body)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "send_failed",
			Message: "Failed to send message",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"ok": true, "id": msg.ID})
}

func contactOrNil(id *uuid.UUID, username *string) *mailContact {
	if id == nil || username == nil {
		return nil
	}
	return &mailContact{ID: *id, Username: *username}
}

func normalizeLimit(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return defaultInboxLimit
	}
	if n > maxInboxLimit {
		return maxInboxLimit
	}
	return n
}

func fetchFailed(c *gin.Context) {
	c.JSON(http.StatusInternalServerError, models.ErrorResponse{
		Error:   "fetch_failed",
		Message: "Failed to fetch mail",
	})
}
