package members

import (
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/emberhold-oss/keep/internal/api"
	"github.com/emberhold-oss/keep/internal/auth"
	"github.com/emberhold-oss/keep/internal/models"
	"github.com/emberhold-oss/keep/internal/workflow"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Handler struct {
	db     *bun.DB
	engine *workflow.Service
}

func NewHandler(db *bun.DB, engine *workflow.Service) *Handler {
	return &Handler{db: db, engine: engine}
}

type memberRow struct {
	ID        uuid.UUID  `bun:"id"`
	Username  string     `bun:"username"`
	GuildRank string     `bun:"guild_rank"`
	PartyID   *uuid.UUID `bun:"party_id"`
	PartyName *string    `bun:"party_name"`
}

// List returns every user with their active party, if any.
func (h *Handler) List(c *gin.Context) {
	ctx := c.Request.Context()

	var rows []memberRow
	err := h.db.NewSelect().
		Model((*models.User)(nil)).
		ColumnExpr("u.id, u.username, u.guild_rank").
		ColumnExpr("p.id AS party_id, p.name AS party_name").
		Join("LEFT JOIN party_members AS pm ON pm.user_id = u.id").
		Join("LEFT JOIN parties AS p ON p.id = pm.party_id AND p.is_active = 1").
		OrderExpr("u.created_at DESC").
		Scan(ctx, &rows)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "fetch_failed",
			Message: "Failed to fetch members",
		})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for _, r := range rows {
		var party interface{}
		if r.PartyID != nil && r.PartyName != nil {
			party = gin.H{"id": *r.PartyID, "name": *r.PartyName}
		}
		out = append(out, gin.H{
			"id":         r.ID,
			"username":   r.Username,
			"guild_rank": r.GuildRank,
			"party":      party,
		})
	}
	c.JSON(http.StatusOK, out)
}

// MyRankRequest returns the caller's latest elevation request, if any.
func (h *Handler) MyRankRequest(c *gin.Context) {
	ctx := c.Request.Context()
	actor := auth.CurrentActor(c)

	req := new(models.Request)
	err := h.db.NewSelect().
		Model(req).
		Where("r.user_id = ?", actor.ID).
		Where("r.kind = ?", models.KindRankElevation).
		OrderExpr("r.created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusOK, gin.H{"request": nil})
			return
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "fetch_failed",
			Message: "Failed to fetch rank request",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"request": req})
}

// SubmitRankRequest files an elevation request outside of registration.
func (h *Handler) SubmitRankRequest(c *gin.Context) {
	ctx := c.Request.Context()
	actor := auth.CurrentActor(c)

	var req struct {
		RequestedRank string `json:"requested_rank" binding:"required"`
		Message       string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "requested_rank is required",
		})
		return
	}

	created, err := h.engine.SubmitElevation(ctx, actor, req.RequestedRank, req.Message)
	if err != nil {
		api.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

type rankRequestRow struct {
	ID            uuid.UUID `bun:"id"`
	UserID        uuid.UUID `bun:"user_id"`
	Username      string    `bun:"username"`
	RequestedRank string    `bun:"requested_rank"`
	Message       string    `bun:"message"`
	Status        string    `bun:"status"`
	CreatedAt     time.Time `bun:"created_at"`
}

func (h *Handler) ListRankRequests(c *gin.Context) {
	ctx := c.Request.Context()

	status := c.Query("status")
	switch status {
	case models.StatusApproved, models.StatusRejected, models.StatusPending:
	default:
		status = models.StatusPending
	}

	var rows []rankRequestRow
	err := h.db.NewSelect().
		Model((*models.Request)(nil)).
		ColumnExpr("r.id, r.user_id, r.requested_rank, r.message, r.status, r.created_at").
		ColumnExpr("u.username").
		Join("JOIN users AS u ON u.id = r.user_id").
		Where("r.kind = ?", models.KindRankElevation).
		Where("r.status = ?", status).
		OrderExpr("r.created_at DESC").
		Scan(ctx, &rows)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "fetch_failed",
			Message: "Failed to fetch rank requests",
		})
		return
	}
	if rows == nil {
		rows = []rankRequestRow{}
	}

	out := make([]gin.H, 0, len(rows))
	for _, r := range rows {
		out = append(out, gin.H{
			"id":             r.ID,
			"user_id":        r.UserID,
			"username":       r.Username,
			"requested_rank": r.RequestedRank,
			"message":        r.Message,
			"status":         r.Status,
			"created_at":     r.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) ApproveRankRequest(c *gin.Context) {
	ctx := c.Request.Context()
	actor := auth.CurrentActor(c)

	requestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_id",
			Message: "Invalid request ID",
		})
		return
	}

	if _, err := h.engine.Approve(ctx, models.KindRankElevation, requestID, actor); err != nil {
		api.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) RejectRankRequest(c *gin.Context) {
	ctx := c.Request.Context()
	actor := auth.CurrentActor(c)

	requestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_id",
			Message: "Invalid request ID",
		})
		return
	}

	if _, err := h.engine.Reject(ctx, models.KindRankElevation, requestID, actor); err != nil {
		api.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
