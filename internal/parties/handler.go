package parties

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

// --- Member endpoints ---

type partyListRow struct {
	ID          uuid.UUID `bun:"id"          json:"id"`
	Name        string    `bun:"name"        json:"name"`
	Description string    `bun:"description" json:"description"`
	CreatedAt   time.Time `bun:"created_at"  json:"created_at"`
	MemberCount int       `bun:"member_count" json:"member_count"`
}

func (h *Handler) ListParties(c *gin.Context) {
	ctx := c.Request.Context()

	var rows []partyListRow
	err := h.db.NewSelect().
		Model((*models.Party)(nil)).
		ColumnExpr("p.id, p.name, p.description, p.created_at").
		ColumnExpr("COUNT(pm.id) AS member_count").
		Join("LEFT JOIN party_members AS pm ON pm.party_id = p.id").
		Where("p.is_active = 1").
		GroupExpr("p.id").
		OrderExpr("p.created_at DESC").
		Scan(ctx, &rows)
	if err != nil {
		fetchFailed(c)
		return
	}
	if rows == nil {
		rows = []partyListRow{}
	}
	c.JSON(http.StatusOK, rows)
}

type myPartyRow struct {
	PartyID     uuid.UUID `bun:"party_id"`
	Name        string    `bun:"party_name"`
	Description string    `bun:"party_description"`
	Role        string    `bun:"role_name"`
}

func (h *Handler) MyParty(c *gin.Context) {
	ctx := c.Request.Context()
	actor := auth.CurrentActor(c)

	row := new(myPartyRow)
	err := h.db.NewSelect().
		Model((*models.PartyMember)(nil)).
		ColumnExpr("p.id AS party_id, p.name AS party_name, p.description AS party_description").
		ColumnExpr("pr.name AS role_name").
		Join("JOIN parties AS p ON p.id = pm.party_id").
		Join("JOIN party_roles AS pr ON pr.id = pm.role_id").
		Where("pm.user_id = ?", actor.ID).
		Scan(ctx, row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusOK, gin.H{"party": nil})
			return
		}
		fetchFailed(c)
		return
	}

	c.JSON(http.StatusOK, gin.H{"party": gin.H{
		"id":          row.PartyID,
		"name":        row.Name,
		"description": row.Description,
		"role":        row.Role,
	}})
}

func (h *Handler) SubmitCreationRequest(c *gin.Context) {
	ctx := c.Request.Context()
	actor := auth.CurrentActor(c)

	var req struct {
		PartyName string `json:"party_name" binding:"required"`
		Message   string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "party_name is required",
		})
		return
	}

	created, err := h.engine.SubmitCreation(ctx, actor, req.PartyName, req.Message)
	if err != nil {
		api.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) SubmitJoinRequest(c *gin.Context) {
	ctx := c.Request.Context()
	actor := auth.CurrentActor(c)

	partyID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		invalidID(c, "Invalid party ID")
		return
	}

	var req struct {
		Message string `json:"message"`
	}
	// Body is optional for join requests.
	_ = c.ShouldBindJSON(&req)

	created, err := h.engine.SubmitJoin(ctx, actor, partyID, req.Message)
	if err != nil {
		api.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) MyCreationRequest(c *gin.Context) {
	h.latestRequest(c, models.KindPartyCreation)
}

func (h *Handler) MyJoinRequest(c *gin.Context) {
	h.latestRequest(c, models.KindPartyJoin)
}

func (h *Handler) latestRequest(c *gin.Context, kind models.RequestKind) {
	ctx := c.Request.Context()
	actor := auth.CurrentActor(c)

	req := new(models.Request)
	err := h.db.NewSelect().
		Model(req).
		Where("r.user_id = ?", actor.ID).
		Where("r.kind = ?", kind).
		OrderExpr("r.created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusOK, gin.H{"request": nil})
			return
		}
		fetchFailed(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"request": req})
}

// --- Leadership endpoints ---

type creationRequestRow struct {
	ID        uuid.UUID `bun:"id"`
	PartyName string    `bun:"party_name"`
	Message   string    `bun:"message"`
	Status    string    `bun:"status"`
	CreatedAt time.Time `bun:"created_at"`
	UserID    uuid.UUID `bun:"user_id"`
	Username  string    `bun:"username"`
}

func (h *Handler) ListCreationRequests(c *gin.Context) {
	ctx := c.Request.Context()
	status := statusFilter(c)

	var rows []creationRequestRow
	err := h.db.NewSelect().
		Model((*models.Request)(nil)).
		ColumnExpr("r.id, r.party_name, r.message, r.status, r.created_at, r.user_id").
		ColumnExpr("u.username").
		Join("JOIN users AS u ON u.id = r.user_id").
		Where("r.kind = ?", models.KindPartyCreation).
		Where("r.status = ?", status).
		OrderExpr("r.created_at DESC").
		Scan(ctx, &rows)
	if err != nil {
		fetchFailed(c)
		return
	}

	out := make([]gin.H, 0, len(rows))
	for _, r := range rows {
		out = append(out, gin.H{
			"id":         r.ID,
			"party_name": r.PartyName,
			"message":    r.Message,
			"status":     r.Status,
			"created_at": r.CreatedAt,
			"user":       gin.H{"id": r.UserID, "username": r.Username},
		})
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) ApproveCreationRequest(c *gin.Context) {
	ctx := c.Request.Context()
	actor := auth.CurrentActor(c)

	requestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		invalidID(c, "Invalid request ID")
		return
	}

	res, err := h.engine.Approve(ctx, models.KindPartyCreation, requestID, actor)
	if err != nil {
		api.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":              true,
		"party":           res.Party,
		"captain_user_id": res.Request.UserID,
	})
}

func (h *Handler) RejectCreationRequest(c *gin.Context) {
	h.reject(c, models.KindPartyCreation)
}

func (h *Handler) Disband(c *gin.Context) {
	ctx := c.Request.Context()
	actor := auth.CurrentActor(c)

	partyID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		invalidID(c, "Invalid party ID")
		return
	}

	if err := h.engine.Disband(ctx, partyID, actor); err != nil {
		api.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// --- Captain endpoints ---

type joinRequestRow struct {
	ID        uuid.UUID `bun:"id"`
	UserID    uuid.UUID `bun:"user_id"`
	Username  string    `bun:"username"`
	PartyID   uuid.UUID `bun:"party_id"`
	PartyName string    `bun:"party_name"`
	Message   string    `bun:"message"`
	Status    string    `bun:"status"`
	CreatedAt time.Time `bun:"created_at"`
}

func (h *Handler) ListJoinRequests(c *gin.Context) {
	ctx := c.Request.Context()
	actor := auth.CurrentActor(c)
	status := statusFilter(c)

	// Captaincy is checked live against the caller's current membership.
	my := new(myPartyRow)
	err := h.db.NewSelect().
		Model((*models.PartyMember)(nil)).
		ColumnExpr("pm.party_id, pr.name AS role_name").
		Join("JOIN party_roles AS pr ON pr.id = pm.role_id").
		Where("pm.user_id = ?", actor.ID).
		Scan(ctx, my)
	if err != nil || my.Role != models.RoleCaptain {
		c.JSON(http.StatusForbidden, models.ErrorResponse{
			Error:   "not_authorized",
			Message: "Only the party captain can manage join requests",
		})
		return
	}

	if raw := c.Query("party_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil || id != my.PartyID {
			c.JSON(http.StatusForbidden, models.ErrorResponse{
				Error:   "not_authorized",
				Message: "Not authorized",
			})
			return
		}
	}

	var rows []joinRequestRow
	err = h.db.NewSelect().
		Model((*models.Request)(nil)).
		ColumnExpr("r.id, r.user_id, r.party_id, r.message, r.status, r.created_at").
		ColumnExpr("u.username, p.name AS party_name").
		Join("JOIN users AS u ON u.id = r.user_id").
		Join("JOIN parties AS p ON p.id = r.party_id").
		Where("r.kind = ?", models.KindPartyJoin).
		Where("r.status = ?", status).
		Where("r.party_id = ?", my.PartyID).
		OrderExpr("r.created_at DESC").
		Scan(ctx, &rows)
	if err != nil {
		fetchFailed(c)
		return
	}
	if rows == nil {
		rows = []joinRequestRow{}
	}

	out := make([]gin.H, 0, len(rows))
	for _, r := range rows {
		out = append(out, gin.H{
			"id":         r.ID,
			"user_id":    r.UserID,
			"username":   r.Username,
			"party_id":   r.PartyID,
			"party_name": r.PartyName,
			"message":    r.Message,
			"status":     r.Status,
			"created_at": r.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) ApproveJoinRequest(c *gin.Context) {
	ctx := c.Request.Context()
	actor := auth.CurrentActor(c)

	requestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		invalidID(c, "Invalid request ID")
		return
	}

	if _, err := h.engine.Approve(ctx, models.KindPartyJoin, requestID, actor); err != nil {
		api.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) RejectJoinRequest(c *gin.Context) {
	h.reject(c, models.KindPartyJoin)
}

// --- Helpers ---

func (h *Handler) reject(c *gin.Context, kind models.RequestKind) {
	ctx := c.Request.Context()
	actor := auth.CurrentActor(c)

	requestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		invalidID(c, "Invalid request ID")
		return
	}

	if _, err := h.engine.Reject(ctx, kind, requestID, actor); err != nil {
		api.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func statusFilter(c *gin.Context) string {
	switch s := c.Query("status"); s {
	case models.StatusApproved, models.StatusRejected, models.StatusPending:
		return s
	default:
		return models.StatusPending
	}
}

func invalidID(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error:   "invalid_id",
		Message: msg,
	})
}

func fetchFailed(c *gin.Context) {
	c.JSON(http.StatusInternalServerError, models.ErrorResponse{
		Error:   "fetch_failed",
		Message: "Failed to fetch data",
	})
}
