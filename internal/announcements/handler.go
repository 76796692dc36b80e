package announcements

import (
	"net/http"
	"strings"
	"time"

	"github.com/emberhold-oss/keep/internal/auth"
	"github.com/emberhold-oss/keep/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const defaultTag = "General"

type Handler struct {
	db *bun.DB
}

func NewHandler(db *bun.DB) *Handler {
	return &Handler{db: db}
}

func (h *Handler) List(c *gin.Context) {
	ctx := c.Request.Context()

	var rows []models.Announcement
	err := h.db.NewSelect().
		Model(&rows).
		OrderExpr("a.created_at DESC").
		Scan(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "fetch_failed",
			Message: "Failed to load announcements",
		})
		return
	}
	if rows == nil {
		rows = []models.Announcement{}
	}
	c.JSON(http.StatusOK, rows)
}

func (h *Handler) Create(c *gin.Context) {
	ctx := c.Request.Context()
	actor := auth.CurrentActor(c)

	var req struct {
		Title string `json:"title" binding:"required"`
		Body  string `json:"body" binding:"required"`
		Tag   string `json:"tag"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "title and body are required",
		})
		return
	}

	tag := strings.TrimSpace(req.Tag)
	if tag == "" {
		tag = defaultTag
	}

	row := &models.Announcement{
		ID:        uuid.New(),
		Title:     req.Title,
		Body:      req.Body,
		Tag:       tag,
		Author:    actor.Username,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := h.db.NewInsert().Model(row).Exec(ctx); err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "create_failed",
			Message: "Failed to create announcement",
		})
		return
	}
	c.JSON(http.StatusCreated, row)
}

func (h *Handler) Delete(c *gin.Context) {
	ctx := c.Request.Context()

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_id",
			Message: "Invalid announcement ID",
		})
		return
	}

	res, err := h.db.NewDelete().
		Model((*models.Announcement)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "delete_failed",
			Message: "Failed to delete announcement",
		})
		return
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "not_found",
			Message: "Announcement not found",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
