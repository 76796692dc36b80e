package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/emberhold-oss/keep/internal/models"
	"github.com/emberhold-oss/keep/internal/workflow"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"golang.org/x/crypto/bcrypt"
)

const (
	bcryptCost     = 12
	resetCodeCost  = 10
	resetCodeTTL   = 10 * time.Minute
	minPasswordLen = 8
	minUsernameLen = 3
)

type Handler struct {
	db       *bun.DB
	engine   *workflow.Service
	secret   []byte
	tokenTTL time.Duration
}

func NewHandler(db *bun.DB, engine *workflow.Service, secret []byte, tokenTTL time.Duration) *Handler {
	return &Handler{db: db, engine: engine, secret: secret, tokenTTL: tokenTTL}
}

type sessionUser struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	GuildRank string    `json:"guild_rank"`
}

func (h *Handler) Register(c *gin.Context) {
	ctx := c.Request.Context()

	var req struct {
		Username      string `json:"username"`
		Password      string `json:"password"`
		RequestedRank string `json:"requested_rank"`
		Message       string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "Malformed request body",
		})
		return
	}

	username := strings.TrimSpace(req.Username)
	if len(username) < minUsernameLen {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: fmt.Sprintf("Username must be at least %d characters", minUsernameLen),
		})
		return
	}
	if len(req.Password) < minPasswordLen {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: fmt.Sprintf("Password must be at least %d characters", minPasswordLen),
		})
		return
	}

	taken, err := h.db.NewSelect().
		Model((*models.User)(nil)).
		Where("username = ?", username).
		Exists(ctx)
	if err != nil {
		internalError(c, "Failed to register")
		return
	}
	if taken {
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Error:   "username_taken",
			Message: "Username already taken",
		})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		internalError(c, "Failed to register")
		return
	}

	user := &models.User{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: string(hash),
		GuildRank:    models.RankMember,
		CreatedAt:    time.Now().UTC(),
	}
	if _, err := h.db.NewInsert().Model(user).Exec(ctx); err != nil {
		internalError(c, "Failed to register")
		return
	}

	// Only the admin rank may be requested at signup.
	requestedAdmin := false
	if req.RequestedRank == models.RankAdmin {
		actor := workflow.Actor{ID: user.ID, Username: user.Username, Rank: user.GuildRank}
		if _, err := h.engine.SubmitElevation(ctx, actor, models.RankAdmin, req.Message); err != nil {
			log.Printf("auth: elevation request for %s failed: %v", user.Username, err)
		} else {
			requestedAdmin = true
		}
	}

	token, err := IssueToken(h.secret, user, h.tokenTTL)
	if err != nil {
		internalError(c, "Failed to register")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"user":            sessionUser{ID: user.ID, Username: user.Username, GuildRank: user.GuildRank},
		"token":           token,
		"requested_admin": requestedAdmin,
	})
}

func (h *Handler) Login(c *gin.Context) {
	ctx := c.Request.Context()

	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "username and password required",
		})
		return
	}

	user := new(models.User)
	err := h.db.NewSelect().
		Model(user).
		Where("username = ?", req.Username).
		Scan(ctx)
	if err != nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		// Same response whether the user is unknown or the password is wrong.
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{
			Error:   "invalid_login",
			Message: "Invalid login",
		})
		return
	}

	token, err := IssueToken(h.secret, user, h.tokenTTL)
	if err != nil {
		internalError(c, "Failed to log in")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":  sessionUser{ID: user.ID, Username: user.Username, GuildRank: user.GuildRank},
		"token": token,
	})
}

// Me returns the session snapshot from the token, not the stored row: an
// elevation approved mid-session stays invisible here until re-login.
func (h *Handler) Me(c *gin.Context) {
	actor := CurrentActor(c)
	c.JSON(http.StatusOK, gin.H{
		"user": sessionUser{ID: actor.ID, Username: actor.Username, GuildRank: actor.Rank},
	})
}

// Logout exists for SPA parity; bearer tokens are discarded client-side.
func (h *Handler) Logout(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	ctx := c.Request.Context()
	actor := CurrentActor(c)

	var req struct {
		Username        string `json:"username"`
		CurrentPassword string `json:"current_password" binding:"required"`
		NewPassword     string `json:"new_password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "current_password is required",
		})
		return
	}

	user := new(models.User)
	if err := h.db.NewSelect().Model(user).Where("u.id = ?", actor.ID).Scan(ctx); err != nil {
		internalError(c, "Failed to update profile")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)) != nil {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{
			Error:   "wrong_password",
			Message: "Wrong password",
		})
		return
	}

	if newName := strings.TrimSpace(req.Username); newName != "" && newName != user.Username {
		if len(newName) < minUsernameLen {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:   "invalid_request",
				Message: fmt.Sprintf("Username must be at least %d characters", minUsernameLen),
			})
			return
		}
		taken, err := h.db.NewSelect().
			Model((*models.User)(nil)).
			Where("username = ?", newName).
			Exists(ctx)
		if err != nil {
			internalError(c, "Failed to update profile")
			return
		}
		if taken {
			c.JSON(http.StatusConflict, models.ErrorResponse{
				Error:   "username_taken",
				Message: "Username already taken",
			})
			return
		}
		if _, err := h.db.NewUpdate().
			Model((*models.User)(nil)).
			Set("username = ?", newName).
			Where("id = ?", user.ID).
			Exec(ctx); err != nil {
			internalError(c, "Failed to update profile")
			return
		}
		user.Username = newName
	}

	if req.NewPassword != "" {
		if len(req.NewPassword) < minPasswordLen {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:   "invalid_request",
				Message: fmt.Sprintf("Password must be at least %d characters", minPasswordLen),
			})
			return
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcryptCost)
		if err != nil {
			internalError(c, "Failed to update profile")
			return
		}
		if _, err := h.db.NewUpdate().
			Model((*models.User)(nil)).
			Set("password_hash = ?", string(hash)).
			Where("id = ?", user.ID).
			Exec(ctx); err != nil {
			internalError(c, "Failed to update profile")
			return
		}
	}

	// Re-issue the token so the session reflects a username change.
	token, err := IssueToken(h.secret, user, h.tokenTTL)
	if err != nil {
		internalError(c, "Failed to update profile")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":  sessionUser{ID: user.ID, Username: user.Username, GuildRank: user.GuildRank},
		"token": token,
	})
}

func (h *Handler) Forgot(c *gin.Context) {
	ctx := c.Request.Context()

	var req struct {
		Username string `json:"username" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "username is required",
		})
		return
	}

	user := new(models.User)
	err := h.db.NewSelect().
		Model(user).
		Where("username = ?", strings.TrimSpace(req.Username)).
		Scan(ctx)
	if err != nil {
		// Don't reveal whether the account exists.
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	code, err := generateResetCode()
	if err != nil {
		internalError(c, "Failed to request reset")
		return
	}
	codeHash, err := bcrypt.GenerateFromPassword([]byte(code), resetCodeCost)
	if err != nil {
		internalError(c, "Failed to request reset")
		return
	}

	reset := &models.PasswordReset{
		ID:        uuid.New(),
		UserID:    user.ID,
		CodeHash:  string(codeHash),
		ExpiresAt: time.Now().UTC().Add(resetCodeTTL),
		CreatedAt: time.Now().UTC(),
	}
	if _, err := h.db.NewInsert().Model(reset).Exec(ctx); err != nil {
		internalError(c, "Failed to request reset")
		return
	}

	// Dev delivery: the code goes to the server log, not an email.
	log.Printf("[Password reset] user=%s code=%s (expires in 10 min)", user.Username, code)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) Reset(c *gin.Context) {
	ctx := c.Request.Context()

	var req struct {
		Username    string `json:"username" binding:"required"`
		Code        string `json:"code" binding:"required"`
		NewPassword string `json:"new_password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "username, code and new_password are required",
		})
		return
	}
	if len(req.NewPassword) < minPasswordLen {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: fmt.Sprintf("Password must be at least %d characters", minPasswordLen),
		})
		return
	}

	user := new(models.User)
	if err := h.db.NewSelect().
		Model(user).
		Where("username = ?", strings.TrimSpace(req.Username)).
		Scan(ctx); err != nil {
		invalidReset(c)
		return
	}

	reset := new(models.PasswordReset)
	err := h.db.NewSelect().
		Model(reset).
		Where("user_id = ?", user.ID).
		Where("used = 0").
		Order("created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		invalidReset(c)
		return
	}
	if time.Now().UTC().After(reset.ExpiresAt) {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{
			Error:   "reset_expired",
			Message: "Reset code expired",
		})
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(reset.CodeHash), []byte(req.Code)) != nil {
		invalidReset(c)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcryptCost)
	if err != nil {
		internalError(c, "Failed to reset password")
		return
	}

	err = h.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewUpdate().
			Model((*models.User)(nil)).
			Set("password_hash = ?", string(hash)).
			Where("id = ?", user.ID).
			Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewUpdate().
			Model((*models.PasswordReset)(nil)).
			Set("used = 1").
			Where("id = ?", reset.ID).
			Exec(ctx)
		return err
	})
	if err != nil {
		internalError(c, "Failed to reset password")
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func generateResetCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

func invalidReset(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, models.ErrorResponse{
		Error:   "invalid_reset",
		Message: "Invalid reset",
	})
}

func internalError(c *gin.Context, msg string) {
	c.JSON(http.StatusInternalServerError, models.ErrorResponse{
		Error:   "internal_error",
		Message: msg,
	})
}
