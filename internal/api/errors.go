package api

import (
	"errors"
	"net/http"

	"github.com/emberhold-oss/keep/internal/models"
	"github.com/emberhold-oss/keep/internal/workflow"
	"github.com/gin-gonic/gin"
)

// Error maps a workflow error onto an HTTP response. Every taxonomy error
// keeps its own message so the client can render what was actually violated;
// storage faults collapse into a generic 500.
func Error(c *gin.Context, err error) {
	switch {
	case errors.Is(err, workflow.ErrNameTooShort),
		errors.Is(err, workflow.ErrInvalidRank),
		errors.Is(err, workflow.ErrUnknownKind):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})

	case errors.Is(err, workflow.ErrNotAuthorized):
		c.JSON(http.StatusForbidden, models.ErrorResponse{
			Error:   "not_authorized",
			Message: err.Error(),
		})

	case errors.Is(err, workflow.ErrRequestNotFound),
		errors.Is(err, workflow.ErrPartyNotFound),
		errors.Is(err, workflow.ErrUserNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "not_found",
			Message: err.Error(),
		})

	case errors.Is(err, workflow.ErrAlreadyInParty):
		conflict(c, "already_in_party", err)
	case errors.Is(err, workflow.ErrPendingRequest):
		conflict(c, "pending_request_exists", err)
	case errors.Is(err, workflow.ErrPartyNameTaken):
		conflict(c, "name_taken", err)
	case errors.Is(err, workflow.ErrAlreadyReviewed):
		conflict(c, "request_not_pending", err)
	case errors.Is(err, workflow.ErrPartyArchived):
		conflict(c, "party_archived", err)

	default:
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "internal_error",
			Message: "Something went wrong",
		})
	}
}

func conflict(c *gin.Context, code string, err error) {
	c.JSON(http.StatusConflict, models.ErrorResponse{
		Error:   code,
		Message: err.Error(),
	})
}
