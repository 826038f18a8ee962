package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/venue-approval/internal/domain"
	"github.com/prohmpiriya/venue-approval/internal/dto"
	"github.com/prohmpiriya/venue-approval/pkg/middleware"
	"github.com/prohmpiriya/venue-approval/pkg/response"
)

// Error codes returned in dto.ErrorResponse
const (
	CodeValidation           = "VALIDATION_ERROR"
	CodeInvalidRequest       = "INVALID_REQUEST"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeForbidden            = "FORBIDDEN"
	CodeNotFound             = "NOT_FOUND"
	CodeConflict             = "CONFLICT"
	CodeIllegalTransition    = "ILLEGAL_TRANSITION"
	CodeInsufficientCapacity = "INSUFFICIENT_CAPACITY"
)

// actorFrom resolves the verified caller. It writes a 401 and returns false
// when the request carries no identity.
func actorFrom(c *gin.Context) (domain.Actor, bool) {
	id, ok := middleware.GetIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
			Error: "unauthorized",
			Code:  CodeUnauthorized,
		})
		return domain.Actor{}, false
	}

	role, err := domain.ParseRole(id.Role)
	if err != nil {
		handleError(c, err)
		return domain.Actor{}, false
	}
	return domain.Actor{ID: id.UserID, Role: role, Department: id.Department}, true
}

// badRequest reports a body or query that could not be decoded
func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, dto.ErrorResponse{
		Error:   "invalid request",
		Code:    CodeInvalidRequest,
		Message: err.Error(),
	})
}

// handleError converts domain errors to HTTP responses
func handleError(c *gin.Context, err error) {
	switch {
	case domain.IsConflictError(err):
		c.JSON(http.StatusConflict, dto.ErrorResponse{
			Error: err.Error(),
			Code:  CodeConflict,
		})
	case domain.IsCapacityError(err):
		c.JSON(http.StatusConflict, dto.ErrorResponse{
			Error: err.Error(),
			Code:  CodeInsufficientCapacity,
		})
	case domain.IsIllegalTransitionError(err):
		c.JSON(http.StatusConflict, dto.ErrorResponse{
			Error: err.Error(),
			Code:  CodeIllegalTransition,
		})
	case domain.IsValidationError(err):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error: err.Error(),
			Code:  CodeValidation,
		})
	case domain.IsForbiddenError(err):
		c.JSON(http.StatusForbidden, dto.ErrorResponse{
			Error: err.Error(),
			Code:  CodeForbidden,
		})
	case domain.IsNotFoundError(err):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{
			Error: err.Error(),
			Code:  CodeNotFound,
		})
	default:
		response.InternalError(c, err)
	}
}
