package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorBody is the JSON body of every error response
type ErrorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// List wraps a collection response
type List struct {
	Data  interface{} `json:"data"`
	Count int         `json:"count"`
}

// NewError builds an error body
func NewError(err, code, message string) ErrorBody {
	return ErrorBody{Error: err, Code: code, Message: message}
}

// OK writes data with status 200
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// Created writes data with status 201
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

// Items writes a list response with its item count
func Items(c *gin.Context, data interface{}, count int) {
	c.JSON(http.StatusOK, List{Data: data, Count: count})
}

// Abort stops the chain and writes an error body
func Abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorBody{
		Error:   http.StatusText(status),
		Code:    code,
		Message: message,
	})
}

func Unauthorized(c *gin.Context, message string) {
	Abort(c, http.StatusUnauthorized, "UNAUTHORIZED", message)
}

func Forbidden(c *gin.Context, message string) {
	Abort(c, http.StatusForbidden, "FORBIDDEN", message)
}

func BadRequest(c *gin.Context, message string) {
	Abort(c, http.StatusBadRequest, "BAD_REQUEST", message)
}

func TooManyRequests(c *gin.Context, message string) {
	Abort(c, http.StatusTooManyRequests, "RATE_LIMITED", message)
}

// InternalError hides err from the caller
func InternalError(c *gin.Context, err error) {
	_ = c.Error(err)
	Abort(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
}
