package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorBody is the failure shape for operator-side errors: {"error": "..."}.
type ErrorBody struct {
	Error string `json:"error"`
}

// ValidationBody is the failure shape for client-correctable input: {"message", "field"}.
type ValidationBody struct {
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// OK sends a 200 JSON response with data as the body.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// Created sends a 201 JSON response with data as the body.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

// BadRequest sends 400 with a message and the offending field, if known.
func BadRequest(c *gin.Context, message, field string) {
	c.JSON(http.StatusBadRequest, ValidationBody{Message: message, Field: field})
}

// Unauthorized sends 401.
func Unauthorized(c *gin.Context, err string) {
	c.JSON(http.StatusUnauthorized, ErrorBody{Error: err})
}

// Internal sends 500. The message must be generic; details belong in server logs.
func Internal(c *gin.Context, err string) {
	c.JSON(http.StatusInternalServerError, ErrorBody{Error: err})
}

// NoStore marks a response as uncacheable (credentials, one-shot tokens).
func NoStore(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
}
