package handlers

import (
	"log"

	"github.com/gin-gonic/gin"

	"ludo-arena-backend/internal/apperr"
)

// respondError maps a service error onto an HTTP status and a safe
// message. Internal errors are logged in full but never leaked.
func respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	msg := apperr.Message(err)
	if status >= 500 {
		log.Printf("HTTP_ERROR: %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		msg = "internal error"
	}
	c.JSON(status, gin.H{"error": msg})
}
