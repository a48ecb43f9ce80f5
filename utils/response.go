package utils

import (
	"github.com/gin-gonic/gin"
)

// JSONResponse sends a structured JSON response
func JSONResponse(c *gin.Context, status int, data any, message string) {
	c.JSON(status, gin.H{
		"status":  status,
		"message": message,
		"data":    data,
	})
}

// JSONError sends a structured error response and stops the handler chain
func JSONError(c *gin.Context, status int, errType string, err error, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"status":  status,
		"type":    errType,
		"message": message,
		"error":   err.Error(),
	})
}
