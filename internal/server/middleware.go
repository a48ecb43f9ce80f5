package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"vehicle-auction/internal/models"
	"vehicle-auction/services/bidding/helpers"
	"vehicle-auction/utils"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// Authenticator resolves a bearer access token to its user
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (models.User, error)
}

// RequestIDMiddleware keeps a valid incoming X-Request-ID or assigns a new one
func RequestIDMiddleware(c *gin.Context) {
	id := utils.RequestID(c.GetHeader(requestIDHeader))
	c.Set(requestIDKey, id)
	c.Header(requestIDHeader, id)
	c.Next()
}

// RequestLoggerMiddleware logs incoming requests with timing
func RequestLoggerMiddleware(c *gin.Context) {
	start := time.Now()

	c.Next() // process request

	fields := map[string]any{
		"method":     c.Request.Method,
		"path":       c.Request.URL.Path,
		"status":     c.Writer.Status(),
		"latency":    time.Since(start).String(),
		"request_id": c.GetString(requestIDKey),
	}
	if user, ok := helpers.CurrentUser(c); ok {
		fields["user_id"] = user.ID.String()
	}
	utils.Info("HTTP Request", fields)
}

// RequireAuth rejects requests without a valid bearer token
func RequireAuth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			utils.JSONError(c, http.StatusUnauthorized, helpers.TypeUnauthenticated,
				errors.New("authorization header missing or malformed"), "Missing or invalid token")
			return
		}

		user, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			helpers.RespondError(c, "RequireAuth", err, map[string]any{"path": c.Request.URL.Path})
			return
		}
		helpers.SetCurrentUser(c, user)
		c.Next()
	}
}

// OptionalAuth attaches the user when a usable token is present; anonymous otherwise
func OptionalAuth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearerToken(c); ok {
			if user, err := auth.Authenticate(c.Request.Context(), token); err == nil {
				helpers.SetCurrentUser(c, user)
			}
		}
		c.Next()
	}
}

// RequireRole must run after RequireAuth
func RequireRole(roles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := helpers.CurrentUser(c)
		if !ok {
			helpers.RespondUnauthenticated(c)
			return
		}
		for _, role := range roles {
			if user.Role == role {
				c.Next()
				return
			}
		}
		utils.JSONError(c, http.StatusForbidden, helpers.TypePermission,
			errors.New("role "+string(user.Role)+" not allowed"), "Insufficient permissions")
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
