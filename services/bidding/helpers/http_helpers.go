package helpers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"vehicle-auction/internal/biddingerrors"
	"vehicle-auction/internal/models"
	"vehicle-auction/utils"
)

// Machine readable error types returned in the "type" field
const (
	TypeValidation      = "validation_error"
	TypeInvalidState    = "invalid_state"
	TypeQuotaExceeded   = "quota_exceeded"
	TypeNotFound        = "not_found"
	TypePermission      = "permission_denied"
	TypeUnauthenticated = "unauthenticated"
	TypeConflict        = "conflict"
	TypeInternal        = "internal_error"
)

const currentUserKey = "current_user"

func init() {
	// validation errors name fields by their json key
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	}
}

// HandleBindError sends a standardized JSON error for binding failures
func HandleBindError(c *gin.Context, handlerName string, err error) {
	wrappedErr := fmt.Errorf("invalid request payload: %w", err)
	message := "Invalid field types"
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 && fieldErrs[0].Tag() == "required" {
		message = "Missing " + fieldErrs[0].Field()
	}
	utils.JSONError(c, http.StatusBadRequest, TypeValidation, wrappedErr, message)
	utils.Warn(handlerName+": binding error", map[string]any{"error": err.Error()})
}

// MapErrorToHTTP maps domain/service errors to an HTTP status, error type and message
func MapErrorToHTTP(err error) (int, string, string) {
	status, errType := http.StatusInternalServerError, TypeInternal
	switch {
	case errors.Is(err, biddingerrors.ErrValidation):
		status, errType = http.StatusBadRequest, TypeValidation
	case errors.Is(err, biddingerrors.ErrInvalidState):
		status, errType = http.StatusBadRequest, TypeInvalidState
	case errors.Is(err, biddingerrors.ErrQuotaExceeded):
		status, errType = http.StatusBadRequest, TypeQuotaExceeded
	case errors.Is(err, biddingerrors.ErrNotFound), errors.Is(err, biddingerrors.ErrNoBids):
		status, errType = http.StatusNotFound, TypeNotFound
	case errors.Is(err, biddingerrors.ErrPermission):
		status, errType = http.StatusForbidden, TypePermission
	case errors.Is(err, biddingerrors.ErrUnauthenticated):
		status, errType = http.StatusUnauthorized, TypeUnauthenticated
	case errors.Is(err, biddingerrors.ErrConflict), errors.Is(err, biddingerrors.ErrDuplicate):
		status, errType = http.StatusConflict, TypeConflict
	}

	if errType == TypeInternal {
		return status, errType, "internal server error"
	}
	if msg, ok := biddingerrors.Message(err); ok {
		return status, errType, msg
	}
	if errors.Is(err, biddingerrors.ErrNoBids) {
		return status, errType, "No bids found for auction"
	}
	return status, errType, http.StatusText(status)
}

// RespondError writes the mapped error and logs it; internal details never reach the client
func RespondError(c *gin.Context, handlerName string, err error, fields map[string]any) {
	status, errType, message := MapErrorToHTTP(err)

	detail := fmt.Errorf("%s: %w", message, err)
	if errType == TypeInternal {
		detail = errors.New(message)
	}
	utils.JSONError(c, status, errType, detail, message)

	logFields := map[string]any{"handler": handlerName, "status": status, "error": err.Error()}
	for k, v := range fields {
		logFields[k] = v
	}
	if status >= http.StatusInternalServerError {
		utils.Error(handlerName+": request failed", logFields)
		return
	}
	utils.Warn(handlerName+": request rejected", logFields)
}

// LogSuccess is a small helper to standardize logging of successful operations
func LogSuccess(handlerName, message string, ctx map[string]any) {
	utils.Info(handlerName+": "+message, ctx)
}

// SetCurrentUser stores the authenticated user on the request context
func SetCurrentUser(c *gin.Context, user models.User) {
	c.Set(currentUserKey, user)
}

// CurrentUser returns the authenticated user, if any
func CurrentUser(c *gin.Context) (models.User, bool) {
	v, ok := c.Get(currentUserKey)
	if !ok {
		return models.User{}, false
	}
	user, ok := v.(models.User)
	return user, ok
}

// OptionalUser returns the authenticated user or nil for anonymous requests
func OptionalUser(c *gin.Context) *models.User {
	if user, ok := CurrentUser(c); ok {
		return &user
	}
	return nil
}

// PathID parses a uuid path parameter. An invalid id answers 404 with notFoundMsg.
func PathID(c *gin.Context, param, notFoundMsg string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		utils.JSONError(c, http.StatusNotFound, TypeNotFound, err, notFoundMsg)
		return uuid.Nil, false
	}
	return id, true
}

// RawText turns a JSON scalar into the text a service parses.
// Absent yields nil, null yields "", strings are unquoted and numbers keep their literal.
func RawText(raw json.RawMessage) *string {
	if raw == nil {
		return nil
	}
	trimmed := bytes.TrimSpace(raw)
	text := ""
	switch {
	case len(trimmed) == 0, bytes.Equal(trimmed, []byte("null")):
	case trimmed[0] == '"':
		if err := json.Unmarshal(trimmed, &text); err != nil {
			text = string(trimmed)
		}
	default:
		text = string(trimmed)
	}
	return &text
}

// FirstPresent returns the first raw value that is present and not null
func FirstPresent(values ...json.RawMessage) json.RawMessage {
	for _, v := range values {
		if v != nil && !bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return v
		}
	}
	return nil
}

// RespondUnauthenticated answers a request that reached a protected handler without a user
func RespondUnauthenticated(c *gin.Context) {
	utils.JSONError(c, http.StatusUnauthorized, TypeUnauthenticated, errors.New("missing user"), "Missing or invalid token")
}
