package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	model "vehicle-auction/internal/models"
	"vehicle-auction/services/bidding/helpers"
)

var (
	testBuyer  = model.User{ID: uuid.MustParse("11111111-1111-1111-1111-111111111111"), Username: "alice", Role: model.RoleBuyer, Status: model.StatusActive}
	testSeller = model.User{ID: uuid.MustParse("22222222-2222-2222-2222-222222222222"), Username: "sam", Role: model.RoleSeller, Status: model.StatusActive}
	testAdmin  = model.User{ID: uuid.MustParse("33333333-3333-3333-3333-333333333333"), Username: "root", Role: model.RoleAdmin, Status: model.StatusActive}
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestRouter returns a gin engine that authenticates every request as user when non-nil
func newTestRouter(user *model.User) *gin.Engine {
	router := gin.New()
	if user != nil {
		u := *user
		router.Use(func(c *gin.Context) {
			helpers.SetCurrentUser(c, u)
			c.Next()
		})
	}
	return router
}

func doRequest(t *testing.T, router http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Body.Len() == 0 {
		return w, nil
	}
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}
