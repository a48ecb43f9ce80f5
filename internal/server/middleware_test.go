package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"vehicle-auction/internal/biddingerrors"
	"vehicle-auction/internal/metrics"
	"vehicle-auction/internal/models"
	handler "vehicle-auction/services/bidding/handler"
	"vehicle-auction/services/bidding/helpers"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeAuth struct {
	users map[string]models.User
}

func (f fakeAuth) Authenticate(_ context.Context, token string) (models.User, error) {
	user, ok := f.users[token]
	if !ok {
		return models.User{}, biddingerrors.Unauthenticated("Invalid or expired token")
	}
	if !user.IsActive() {
		return models.User{}, biddingerrors.Permission("User account is suspended")
	}
	return user, nil
}

var (
	buyer     = models.User{ID: uuid.New(), Username: "alice", Role: models.RoleBuyer, Status: models.StatusActive}
	admin     = models.User{ID: uuid.New(), Username: "root", Role: models.RoleAdmin, Status: models.StatusActive}
	suspended = models.User{ID: uuid.New(), Username: "mallory", Role: models.RoleBuyer, Status: models.StatusSuspended}
	auth      = fakeAuth{users: map[string]models.User{"buyer-token": buyer, "admin-token": admin, "suspended-token": suspended}}
)

func whoAmI(c *gin.Context) {
	user := helpers.OptionalUser(c)
	if user == nil {
		c.JSON(http.StatusOK, gin.H{"user": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user.Username})
}

func serve(t *testing.T, router http.Handler, method, path, authorization string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var body map[string]any
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w, body
}

func TestRequireAuth(t *testing.T) {
	t.Parallel()

	router := gin.New()
	router.GET("/me", RequireAuth(auth), whoAmI)

	tests := []struct {
		name           string
		authorization  string
		expectedStatus int
		expectedMsg    string
		expectedUser   string
	}{
		{name: "valid_token", authorization: "Bearer buyer-token", expectedStatus: http.StatusOK, expectedUser: "alice"},
		{name: "lowercase_scheme", authorization: "bearer buyer-token", expectedStatus: http.StatusOK, expectedUser: "alice"},
		{name: "missing_header", expectedStatus: http.StatusUnauthorized, expectedMsg: "Missing or invalid token"},
		{name: "wrong_scheme", authorization: "Basic abc", expectedStatus: http.StatusUnauthorized, expectedMsg: "Missing or invalid token"},
		{name: "empty_token", authorization: "Bearer   ", expectedStatus: http.StatusUnauthorized, expectedMsg: "Missing or invalid token"},
		{name: "unknown_token", authorization: "Bearer nope", expectedStatus: http.StatusUnauthorized, expectedMsg: "Invalid or expired token"},
		{name: "suspended_user", authorization: "Bearer suspended-token", expectedStatus: http.StatusForbidden, expectedMsg: "User account is suspended"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			w, body := serve(t, router, http.MethodGet, "/me", tc.authorization)
			require.Equal(t, tc.expectedStatus, w.Code)
			if tc.expectedMsg != "" {
				require.Equal(t, tc.expectedMsg, body["message"])
			}
			if tc.expectedUser != "" {
				require.Equal(t, tc.expectedUser, body["user"])
			}
		})
	}
}

func TestOptionalAuth(t *testing.T) {
	t.Parallel()

	router := gin.New()
	router.GET("/me", OptionalAuth(auth), whoAmI)

	tests := []struct {
		name          string
		authorization string
		expectedUser  any
	}{
		{name: "anonymous", expectedUser: nil},
		{name: "valid_token", authorization: "Bearer buyer-token", expectedUser: "alice"},
		{name: "invalid_token_is_ignored", authorization: "Bearer nope", expectedUser: nil},
		{name: "suspended_is_anonymous", authorization: "Bearer suspended-token", expectedUser: nil},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			w, body := serve(t, router, http.MethodGet, "/me", tc.authorization)
			require.Equal(t, http.StatusOK, w.Code)
			require.Equal(t, tc.expectedUser, body["user"])
		})
	}
}

func TestRequireRole(t *testing.T) {
	t.Parallel()

	router := gin.New()
	router.GET("/admin", RequireAuth(auth), RequireRole(models.RoleAdmin), whoAmI)

	w, body := serve(t, router, http.MethodGet, "/admin", "Bearer buyer-token")
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, "permission_denied", body["type"])
	require.Equal(t, "Insufficient permissions", body["message"])

	w, body = serve(t, router, http.MethodGet, "/admin", "Bearer admin-token")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "root", body["user"])
}

func TestRequestIDMiddleware(t *testing.T) {
	t.Parallel()

	router := gin.New()
	router.Use(RequestIDMiddleware)
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(requestIDKey)) })

	incoming := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(requestIDHeader, incoming)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, incoming, w.Header().Get(requestIDHeader))
	require.Equal(t, incoming, w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(requestIDHeader, "not a uuid")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	generated := w.Header().Get(requestIDHeader)
	require.NotEqual(t, "not a uuid", generated)
	_, err := uuid.Parse(generated)
	require.NoError(t, err)
}

func TestSetupRouter(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	bidding := handler.NewMockBiddingServiceInterface(ctrl)
	auctions := handler.NewMockAuctionServiceInterface(ctrl)
	users := handler.NewMockUserServiceInterface(ctrl)

	registry := prometheus.NewRegistry()
	metrics.New(registry).IncrementBidsPlaced()

	router := SetupRouter(Services{
		Bidding:  bidding,
		Auctions: auctions,
		Users:    users,
		Auth:     auth,
		Gatherer: registry,
	})

	t.Run("healthz", func(t *testing.T) {
		w, body := serve(t, router, http.MethodGet, "/healthz", "")
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "ok", body["status"])
	})

	t.Run("metrics", func(t *testing.T) {
		w, _ := serve(t, router, http.MethodGet, "/metrics", "")
		require.Equal(t, http.StatusOK, w.Code)
		require.Contains(t, w.Body.String(), "auction_bids_placed_total 1")
	})

	t.Run("bid_requires_auth", func(t *testing.T) {
		w, body := serve(t, router, http.MethodPost, "/auctions/"+uuid.NewString()+"/bids", "")
		require.Equal(t, http.StatusUnauthorized, w.Code)
		require.Equal(t, "unauthenticated", body["type"])
	})

	t.Run("admin_routes_reject_buyers", func(t *testing.T) {
		w, _ := serve(t, router, http.MethodGet, "/admin/users", "Bearer buyer-token")
		require.Equal(t, http.StatusForbidden, w.Code)
		w, _ = serve(t, router, http.MethodGet, "/auctions/manage", "Bearer buyer-token")
		require.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("static_route_wins_over_id", func(t *testing.T) {
		auctions.EXPECT().ListMine(gomock.Any(), buyer, "").Return(nil, nil)
		w, _ := serve(t, router, http.MethodGet, "/auctions/mine", "Bearer buyer-token")
		require.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("public_listing_sees_viewer", func(t *testing.T) {
		auctions.EXPECT().List(gomock.Any(), gomock.Any(), &buyer).Return(nil, nil)
		w, _ := serve(t, router, http.MethodGet, "/auctions", "Bearer buyer-token")
		require.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("request_id_header", func(t *testing.T) {
		w, _ := serve(t, router, http.MethodGet, "/healthz", "")
		_, err := uuid.Parse(w.Header().Get(requestIDHeader))
		require.NoError(t, err)
	})
}
