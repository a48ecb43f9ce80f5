package integrationtests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	auction "vehicle-auction/internal/auctionService"
	"vehicle-auction/internal/auth"
	bidding "vehicle-auction/internal/biddingService"
	model "vehicle-auction/internal/models"
	"vehicle-auction/internal/notifier"
	"vehicle-auction/internal/push"
	"vehicle-auction/internal/repository"
	"vehicle-auction/internal/server"
	users "vehicle-auction/internal/userService"
)

const adminPassword = "administrator-password"

// recordingSender captures every push batch instead of calling the push service
type recordingSender struct {
	mu       sync.Mutex
	messages []push.Message
}

func (s *recordingSender) Send(_ context.Context, batch []push.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, batch...)
	return nil
}

func (s *recordingSender) To(token string) []push.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []push.Message
	for _, m := range s.messages {
		if m.To == token {
			out = append(out, m)
		}
	}
	return out
}

// testEnv is the full HTTP stack over the in-memory store with inline delivery
type testEnv struct {
	router *gin.Engine
	repo   *repository.MemoryRepo
	sender *recordingSender
}

// SetupTestEnv initializes the router with in-memory repository for integration testing.
func SetupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := repository.NewMemoryRepo()
	hash, err := auth.HashPassword(adminPassword)
	require.NoError(t, err)
	repo.AddUser(model.User{
		ID:           uuid.New(),
		Email:        "admin@example.com",
		Username:     "admin",
		PasswordHash: hash,
		Role:         model.RoleAdmin,
		Status:       model.StatusActive,
		CreatedAt:    time.Now().UTC(),
	})

	sender := &recordingSender{}
	dispatcher := notifier.NewDispatcher(repo, sender, notifier.InlineExecutor{})
	repo.OnCommit(dispatcher.OnCommit)

	userSvc := users.NewUserService(repo, auth.NewTokenIssuer("integration-secret", 15*time.Minute, time.Hour))
	router := server.SetupRouter(server.Services{
		Bidding:  bidding.NewBiddingService(repo, bidding.DefaultPolicy()),
		Auctions: auction.NewAuctionService(repo, auction.Policy{}),
		Users:    userSvc,
		Auth:     userSvc,
	})
	return &testEnv{router: router, repo: repo, sender: sender}
}

// Do executes an HTTP request and parses the envelope
func (e *testEnv) Do(t *testing.T, method, url, token string, body any) (map[string]any, *httptest.ResponseRecorder) {
	t.Helper()

	var reqBody []byte
	switch v := body.(type) {
	case nil:
	case string:
		reqBody = []byte(v)
	default:
		var err error
		reqBody, err = json.Marshal(v)
		require.NoError(t, err)
	}

	req := httptest.NewRequest(method, url, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var resp map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return resp, w
}

// Data returns the "data" object of a successful response
func Data(t *testing.T, resp map[string]any) map[string]any {
	t.Helper()
	data, ok := resp["data"].(map[string]any)
	require.True(t, ok, "response has no data object: %v", resp)
	return data
}

// SignUp registers a buyer and logs in, returning the user id and access token
func (e *testEnv) SignUp(t *testing.T, username string) (string, string) {
	t.Helper()

	password := "password-for-" + username
	resp, w := e.Do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": password,
	})
	require.Equal(t, http.StatusCreated, w.Code, resp)
	id := Data(t, resp)["id"].(string)

	return id, e.Login(t, username, password)
}

// AdminToken logs in as the seeded administrator
func (e *testEnv) AdminToken(t *testing.T) string {
	t.Helper()
	return e.Login(t, "admin@example.com", adminPassword)
}

// CreateSeller provisions a seller through the admin API and logs in
func (e *testEnv) CreateSeller(t *testing.T, username string) (string, string) {
	t.Helper()

	password := "password-for-" + username
	resp, w := e.Do(t, http.MethodPost, "/admin/users", e.AdminToken(t), map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": password,
		"role":     "seller",
	})
	require.Equal(t, http.StatusCreated, w.Code, resp)
	id := Data(t, resp)["id"].(string)

	return id, e.Login(t, username, password)
}

func (e *testEnv) Login(t *testing.T, identifier, password string) string {
	t.Helper()

	resp, w := e.Do(t, http.MethodPost, "/auth/login", "", map[string]string{
		"username_or_email": identifier,
		"password":          password,
	})
	require.Equal(t, http.StatusOK, w.Code, resp)
	return Data(t, resp)["access"].(string)
}

func (e *testEnv) RegisterDevice(t *testing.T, token, pushToken string) {
	t.Helper()

	resp, w := e.Do(t, http.MethodPost, "/notifications/devices", token, map[string]string{"expo_push_token": pushToken})
	require.Equal(t, http.StatusCreated, w.Code, resp)
}

func (e *testEnv) CreateAuction(t *testing.T, token string, minPrice any) string {
	t.Helper()

	resp, w := e.Do(t, http.MethodPost, "/auctions", token, map[string]any{
		"title":       "Volkswagen Golf 8",
		"description": "2021, 35k km, full service history",
		"min_price":   minPrice,
		"currency":    "eur",
		"image_urls":  []string{"https://cdn.example.com/golf/1.jpg"},
	})
	require.Equal(t, http.StatusCreated, w.Code, resp)
	return Data(t, resp)["id"].(string)
}
