package users

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"vehicle-auction/internal/auth"
	"vehicle-auction/internal/biddingerrors"
	"vehicle-auction/internal/models"
	"vehicle-auction/internal/repository"
)

// MinPasswordLength is the shortest password accepted at registration
const MinPasswordLength = 12

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,32}$`)

// Audit actions recorded for administrative changes
const (
	ActionCreateUser       = "create_user"
	ActionUpdateUserStatus = "update_user_status"
	ActionUpdateUserRole   = "update_user_role"
	ActionInviteUser       = "invite_user"
	ActionResetPassword    = "reset_password"

	targetUser = "user"
)

// RegisterInput is a self-registration request
type RegisterInput struct {
	Username string
	Email    string
	Password string
	Role     string
}

// CreateUserInput is an administrative user creation request
type CreateUserInput struct {
	Username string
	Email    string
	Password string
	Role     string
}

// UpdateUserInput carries the fields an administrator may change; nil means unchanged
type UpdateUserInput struct {
	Role   *string
	Status *string
}

// Session is the result of a successful login
type Session struct {
	Access  string
	Refresh string
	User    models.User
}

// UserService handles identity, devices and user administration
type UserService struct {
	store  repository.Store
	tokens *auth.TokenIssuer
}

// NewUserService creates a new UserService instance
func NewUserService(store repository.Store, tokens *auth.TokenIssuer) *UserService {
	return &UserService{store: store, tokens: tokens}
}

// Register creates a buyer account. Other roles are granted by administrators only.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (models.User, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	password := strings.TrimSpace(in.Password)

	if username == "" || email == "" || password == "" {
		return models.User{}, fmt.Errorf("service: %w", biddingerrors.Validation("Missing required fields"))
	}
	if !usernamePattern.MatchString(username) {
		return models.User{}, fmt.Errorf("service: %w", biddingerrors.Validation(
			"Username must be 3-32 characters and contain only letters, numbers, dots, underscores or hyphens"))
	}
	if len(password) < MinPasswordLength {
		return models.User{}, fmt.Errorf("service: %w", biddingerrors.Validation("Password must be at least 12 characters"))
	}
	if in.Role != "" && in.Role != string(models.RoleBuyer) {
		return models.User{}, fmt.Errorf("service: %w", biddingerrors.Permission("Role selection is restricted"))
	}

	user, err := s.newUser(username, email, password, models.RoleBuyer)
	if err != nil {
		return models.User{}, err
	}
	err = s.store.Transact(ctx, func(tx repository.Tx) error {
		return createUser(ctx, tx, &user)
	})
	if err != nil {
		return models.User{}, fmt.Errorf("service: register %q: %w", username, err)
	}
	return user, nil
}

// Login verifies credentials and issues an access and a refresh token
func (s *UserService) Login(ctx context.Context, identifier, password string) (Session, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return Session{}, fmt.Errorf("service: %w", biddingerrors.Validation("Missing credentials"))
	}

	user, err := s.store.FindUserByLogin(ctx, identifier)
	if err != nil && !errors.Is(err, biddingerrors.ErrNotFound) {
		return Session{}, fmt.Errorf("service: failed to find user: %w", err)
	}
	if err != nil || !auth.CheckPassword(user.PasswordHash, password) {
		return Session{}, fmt.Errorf("service: %w", biddingerrors.Unauthenticated("Invalid credentials"))
	}
	if !user.IsActive() {
		return Session{}, fmt.Errorf("service: %w", biddingerrors.Permission("User suspended"))
	}

	access, err := s.tokens.Issue(user, auth.AccessToken)
	if err != nil {
		return Session{}, fmt.Errorf("service: %w", err)
	}
	refresh, err := s.tokens.Issue(user, auth.RefreshToken)
	if err != nil {
		return Session{}, fmt.Errorf("service: %w", err)
	}
	return Session{Access: access, Refresh: refresh, User: user}, nil
}

// Refresh issues a new access token from a refresh token once the user is confirmed active
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.tokens.Parse(refreshToken, auth.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("service: %w: %v", biddingerrors.Unauthenticated("Invalid or expired token"), err)
	}
	user, err := s.activeUser(ctx, claims)
	if err != nil {
		return "", err
	}

	access, err := s.tokens.Issue(user, auth.AccessToken)
	if err != nil {
		return "", fmt.Errorf("service: %w", err)
	}
	return access, nil
}

// Authenticate resolves the user behind an access token and rejects suspended accounts
func (s *UserService) Authenticate(ctx context.Context, accessToken string) (models.User, error) {
	claims, err := s.tokens.Parse(accessToken, auth.AccessToken)
	if err != nil {
		return models.User{}, fmt.Errorf("service: %w: %v", biddingerrors.Unauthenticated("Invalid or expired token"), err)
	}
	return s.activeUser(ctx, claims)
}

func (s *UserService) activeUser(ctx context.Context, claims *auth.Claims) (models.User, error) {
	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		return models.User{}, fmt.Errorf("service: %w", biddingerrors.Unauthenticated("Unknown user"))
	}

	user, err := s.store.GetUser(ctx, id)
	if errors.Is(err, biddingerrors.ErrNotFound) {
		return models.User{}, fmt.Errorf("service: %w", biddingerrors.Unauthenticated("Unknown user"))
	}
	if err != nil {
		return models.User{}, fmt.Errorf("service: failed to load user %s: %w", id, err)
	}
	if !user.IsActive() {
		return models.User{}, fmt.Errorf("service: %w", biddingerrors.Permission("User account is suspended"))
	}
	return user, nil
}

// RegisterDevice binds a push token to user, taking it over if another user held it
func (s *UserService) RegisterDevice(ctx context.Context, user models.User, token string) (models.Device, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return models.Device{}, fmt.Errorf("service: %w", biddingerrors.Validation("Missing expo_push_token"))
	}

	device := models.Device{UserID: user.ID, ExpoPushToken: token}
	err := s.store.Transact(ctx, func(tx repository.Tx) error {
		return tx.SaveDevice(ctx, &device)
	})
	if err != nil {
		return models.Device{}, fmt.Errorf("service: register device for user %s: %w", user.ID, err)
	}
	return device, nil
}

// ListUsers returns every user, newest first
func (s *UserService) ListUsers(ctx context.Context, admin models.User) ([]models.User, error) {
	if err := requireAdmin(admin); err != nil {
		return nil, err
	}
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list users: %w", err)
	}
	return users, nil
}

// CreateUser creates an account with any role and records the action
func (s *UserService) CreateUser(ctx context.Context, admin models.User, in CreateUserInput) (models.User, error) {
	if err := requireAdmin(admin); err != nil {
		return models.User{}, err
	}

	username := strings.TrimSpace(in.Username)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if username == "" || email == "" || in.Role == "" || in.Password == "" {
		return models.User{}, fmt.Errorf("service: %w", biddingerrors.Validation("Missing fields"))
	}
	role := models.UserRole(in.Role)
	if !role.Valid() {
		return models.User{}, fmt.Errorf("service: %w", biddingerrors.Validation("Invalid role"))
	}
	if len(in.Password) < MinPasswordLength {
		return models.User{}, fmt.Errorf("service: %w", biddingerrors.Validation("Password must be at least 12 characters"))
	}

	user, err := s.newUser(username, email, in.Password, role)
	if err != nil {
		return models.User{}, err
	}
	err = s.store.Transact(ctx, func(tx repository.Tx) error {
		if err := createUser(ctx, tx, &user); err != nil {
			return err
		}
		return appendAudit(ctx, tx, admin, ActionCreateUser, user.ID.String(), map[string]any{"role": string(role)})
	})
	if err != nil {
		return models.User{}, fmt.Errorf("service: create user %q: %w", username, err)
	}
	return user, nil
}

// UpdateUser changes a user's role and/or status, one audit entry per changed field
func (s *UserService) UpdateUser(ctx context.Context, admin models.User, id uuid.UUID, in UpdateUserInput) (models.User, error) {
	if err := requireAdmin(admin); err != nil {
		return models.User{}, err
	}
	if in.Role == nil && in.Status == nil {
		return models.User{}, fmt.Errorf("service: %w", biddingerrors.Validation("No valid updates provided"))
	}

	var updated models.User
	err := s.store.Transact(ctx, func(tx repository.Tx) error {
		user, err := tx.GetUser(ctx, id)
		if errors.Is(err, biddingerrors.ErrNotFound) {
			return biddingerrors.NotFound("User not found")
		}
		if err != nil {
			return fmt.Errorf("failed to load user: %w", err)
		}

		if in.Status != nil {
			status := models.UserStatus(*in.Status)
			if !status.Valid() {
				return biddingerrors.Validation("Invalid status")
			}
			user.Status = status
			if err := appendAudit(ctx, tx, admin, ActionUpdateUserStatus, user.ID.String(), map[string]any{"status": string(status)}); err != nil {
				return err
			}
		}
		if in.Role != nil {
			role := models.UserRole(*in.Role)
			if !role.Valid() {
				return biddingerrors.Validation("Invalid role")
			}
			user.Role = role
			if err := appendAudit(ctx, tx, admin, ActionUpdateUserRole, user.ID.String(), map[string]any{"role": string(role)}); err != nil {
				return err
			}
		}

		if err := tx.UpdateUser(ctx, &user); err != nil {
			return fmt.Errorf("failed to update user: %w", err)
		}
		updated = user
		return nil
	})
	if err != nil {
		return models.User{}, fmt.Errorf("service: update user %s: %w", id, err)
	}
	return updated, nil
}

// Invite records an invitation for email with the given role
func (s *UserService) Invite(ctx context.Context, admin models.User, email, role string) error {
	if err := requireAdmin(admin); err != nil {
		return err
	}
	if role == "" {
		role = string(models.RoleBuyer)
	}
	if !models.UserRole(role).Valid() {
		return fmt.Errorf("service: %w", biddingerrors.Validation("Invalid role"))
	}
	target := strings.TrimSpace(email)
	if target == "" {
		target = "unknown"
	}
	err := s.store.Transact(ctx, func(tx repository.Tx) error {
		return appendAudit(ctx, tx, admin, ActionInviteUser, target, map[string]any{"role": role})
	})
	if err != nil {
		return fmt.Errorf("service: invite %q: %w", target, err)
	}
	return nil
}

// ResetPassword records a password reset for an existing user
func (s *UserService) ResetPassword(ctx context.Context, admin models.User, id uuid.UUID) error {
	if err := requireAdmin(admin); err != nil {
		return err
	}
	err := s.store.Transact(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetUser(ctx, id); err != nil {
			if errors.Is(err, biddingerrors.ErrNotFound) {
				return biddingerrors.NotFound("User not found")
			}
			return fmt.Errorf("failed to load user: %w", err)
		}
		return appendAudit(ctx, tx, admin, ActionResetPassword, id.String(), nil)
	})
	if err != nil {
		return fmt.Errorf("service: reset password of %s: %w", id, err)
	}
	return nil
}

func (s *UserService) newUser(username, email, password string, role models.UserRole) (models.User, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return models.User{}, fmt.Errorf("service: %w", err)
	}
	return models.User{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Status:       models.StatusActive,
	}, nil
}

func createUser(ctx context.Context, tx repository.Tx, user *models.User) error {
	if err := tx.CreateUser(ctx, user); err != nil {
		if errors.Is(err, biddingerrors.ErrDuplicate) {
			return biddingerrors.Conflict("User already exists")
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func appendAudit(ctx context.Context, tx repository.Tx, actor models.User, action, targetID string, meta map[string]any) error {
	entry := models.AuditLog{
		ActorID:    actor.ID,
		Action:     action,
		TargetType: targetUser,
		TargetID:   targetID,
		Meta:       meta,
	}
	if err := tx.AppendAuditLog(ctx, &entry); err != nil {
		return fmt.Errorf("failed to append audit log %q: %w", action, err)
	}
	return nil
}

func requireAdmin(user models.User) error {
	if user.Role != models.RoleAdmin {
		return fmt.Errorf("service: %w", biddingerrors.Permission("Insufficient permissions"))
	}
	return nil
}
