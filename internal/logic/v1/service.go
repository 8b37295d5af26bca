package v1

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"

	"github.com/duynhne/metaboard/internal/core/domain"
	"github.com/duynhne/metaboard/middleware"
)

// sessionTTL is how long an issued dashboard session stays valid.
const sessionTTL = 24 * time.Hour

// AuthService implements authentication business rules.
// It depends on repository interfaces (injected via constructor) and
// MUST NOT access the database or SQL directly.
type AuthService struct {
	users    domain.UserRepository
	sessions domain.SessionRepository
}

// NewAuthService creates a new AuthService with the given repository dependencies.
func NewAuthService(users domain.UserRepository, sessions domain.SessionRepository) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
	}
}

// Login handles user login business logic.
func (s *AuthService) Login(ctx context.Context, req domain.LoginRequest) (*domain.AuthResponse, error) {
	ctx, span := middleware.StartSpan(ctx, "auth.login", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("username", req.Username),
	))
	defer span.End()

	// Lookup user by username via repository
	row, err := s.users.GetByUsername(ctx, req.Username)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("query user %q: %w", req.Username, err)
	}
	if row == nil {
		span.SetAttributes(attribute.Bool("auth.success", false))
		span.AddEvent("authentication.failed")
		return nil, fmt.Errorf("authenticate user %q: %w", req.Username, ErrUserNotFound)
	}

	// Verify password
	err = bcrypt.CompareHashAndPassword([]byte(row.PasswordHash), []byte(req.Password))
	if err != nil {
		span.SetAttributes(attribute.Bool("auth.success", false))
		span.AddEvent("authentication.failed")
		return nil, fmt.Errorf("authenticate user %q: %w", req.Username, ErrInvalidCredentials)
	}

	// Update last_login timestamp (best-effort, don't fail login)
	if updateErr := s.users.UpdateLastLogin(ctx, row.ID); updateErr != nil {
		span.RecordError(fmt.Errorf("update last_login: %w", updateErr))
	}

	token := uuid.NewString()

	expiresAt := time.Now().Add(sessionTTL)
	if sessErr := s.sessions.Create(ctx, row.ID, token, expiresAt); sessErr != nil {
		span.RecordError(sessErr)
		return nil, fmt.Errorf("create session: %w", sessErr)
	}

	user := domain.User{
		ID:       strconv.Itoa(row.ID),
		Username: row.Username,
		Email:    row.Email,
		Role:     row.Role,
	}

	response := &domain.AuthResponse{
		Token: token,
		User:  user,
	}

	span.SetAttributes(
		attribute.String("user.id", user.ID),
		attribute.Bool("auth.success", true),
	)
	span.AddEvent("user.authenticated")

	return response, nil
}

// Register handles user registration business logic.
// Creating a user with a role other than USER requires callerRole to be
// SUPER_USER; self-service registration always produces a regular user.
func (s *AuthService) Register(ctx context.Context, req domain.RegisterRequest, callerRole string) (*domain.AuthResponse, error) {
	ctx, span := middleware.StartSpan(ctx, "auth.register", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("username", req.Username),
	))
	defer span.End()

	role := req.Role
	if role == "" {
		role = domain.RoleUser
	}
	if role != domain.RoleUser && role != domain.RoleSuperUser {
		return nil, fmt.Errorf("register user %q: unknown role %q: %w", req.Username, role, ErrInvalidRequest)
	}
	if role != domain.RoleUser && callerRole != domain.RoleSuperUser {
		span.SetAttributes(attribute.Bool("registration.success", false))
		return nil, fmt.Errorf("register user %q with role %s: %w", req.Username, role, ErrForbidden)
	}

	// Hash password
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("hash password: %w", err)
	}

	// Check if username or email already exists
	exists, err := s.users.ExistsByUsernameOrEmail(ctx, req.Username, req.Email)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("check existing user: %w", err)
	}
	if exists {
		span.SetAttributes(attribute.Bool("registration.success", false))
		return nil, fmt.Errorf("register user %q: %w", req.Username, ErrUserExists)
	}

	// Insert new user
	userID, err := s.users.Create(ctx, req.Username, req.Email, string(passwordHash), role)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("insert user: %w", err)
	}

	token := uuid.NewString()

	// Persist session (best-effort; the account exists either way)
	expiresAt := time.Now().Add(sessionTTL)
	if sessErr := s.sessions.Create(ctx, userID, token, expiresAt); sessErr != nil {
		span.RecordError(fmt.Errorf("create session: %w", sessErr))
	}

	user := domain.User{
		ID:       strconv.Itoa(userID),
		Username: req.Username,
		Email:    req.Email,
		Role:     role,
	}

	response := &domain.AuthResponse{
		Token: token,
		User:  user,
	}

	span.SetAttributes(
		attribute.String("user.id", user.ID),
		attribute.Bool("registration.success", true),
	)
	span.AddEvent("user.registered")

	return response, nil
}

// GetUserByToken retrieves user info from a session token (for /auth/me and
// the session middleware).
func (s *AuthService) GetUserByToken(ctx context.Context, token string) (*domain.SessionRow, error) {
	ctx, span := middleware.StartSpan(ctx, "auth.get_user_by_token", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	row, err := s.sessions.GetUserByToken(ctx, token)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("query session: %w", err)
	}
	if row == nil {
		span.SetAttributes(attribute.Bool("session.valid", false))
		return nil, fmt.Errorf("lookup session: %w", ErrSessionNotFound)
	}

	// Check if session has expired
	if time.Now().After(row.ExpiresAt) {
		span.SetAttributes(attribute.Bool("session.valid", false))
		return nil, fmt.Errorf("session expired at %v: %w", row.ExpiresAt, ErrSessionExpired)
	}

	span.SetAttributes(
		attribute.Int("user.id", row.UserID),
		attribute.Bool("session.valid", true),
	)

	return row, nil
}

// Logout invalidates the given session token.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	ctx, span := middleware.StartSpan(ctx, "auth.logout", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	if err := s.sessions.Delete(ctx, token); err != nil {
		span.RecordError(err)
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
