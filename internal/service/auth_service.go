package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/sjdodge123/uptime-atlas/internal/models"
	"github.com/sjdodge123/uptime-atlas/internal/repository"
	"github.com/sjdodge123/uptime-atlas/pkg/helpers"
	"github.com/sjdodge123/uptime-atlas/pkg/logger"
)

const (
	sessionTTL      = 24 * time.Hour
	defaultTimezone = "America/New_York"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSetupDisabled      = errors.New("setup is only available before the first user exists")
	ErrUserNotFound       = errors.New("user not found")
)

// AuthService manages accounts and opaque-token sessions
type AuthService struct {
	users    repository.UserRepositoryInterface
	sessions repository.SessionRepositoryInterface
	idGen    *helpers.IDGenerator
	log      *logger.Logger
	now      func() time.Time
}

func NewAuthService(users repository.UserRepositoryInterface, sessions repository.SessionRepositoryInterface, idGen *helpers.IDGenerator, log *logger.Logger) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		idGen:    idGen,
		log:      log,
		now:      time.Now,
	}
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func verifyPassword(password, storedHash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(password)) == nil
}

// Bootstrap creates the first root account when the users table is empty.
// Credentials come from the environment when provided, otherwise a random
// password is generated and printed once to the log.
func (s *AuthService) Bootstrap(ctx context.Context, envUser, envPassword string) error {
	exists, err := s.users.HasUsers(ctx)
	if err != nil {
		return err
	}
	if exists {
		s.log.Info("existing users detected; bootstrap skipped")
		return nil
	}

	username := strings.TrimSpace(envUser)
	password := envPassword
	generated := false
	if username == "" || password == "" {
		username = "root"
		password = uuid.New().String()
		generated = true
	}

	hash, err := hashPassword(password)
	if err != nil {
		return err
	}
	user := &models.User{
		Username:     username,
		PasswordHash: hash,
		Role:         models.RoleRoot,
		Timezone:     defaultTimezone,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return err
	}

	if generated {
		s.log.WithField("username", username).
			WithField("password", password).
			Warn("bootstrap admin created; change this password immediately")
	} else {
		s.log.WithField("username", username).Info("bootstrap admin created from env vars")
	}
	return nil
}

// Login verifies credentials and opens a session.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, *models.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return "", nil, err
	}
	if user == nil || !verifyPassword(password, user.PasswordHash) {
		return "", nil, ErrInvalidCredentials
	}

	token := s.idGen.GenerateSessionToken()
	if err := s.sessions.Create(ctx, token, user.Username, s.now().Add(sessionTTL)); err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// Setup creates the first account as root and logs it in. Only available
// while no user exists.
func (s *AuthService) Setup(ctx context.Context, username, password, timezone string) (string, *models.User, error) {
	exists, err := s.users.HasUsers(ctx)
	if err != nil {
		return "", nil, err
	}
	if exists {
		return "", nil, ErrSetupDisabled
	}

	if timezone = strings.TrimSpace(timezone); timezone == "" {
		timezone = defaultTimezone
	}
	hash, err := hashPassword(password)
	if err != nil {
		return "", nil, err
	}
	user := &models.User{
		Username:     username,
		PasswordHash: hash,
		Role:         models.RoleRoot,
		Timezone:     timezone,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return "", nil, err
	}

	token := s.idGen.GenerateSessionToken()
	if err := s.sessions.Create(ctx, token, user.Username, s.now().Add(sessionTTL)); err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// Logout removes the session. Unknown tokens are a no-op.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	return s.sessions.DeleteByToken(ctx, token)
}

// Authenticate resolves a session token to its user. Expired sessions are
// dropped on sight.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	session, err := s.sessions.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, nil
	}
	if session.Expired(s.now()) {
		if err := s.sessions.DeleteByToken(ctx, token); err != nil {
			s.log.WithError(err).Warn("failed to drop expired session")
		}
		return nil, nil
	}
	return s.users.GetByUsername(ctx, session.Username)
}

// PurgeExpiredSessions drops sessions past their expiry.
func (s *AuthService) PurgeExpiredSessions(ctx context.Context) error {
	return s.sessions.DeleteExpired(ctx, s.now())
}

// SetupAvailable reports whether first-run setup is still open.
func (s *AuthService) SetupAvailable(ctx context.Context) (bool, error) {
	exists, err := s.users.HasUsers(ctx)
	if err != nil {
		return false, err
	}
	return !exists, nil
}

func (s *AuthService) ListUsers(ctx context.Context) ([]*models.User, error) {
	return s.users.List(ctx)
}

func (s *AuthService) UpdateRole(ctx context.Context, username, role string) error {
	return s.users.UpdateRole(ctx, username, role)
}

func (s *AuthService) UpdateTimezone(ctx context.Context, username, timezone string) error {
	return s.users.UpdateTimezone(ctx, username, timezone)
}

// UpdatePassword changes a user's password after verifying the current one.
func (s *AuthService) UpdatePassword(ctx context.Context, username, currentPassword, newPassword string) error {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return err
	}
	if user == nil || !verifyPassword(currentPassword, user.PasswordHash) {
		return ErrInvalidCredentials
	}
	hash, err := hashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, username, hash)
}
