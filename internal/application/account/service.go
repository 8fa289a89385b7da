// Package account implements signup, login, profile and password reset
// flows on top of the user aggregate.
package account

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	domainUser "glimpse/internal/domain/user"
	"glimpse/internal/infrastructure/email"
	"glimpse/internal/shared/biztime"
	apperrors "glimpse/internal/shared/errors"
	"glimpse/internal/shared/logger"
)

const (
	resetCodeLength = 6
	resetCodeTTL    = 15 * time.Minute
)

// TokenIssuer signs access tokens for authenticated users.
type TokenIssuer interface {
	Generate(userID uint, username, displayName string) (string, error)
}

// PasswordResetStore stores one-time reset codes.
type PasswordResetStore interface {
	Create(ctx context.Context, userID uint, code string, expiresAt time.Time) error
	Consume(ctx context.Context, userID uint, code string) error
}

// AuthResult is a user plus their freshly issued access token.
type AuthResult struct {
	User  *domainUser.User
	Token string
}

// Service orchestrates account lifecycle operations.
type Service struct {
	users  domainUser.Repository
	resets PasswordResetStore
	hasher domainUser.PasswordHasher
	tokens TokenIssuer
	mailer email.Service
	logger logger.Interface
}

func NewService(
	users domainUser.Repository,
	resets PasswordResetStore,
	hasher domainUser.PasswordHasher,
	tokens TokenIssuer,
	mailer email.Service,
	log logger.Interface,
) *Service {
	return &Service{
		users:  users,
		resets: resets,
		hasher: hasher,
		tokens: tokens,
		mailer: mailer,
		logger: log.Named("account.service"),
	}
}

// Signup registers a new account and logs it in.
func (s *Service) Signup(ctx context.Context, username, email, displayName, password string) (*AuthResult, error) {
	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		return nil, apperrors.NewConflictError("username already taken")
	} else if !apperrors.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to check username: %w", err)
	}
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, apperrors.NewConflictError("email already registered")
	} else if !apperrors.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	u, err := domainUser.New(username, email, displayName, hash)
	if err != nil {
		return nil, apperrors.NewValidationError(err.Error())
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Infow("user registered", "user_id", u.ID, "username", u.Username)
	return s.issue(u)
}

// Login verifies credentials and issues a token. Wrong username and wrong
// password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if apperrors.IsNotFoundError(err) {
			return nil, apperrors.NewUnauthorizedError("invalid username or password")
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if err := s.hasher.Verify(password, u.PasswordHash); err != nil {
		return nil, apperrors.NewUnauthorizedError("invalid username or password")
	}
	return s.issue(u)
}

// Get returns a user's profile.
func (s *Service) Get(ctx context.Context, userID uint) (*domainUser.User, error) {
	return s.users.GetByID(ctx, userID)
}

// UpdatePrivacy applies new privacy settings. Changes take effect for live
// fan-out on the viewers' next connect.
func (s *Service) UpdatePrivacy(ctx context.Context, userID uint, tab, online string) (*domainUser.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := u.UpdatePrivacy(domainUser.TabPrivacy(tab), domainUser.OnlinePrivacy(online)); err != nil {
		return nil, apperrors.NewValidationError(err.Error())
	}
	if err := s.users.Update(ctx, u); err != nil {
		return nil, fmt.Errorf("failed to update privacy: %w", err)
	}
	return u, nil
}

// RequestPasswordReset emails a one-time code. An unknown email is reported
// as success so the endpoint cannot be used to probe registered addresses.
func (s *Service) RequestPasswordReset(ctx context.Context, emailAddr string) error {
	u, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if apperrors.IsNotFoundError(err) {
			s.logger.Debugw("password reset requested for unknown email")
			return nil
		}
		return fmt.Errorf("failed to get user: %w", err)
	}

	code, err := generateResetCode()
	if err != nil {
		return fmt.Errorf("failed to generate reset code: %w", err)
	}
	if err := s.resets.Create(ctx, u.ID, code, biztime.NowUTC().Add(resetCodeTTL)); err != nil {
		return fmt.Errorf("failed to store reset code: %w", err)
	}
	if err := s.mailer.SendPasswordResetEmail(u.Email, code); err != nil {
		s.logger.Errorw("failed to send reset email", "user_id", u.ID, "error", err)
		return apperrors.NewInternalError("failed to send reset email")
	}

	s.logger.Infow("password reset code sent", "user_id", u.ID)
	return nil
}

// ResetPassword consumes a reset code and installs the new password.
func (s *Service) ResetPassword(ctx context.Context, emailAddr, code, newPassword string) error {
	u, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if apperrors.IsNotFoundError(err) {
			return apperrors.NewUnauthorizedError("invalid or expired reset code")
		}
		return fmt.Errorf("failed to get user: %w", err)
	}
	if err := s.resets.Consume(ctx, u.ID, code); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	u.PasswordHash = hash
	u.UpdatedAt = biztime.NowUTC()
	if err := s.users.Update(ctx, u); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	s.logger.Infow("password reset completed", "user_id", u.ID)
	return nil
}

func (s *Service) issue(u *domainUser.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(u.ID, u.Username, u.DisplayName)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}
	return &AuthResult{User: u, Token: token}, nil
}

func generateResetCode() (string, error) {
	code := make([]byte, resetCodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		code[i] = byte('0' + n.Int64())
	}
	return string(code), nil
}
