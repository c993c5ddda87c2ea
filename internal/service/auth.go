package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ruriclub/supportdesk/internal/auth"
	"github.com/ruriclub/supportdesk/internal/model"
	"github.com/ruriclub/supportdesk/internal/store"
	"github.com/ruriclub/supportdesk/pkg/logger"
)

// ErrInvalidCredentials is returned for an unknown email or a wrong password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// AuthService verifies credentials and issues access tokens.
type AuthService struct {
	store  store.Store
	secret string
	ttl    time.Duration
	logger *logger.Logger
	now    func() time.Time
}

// NewAuthService creates a new auth service.
func NewAuthService(st store.Store, secret string, ttl time.Duration, log *logger.Logger) *AuthService {
	return &AuthService{store: st, secret: secret, ttl: ttl, logger: log, now: time.Now}
}

// Login checks the credentials and returns the identity with a fresh token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*model.LoginResponse, error) {
	email = strings.TrimSpace(email)
	u, err := s.store.UserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	ok, err := auth.CheckPassword(password, u.Password)
	if err != nil {
		s.logger.Error("password check failed", zap.Int64("user_id", u.ID), zap.Error(err))
		return nil, ErrInvalidCredentials
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if !auth.IsHashed(u.Password) {
		s.logger.Warn("user has a legacy plaintext password", zap.Int64("user_id", u.ID))
	}

	token, err := auth.NewAccessToken(u.ID, u.Role, s.secret, s.ttl, s.now())
	if err != nil {
		return nil, err
	}

	s.logger.Info("user logged in", zap.Int64("user_id", u.ID), zap.String("role", string(u.Role)))
	return &model.LoginResponse{
		UserID:   u.ID,
		FullName: u.FullName,
		Email:    u.Email,
		Role:     string(u.Role),
		Token:    token,
		Message:  "Login successful",
	}, nil
}
