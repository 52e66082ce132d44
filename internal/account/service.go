// Package account covers principal registration and credential checks.
package account

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/tablebook/internal/auth"
	"github.com/example/tablebook/internal/reservation/domain"
)

// Service registers and authenticates owners and customers. Passwords are
// stored as bcrypt hashes only.
type Service struct {
	accounts domain.AccountRepository
	issuer   *auth.Issuer
	clock    domain.Clock
	logger   *zap.Logger
}

// New constructs the account service.
func New(accounts domain.AccountRepository, issuer *auth.Issuer, clock domain.Clock, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{accounts: accounts, issuer: issuer, clock: clock, logger: logger}
}

// RegisterRequest carries a signup. Role decides the capabilities granted at
// the boundary.
type RegisterRequest struct {
	UserID      string
	Password    string
	PhoneNumber string
	Role        domain.Role
}

// Register creates a new principal, rejecting duplicate user ids.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (domain.Account, error) {
	if req.UserID == "" || req.Password == "" || req.PhoneNumber == "" {
		return domain.Account{}, fmt.Errorf("%w: user id, password and phone number are required", domain.ErrValidation)
	}
	if req.Role != domain.RoleOwner && req.Role != domain.RoleCustomer {
		return domain.Account{}, fmt.Errorf("%w: unknown role %q", domain.ErrValidation, req.Role)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.Account{}, fmt.Errorf("hash password: %w", err)
	}

	created, err := s.accounts.CreateAccount(ctx, domain.Account{
		UserID:       req.UserID,
		PasswordHash: hash,
		PhoneNumber:  req.PhoneNumber,
		Role:         req.Role,
		CreatedAt:    s.clock.Now(),
	})
	if err != nil {
		return domain.Account{}, fmt.Errorf("register account: %w", err)
	}
	s.logger.Info("account registered", zap.String("user", created.UserID), zap.String("role", string(created.Role)))
	return created, nil
}

// Authenticate verifies credentials and returns a signed token for the
// session.
func (s *Service) Authenticate(ctx context.Context, userID, password string) (string, error) {
	account, err := s.accounts.GetAccount(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("lookup account: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword(account.PasswordHash, []byte(password)); err != nil {
		return "", domain.ErrBadCredentials
	}
	token, err := s.issuer.Token(account)
	if err != nil {
		return "", err
	}
	return token, nil
}

// EditRequest updates an account partially; nil fields are left untouched.
type EditRequest struct {
	Password    *string
	PhoneNumber *string
}

// Edit updates the caller's own account.
func (s *Service) Edit(ctx context.Context, userID string, req EditRequest) (domain.Account, error) {
	account, err := s.accounts.GetAccount(ctx, userID)
	if err != nil {
		return domain.Account{}, fmt.Errorf("lookup account: %w", err)
	}
	if req.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return domain.Account{}, fmt.Errorf("hash password: %w", err)
		}
		account.PasswordHash = hash
	}
	if req.PhoneNumber != nil {
		account.PhoneNumber = *req.PhoneNumber
	}
	updated, err := s.accounts.UpdateAccount(ctx, account)
	if err != nil {
		return domain.Account{}, fmt.Errorf("edit account: %w", err)
	}
	return updated, nil
}

// Delete removes the caller's account; an owner's stores cascade away with
// their reservations and reviews.
func (s *Service) Delete(ctx context.Context, userID string) error {
	if err := s.accounts.DeleteAccount(ctx, userID); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	s.logger.Info("account deleted", zap.String("user", userID))
	return nil
}
