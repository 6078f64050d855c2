package auth

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"github.com/mbyo2/vehicle-log-sys/internal/directory"
	"github.com/mbyo2/vehicle-log-sys/internal/rbac"
	"github.com/mbyo2/vehicle-log-sys/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo      Repository
	directory *directory.Service
	tokens    *TokenStore
}

// NewService constructs a new Service.
func NewService(repo Repository, dir *directory.Service, tokens *TokenStore) *Service {
	return &Service{repo: repo, directory: dir, tokens: tokens}
}

// Login validates credentials and issues a bearer token. Every failure
// path returns the same ErrInvalidCredentials so callers learn nothing
// about which field was wrong.
func (s *Service) Login(ctx context.Context, email, password string) (string, rbac.Principal, error) {
	acc, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return "", rbac.Principal{}, shared.ErrInvalidCredentials
	}
	if !acc.IsActive {
		return "", rbac.Principal{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		return "", rbac.Principal{}, shared.ErrInvalidCredentials
	}
	principal, err := s.directory.Resolve(ctx, acc.ID)
	if err != nil {
		return "", rbac.Principal{}, shared.ErrInvalidCredentials
	}
	token, err := s.tokens.Issue(ctx, acc.ID)
	if err != nil {
		return "", rbac.Principal{}, err
	}
	return token, principal, nil
}

// Logout revokes the presented token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.tokens.Revoke(ctx, token)
}
