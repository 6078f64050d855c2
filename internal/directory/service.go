package directory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mbyo2/vehicle-log-sys/internal/rbac"
	"github.com/mbyo2/vehicle-log-sys/internal/shared"
)

// Profile is the directory record behind a principal.
type Profile struct {
	ID        string
	Email     string
	FullName  string
	Role      rbac.Role
	CompanyID string
	IsActive  bool
}

// Repository provides profile lookups.
type Repository interface {
	FindProfile(ctx context.Context, id string) (Profile, error)
}

// PGRepository reads the profiles table.
type PGRepository struct {
	pool *pgxpool.Pool
}

var _ Repository = (*PGRepository)(nil)

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindProfile fetches one profile by id.
func (r *PGRepository) FindProfile(ctx context.Context, id string) (Profile, error) {
	var p Profile
	var role string
	err := r.pool.QueryRow(ctx, `SELECT id, email, full_name, role, COALESCE(company_id::text, ''), is_active
FROM profiles WHERE id=$1`, id).Scan(&p.ID, &p.Email, &p.FullName, &role, &p.CompanyID, &p.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, shared.ErrNotFound
		}
		return Profile{}, err
	}
	p.Role = rbac.Role(role)
	return p, nil
}

// Service resolves user ids to principals.
type Service struct {
	repo Repository
}

// NewService constructs the directory service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Resolve maps a user id to a principal. Missing or deactivated profiles
// resolve to not-found; callers collapse that into their denial path.
func (s *Service) Resolve(ctx context.Context, userID string) (rbac.Principal, error) {
	profile, err := s.repo.FindProfile(ctx, userID)
	if err != nil {
		return rbac.Principal{}, err
	}
	if !profile.IsActive {
		return rbac.Principal{}, shared.ErrNotFound
	}
	return rbac.Principal{
		ID:            profile.ID,
		Role:          profile.Role,
		CompanyID:     profile.CompanyID,
		IsCurrentUser: true,
	}, nil
}
