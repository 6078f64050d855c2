package directory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mbyo2/vehicle-log-sys/internal/rbac"
	"github.com/mbyo2/vehicle-log-sys/internal/shared"
)

type memoryRepo struct {
	profiles map[string]Profile
}

func (r memoryRepo) FindProfile(ctx context.Context, id string) (Profile, error) {
	p, ok := r.profiles[id]
	if !ok {
		return Profile{}, shared.ErrNotFound
	}
	return p, nil
}

func TestResolve(t *testing.T) {
	svc := NewService(memoryRepo{profiles: map[string]Profile{
		"u-1": {ID: "u-1", Role: rbac.RoleDriver, CompanyID: "co-1", IsActive: true},
		"u-2": {ID: "u-2", Role: rbac.RoleSupervisor, CompanyID: "co-1", IsActive: false},
	}})
	ctx := context.Background()

	p, err := svc.Resolve(ctx, "u-1")
	require.NoError(t, err)
	require.Equal(t, rbac.RoleDriver, p.Role)
	require.Equal(t, "co-1", p.CompanyID)
	require.True(t, p.IsCurrentUser)

	_, err = svc.Resolve(ctx, "u-2")
	require.ErrorIs(t, err, shared.ErrNotFound, "deactivated profiles do not resolve")

	_, err = svc.Resolve(ctx, "ghost")
	require.ErrorIs(t, err, shared.ErrNotFound)
}
