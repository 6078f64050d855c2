package rbac

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGOverrideStore reads role_permission_overrides, the table ops use to
// grant or revoke capabilities without a deploy.
type PGOverrideStore struct {
	pool *pgxpool.Pool
}

var _ OverrideStore = (*PGOverrideStore)(nil)

// NewPGOverrideStore constructs the store backed by the provided pool.
func NewPGOverrideStore(pool *pgxpool.Pool) *PGOverrideStore {
	return &PGOverrideStore{pool: pool}
}

// Overrides returns the override rows for a role in insertion order.
func (s *PGOverrideStore) Overrides(ctx context.Context, role Role) ([]Override, error) {
	rows, err := s.pool.Query(ctx, `SELECT resource, action, is_granted
FROM role_permission_overrides WHERE role=$1 ORDER BY id ASC`, string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var overrides []Override
	for rows.Next() {
		var o Override
		if err := rows.Scan(&o.Resource, &o.Action, &o.Granted); err != nil {
			return nil, err
		}
		overrides = append(overrides, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return overrides, nil
}
