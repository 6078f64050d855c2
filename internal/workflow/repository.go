package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mbyo2/vehicle-log-sys/internal/shared"
)

// PGStore persists workflow instances in the workflow_instances table.
// CASUpdate is the conditional update the machine's concurrency contract
// rests on: the WHERE clause compares updated_at, so of two writers that
// read the same row exactly one update matches.
type PGStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PGStore)(nil)

// NewPGStore constructs the store backed by the provided pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const instanceColumns = `id, entity_type, entity_id, current_state, assigned_to, company_id, metadata, created_at, updated_at`

// LoadInstance fetches the instance tracking an entity.
func (s *PGStore) LoadInstance(ctx context.Context, entityType EntityType, entityID string) (Instance, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+instanceColumns+`
FROM workflow_instances WHERE entity_type=$1 AND entity_id=$2`, string(entityType), entityID)
	inst, err := scanInstance(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Instance{}, shared.ErrNotFound
		}
		return Instance{}, mapWriteError(ctx, err)
	}
	return inst, nil
}

// Create inserts a fresh instance. A second tracker for the same entity is
// reported as a conflict via the unique index on (entity_type, entity_id).
func (s *PGStore) Create(ctx context.Context, inst Instance) (Instance, error) {
	meta, err := json.Marshal(inst.Metadata)
	if err != nil {
		return Instance{}, err
	}
	row := s.pool.QueryRow(ctx, `INSERT INTO workflow_instances
(id, entity_type, entity_id, current_state, assigned_to, company_id, metadata, created_at, updated_at)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $8)
RETURNING `+instanceColumns,
		inst.ID, string(inst.EntityType), inst.EntityID, inst.CurrentState,
		inst.AssignedTo, inst.CompanyID, meta, inst.CreatedAt)
	created, err := scanInstance(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Instance{}, shared.ErrConflict
		}
		return Instance{}, mapWriteError(ctx, err)
	}
	return created, nil
}

// CASUpdate writes the transitioned instance provided nobody else committed
// since the caller's read. Zero matched rows means a lost race. A context
// deadline during the write is an unknown outcome: the statement may have
// reached the server, so the caller must re-read rather than assume either
// way.
func (s *PGStore) CASUpdate(ctx context.Context, inst Instance, expectedUpdatedAt time.Time) (Instance, error) {
	meta, err := json.Marshal(inst.Metadata)
	if err != nil {
		return Instance{}, err
	}
	row := s.pool.QueryRow(ctx, `UPDATE workflow_instances
SET current_state=$3, assigned_to=NULLIF($4, ''), metadata=$5, updated_at=$6
WHERE id=$1 AND updated_at=$2
RETURNING `+instanceColumns,
		inst.ID, expectedUpdatedAt, inst.CurrentState, inst.AssignedTo, meta, inst.UpdatedAt)
	updated, err := scanInstance(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Instance{}, shared.ErrConflict
		}
		return Instance{}, mapWriteError(ctx, err)
	}
	return updated, nil
}

// ListByCompany returns a page of a tenant's instances of one entity type,
// newest first, along with the unpaged total.
func (s *PGStore) ListByCompany(ctx context.Context, companyID string, entityType EntityType, limit, offset int) ([]Instance, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var total int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM workflow_instances
WHERE company_id=$1 AND entity_type=$2`, companyID, string(entityType)).Scan(&total)
	if err != nil {
		return nil, 0, err
	}
	rows, err := s.pool.Query(ctx, `SELECT `+instanceColumns+`
FROM workflow_instances WHERE company_id=$1 AND entity_type=$2
ORDER BY updated_at DESC LIMIT $3 OFFSET $4`, companyID, string(entityType), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var instances []Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, 0, err
		}
		instances = append(instances, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return instances, total, nil
}

func scanInstance(row pgx.Row) (Instance, error) {
	var (
		inst       Instance
		entityType string
		assignedTo pgtype.Text
		meta       []byte
		createdAt  pgtype.Timestamptz
		updatedAt  pgtype.Timestamptz
	)
	if err := row.Scan(&inst.ID, &entityType, &inst.EntityID, &inst.CurrentState,
		&assignedTo, &inst.CompanyID, &meta, &createdAt, &updatedAt); err != nil {
		return Instance{}, err
	}
	inst.EntityType = EntityType(entityType)
	if assignedTo.Valid {
		inst.AssignedTo = assignedTo.String
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &inst.Metadata); err != nil {
			return Instance{}, err
		}
	}
	inst.CreatedAt = createdAt.Time
	inst.UpdatedAt = updatedAt.Time
	return inst, nil
}

// mapWriteError folds driver timeouts into the unknown-outcome sentinel.
func mapWriteError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return shared.ErrUnknownOutcome
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "57014" { // statement_timeout cancel
		return shared.ErrUnknownOutcome
	}
	return err
}
