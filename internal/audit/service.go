package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TimelineFilters narrows the audit timeline.
type TimelineFilters struct {
	From        time.Time
	To          time.Time
	EntityType  string
	Action      string
	PrincipalID string
	CompanyID   string
	Page        int
	PageSize    int
}

// TimelineRow is one event in the timeline.
type TimelineRow struct {
	OccurredAt  time.Time `json:"occurred_at"`
	WorkflowID  string    `json:"workflow_id"`
	EntityType  string    `json:"entity_type"`
	EntityID    string    `json:"entity_id"`
	Action      string    `json:"action"`
	FromState   string    `json:"from_state"`
	ToState     string    `json:"to_state"`
	PrincipalID string    `json:"principal_id"`
}

// PagingInfo carries the cursorless paging state for the timeline view.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// Result wraps timeline rows with paging information.
type Result struct {
	Rows   []TimelineRow `json:"rows"`
	Paging PagingInfo    `json:"paging"`
}

// Repository provides timeline reads.
type Repository interface {
	TimelineWindow(ctx context.Context, filters TimelineFilters, limit, offset int) ([]TimelineRow, error)
	TimelineAll(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error)
}

// Service coordinates audit timeline retrieval.
type Service struct {
	repo Repository
}

// NewService constructs the timeline service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline fetches one page of events, newest first.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize
	rows, err := s.repo.TimelineWindow(ctx, filters, pageSize+1, offset)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export fetches the full filtered timeline without paging.
func (s *Service) Export(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	return s.repo.TimelineAll(ctx, filters)
}

// PGRepository reads audit_logs with pgx.
type PGRepository struct {
	pool *pgxpool.Pool
}

var _ Repository = (*PGRepository)(nil)

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// TimelineWindow returns a window of events ordered newest first.
func (r *PGRepository) TimelineWindow(ctx context.Context, filters TimelineFilters, limit, offset int) ([]TimelineRow, error) {
	query, args := buildTimelineQuery(filters)
	query += fmt.Sprintf(" ORDER BY a.occurred_at DESC LIMIT %d OFFSET %d", limit, offset)
	return r.query(ctx, query, args)
}

// TimelineAll returns every matching event ordered newest first.
func (r *PGRepository) TimelineAll(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	query, args := buildTimelineQuery(filters)
	query += " ORDER BY a.occurred_at DESC"
	return r.query(ctx, query, args)
}

func (r *PGRepository) query(ctx context.Context, query string, args []any) ([]TimelineRow, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []TimelineRow
	for rows.Next() {
		var row TimelineRow
		var occurred pgtype.Timestamptz
		if err := rows.Scan(&occurred, &row.WorkflowID, &row.EntityType, &row.EntityID,
			&row.Action, &row.FromState, &row.ToState, &row.PrincipalID); err != nil {
			return nil, err
		}
		row.OccurredAt = occurred.Time
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func buildTimelineQuery(filters TimelineFilters) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if !filters.From.IsZero() {
		add("a.occurred_at >= $%d", filters.From)
	}
	if !filters.To.IsZero() {
		add("a.occurred_at <= $%d", filters.To)
	}
	if v := strings.TrimSpace(filters.EntityType); v != "" {
		add("a.entity_type = $%d", v)
	}
	if v := strings.TrimSpace(filters.Action); v != "" {
		add("a.action = $%d", v)
	}
	if v := strings.TrimSpace(filters.PrincipalID); v != "" {
		add("a.principal_id = $%d", v)
	}
	if v := strings.TrimSpace(filters.CompanyID); v != "" {
		add("w.company_id = $%d", v)
	}
	query := `SELECT a.occurred_at, a.workflow_id, a.entity_type, a.entity_id, a.action, a.from_state, a.to_state, a.principal_id
FROM audit_logs a
JOIN workflow_instances w ON w.id = a.workflow_id`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	return query, args
}
