package audithttp

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"log/slog"

	"github.com/mbyo2/vehicle-log-sys/internal/audit"
	"github.com/mbyo2/vehicle-log-sys/internal/rbac"
)

const (
	defaultDateRange = 7 * 24 * time.Hour
	maxDateRangeDays = 90
)

// TimelineService defines the business contract for timeline data.
type TimelineService interface {
	Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error)
	Export(ctx context.Context, filters audit.TimelineFilters) ([]audit.TimelineRow, error)
}

// Handler serves the audit timeline endpoints.
type Handler struct {
	logger  *slog.Logger
	service TimelineService
	now     func() time.Time
}

// NewHandler constructs the audit handler.
func NewHandler(logger *slog.Logger, service TimelineService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, now: time.Now}
}

// Timeline writes one page of the audit timeline as JSON. Non-admin
// principals only see their own company's events.
func (h *Handler) Timeline(w http.ResponseWriter, r *http.Request) {
	principal, ok := rbac.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}
	filters := h.parseFilters(r, principal)
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("audit timeline", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		h.logger.Error("encode timeline", slog.Any("error", err))
	}
}

// Export streams the filtered timeline as CSV.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	principal, ok := rbac.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}
	filters := h.parseFilters(r, principal)
	rows, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.logger.Error("audit export", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	data, err := audit.WriteCSV(rows)
	if err != nil {
		h.logger.Error("audit csv", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="audit_timeline.csv"`)
	_, _ = w.Write(data)
}

func (h *Handler) parseFilters(r *http.Request, principal rbac.Principal) audit.TimelineFilters {
	q := r.URL.Query()
	now := h.now()
	filters := audit.TimelineFilters{
		From:        now.Add(-defaultDateRange),
		To:          now,
		EntityType:  q.Get("entity_type"),
		Action:      q.Get("action"),
		PrincipalID: q.Get("principal_id"),
	}
	if principal.Role != rbac.RoleSuperAdmin {
		filters.CompanyID = principal.CompanyID
	}
	if v := q.Get("from"); v != "" {
		if ts, err := time.Parse("2006-01-02", v); err == nil {
			filters.From = ts
		}
	}
	if v := q.Get("to"); v != "" {
		if ts, err := time.Parse("2006-01-02", v); err == nil {
			filters.To = ts.Add(24*time.Hour - time.Nanosecond)
		}
	}
	if filters.To.Sub(filters.From) > maxDateRangeDays*24*time.Hour {
		filters.From = filters.To.Add(-maxDateRangeDays * 24 * time.Hour)
	}
	if v, err := strconv.Atoi(q.Get("page")); err == nil {
		filters.Page = v
	}
	if v, err := strconv.Atoi(q.Get("page_size")); err == nil {
		filters.PageSize = v
	}
	return filters
}
