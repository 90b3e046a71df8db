package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/opsmind/tenant-rag-agent/internal/core/domain"
	"github.com/opsmind/tenant-rag-agent/internal/core/ports"
)

const recentIncidentLimit = 5

type IncidentRepository struct {
	db *sql.DB
}

func NewIncidentRepository(db *sql.DB) *IncidentRepository {
	return &IncidentRepository{db: db}
}

var _ ports.IncidentStore = (*IncidentRepository)(nil)

func (r *IncidentRepository) SummarizeIncidents(ctx context.Context, tenantID string, timeframeDays int) (domain.IncidentSummary, error) {
	if timeframeDays < 1 {
		timeframeDays = 1
	}
	since := time.Now().UTC().AddDate(0, 0, -timeframeDays)

	summary := domain.IncidentSummary{
		TimeframeDays: timeframeDays,
		BySeverity:    map[string]int{},
		ByStatus:      map[string]int{},
		Recent:        []domain.IncidentRef{},
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT severity, status, COUNT(*)
FROM incidents
WHERE tenant_id = $1 AND created_at >= $2
GROUP BY severity, status
`, tenantID, since)
	if err != nil {
		return domain.IncidentSummary{}, fmt.Errorf("aggregate incidents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			severity string
			status   string
			count    int
		)
		if err := rows.Scan(&severity, &status, &count); err != nil {
			return domain.IncidentSummary{}, fmt.Errorf("scan incident bucket: %w", err)
		}
		summary.TotalIncidents += count
		summary.BySeverity[severity] += count
		summary.ByStatus[status] += count
		switch status {
		case "resolved", "closed":
			summary.ResolvedIncidents += count
		default:
			summary.OpenIncidents += count
		}
	}
	if err := rows.Err(); err != nil {
		return domain.IncidentSummary{}, fmt.Errorf("iterate incident buckets: %w", err)
	}

	recent, err := r.recentIncidents(ctx, tenantID, since)
	if err != nil {
		return domain.IncidentSummary{}, err
	}
	summary.Recent = recent
	return summary, nil
}

func (r *IncidentRepository) recentIncidents(ctx context.Context, tenantID string, since time.Time) ([]domain.IncidentRef, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, title, severity, status
FROM incidents
WHERE tenant_id = $1 AND created_at >= $2
ORDER BY created_at DESC
LIMIT $3
`, tenantID, since, recentIncidentLimit)
	if err != nil {
		return nil, fmt.Errorf("list recent incidents: %w", err)
	}
	defer rows.Close()

	recent := make([]domain.IncidentRef, 0, recentIncidentLimit)
	for rows.Next() {
		var ref domain.IncidentRef
		if err := rows.Scan(&ref.IncidentID, &ref.Title, &ref.Severity, &ref.Status); err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		recent = append(recent, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incidents: %w", err)
	}
	return recent, nil
}
