package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/opsmind/tenant-rag-agent/internal/core/domain"
	"github.com/opsmind/tenant-rag-agent/internal/core/ports"
)

// HistoryRepository persists completed executions consumed from the queue.
// Inserts are idempotent on execution_id so redelivered messages are safe.
type HistoryRepository struct {
	db *sql.DB
}

func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

var _ ports.HistoryStore = (*HistoryRepository)(nil)

func (r *HistoryRepository) InsertExecutionRecord(ctx context.Context, record domain.ExecutionRecord) error {
	subqueries, err := json.Marshal(record.Subqueries)
	if err != nil {
		return fmt.Errorf("encode subqueries: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO agent_executions
	(execution_id, tenant_id, query, intent, confidence, strategy, subqueries, context_count, answer, tool, tool_status, elapsed_ms, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (execution_id) DO NOTHING
`, record.ExecutionID, record.TenantID, record.Query, record.Intent, record.Confidence,
		record.Strategy, subqueries, record.ContextCount, record.Answer,
		record.Tool, record.ToolStatus, record.ElapsedMS, record.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert execution record: %w", err)
	}
	return nil
}
