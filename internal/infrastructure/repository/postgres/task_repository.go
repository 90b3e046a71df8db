package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/opsmind/tenant-rag-agent/internal/core/domain"
	"github.com/opsmind/tenant-rag-agent/internal/core/ports"
)

type TaskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

var _ ports.TaskStore = (*TaskRepository)(nil)

func (r *TaskRepository) CreateTask(ctx context.Context, task *domain.Task) error {
	tags, err := json.Marshal(tagsOrEmpty(task.Tags))
	if err != nil {
		return fmt.Errorf("encode task tags: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO tasks (id, tenant_id, title, description, priority, status, tags, due_date, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`, task.ID, task.TenantID, task.Title, task.Description, string(task.Priority), string(task.Status), tags, task.DueDate, task.CreatedAt, task.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (r *TaskRepository) ListOpenTasks(ctx context.Context, tenantID string, limit int) ([]domain.Task, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT id, tenant_id, title, description, priority, status, tags, due_date, created_at, updated_at
FROM tasks
WHERE tenant_id = $1 AND status = $2
ORDER BY created_at DESC
LIMIT $3
`, tenantID, string(domain.TaskStatusOpen), limit)
	if err != nil {
		return nil, fmt.Errorf("list open tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]domain.Task, 0, limit)
	for rows.Next() {
		var (
			task     domain.Task
			priority string
			status   string
			rawTags  []byte
		)
		if err := rows.Scan(
			&task.ID, &task.TenantID, &task.Title, &task.Description,
			&priority, &status, &rawTags, &task.DueDate, &task.CreatedAt, &task.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		task.Priority = domain.TaskPriority(priority)
		task.Status = domain.TaskStatus(status)
		if len(rawTags) > 0 {
			if err := json.Unmarshal(rawTags, &task.Tags); err != nil {
				return nil, fmt.Errorf("decode task tags: %w", err)
			}
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
